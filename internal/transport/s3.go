package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// GetObjectAPI is the subset of the S3 client used by [S3].
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads objects addressed as s3://bucket/key.
type S3 struct {
	client      GetObjectAPI
	maxBodySize int64
}

// NewS3 creates an [S3] transport around an existing client.
func NewS3(client GetObjectAPI, maxBodySize int64) *S3 {
	return &S3{client: client, maxBodySize: maxBodySize}
}

// NewS3FromDefaultConfig builds an S3 client from the default AWS credential
// chain (environment, shared config, instance role).
func NewS3FromDefaultConfig(ctx context.Context, maxBodySize int64) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3(s3.NewFromConfig(awsCfg), maxBodySize), nil
}

// ReadAll downloads the object named by id.
func (s *S3) ReadAll(ctx context.Context, id string) ([]byte, error) {
	bucket, key, err := ParseS3URI(id)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get S3 object s3://%s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := readLimited(out.Body, s.maxBodySize)
	if err != nil {
		return nil, fmt.Errorf("read S3 object s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(id string) (bucket, key string, err error) {
	u, err := url.Parse(id)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 uri %q: %w", id, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("invalid s3 uri %q: scheme must be s3", id)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q: expected s3://bucket/key", id)
	}
	return bucket, key, nil
}
