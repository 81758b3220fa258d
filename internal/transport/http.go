package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// connection pooling limits to prevent resource exhaustion when fetching many resources
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPOptions configures an [HTTP] transport.
type HTTPOptions struct {
	// Timeout bounds a single request, including reading the body.
	// Zero means no per-request timeout beyond the caller's context.
	Timeout time.Duration

	// MaxBodySize caps the bytes read per response. Zero uses
	// [DefaultMaxBodySize].
	MaxBodySize int64

	// Headers are sent with every request.
	Headers map[string]string

	// TracerProvider is used to instrument outgoing requests. Nil uses the
	// global provider.
	TracerProvider trace.TracerProvider

	// Client replaces the pooled client built by [NewHTTP]. Used by tests to
	// point at httptest servers with custom transports.
	Client *http.Client
}

// HTTP fetches resources with GET requests.
//
// HTTP uses per-request timeouts via context rather than a global client
// timeout, so callers may also bound requests with their own deadlines.
type HTTP struct {
	httpClient  *http.Client
	timeout     time.Duration
	maxBodySize int64
	headers     map[string]string
}

// NewHTTP creates an [HTTP] transport.
//
// The client is configured with connection pooling limits to prevent
// resource exhaustion when many resources share a host:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
//
// Requests are wrapped with OpenTelemetry instrumentation.
func NewHTTP(opts HTTPOptions) *HTTP {
	client := opts.Client
	if client == nil {
		var otelOpts []otelhttp.Option
		if opts.TracerProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
		}
		client = &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: otelhttp.NewTransport(&http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
				DisableKeepAlives:   false, // explicitly enable connection reuse
			}, otelOpts...),
		}
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTP{
		httpClient:  client,
		timeout:     opts.Timeout,
		maxBodySize: opts.MaxBodySize,
		headers:     headers,
	}
}

// ReadAll performs a GET request for url and returns the response body.
//
// A non-2xx status is reported as a [*StatusError]. Bodies larger than the
// configured cap fail with [ErrBodyTooLarge] rather than being truncated, so a
// digest is never computed over partial content.
func (h *HTTP) ReadAll(ctx context.Context, url string) ([]byte, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := readLimited(resp.Body, h.maxBodySize)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the transport remains usable but
// new connections will be established as needed.
func (h *HTTP) Close() {
	if h == nil || h.httpClient == nil {
		return
	}
	h.httpClient.CloseIdleConnections()
}
