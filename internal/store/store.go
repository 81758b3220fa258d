package store

import "time"

// Record statuses.
const (
	// StatusMatch means the digest equals the configured expected digest.
	StatusMatch = "match"

	// StatusMismatch means the digest differs from the expected digest.
	StatusMismatch = "mismatch"

	// StatusNew means the resource was digested for the first time.
	StatusNew = "new"

	// StatusUnchanged means the digest equals the previous cycle's digest.
	StatusUnchanged = "unchanged"

	// StatusChanged means the digest differs from the previous cycle's digest.
	StatusChanged = "changed"

	// StatusError means the resource could not be fetched.
	StatusError = "error"
)

// DigestRecord is the latest digest of one resource.
//
// DigestRecord is the storage representation used by the REST API and SSE
// stream.
type DigestRecord struct {
	// ID is the resource identifier and the storage key.
	ID string `json:"id"`

	// Name is the resource's display name.
	Name string `json:"name"`

	// Status is one of the Status constants.
	Status string `json:"status"`

	// Digest is the MD5 of the content. Empty when Status is "error".
	Digest string `json:"digest,omitempty"`

	// Previous is the digest from the last successful cycle, if any.
	Previous string `json:"previous,omitempty"`

	// Expected is the configured expected digest, if any.
	Expected string `json:"expected,omitempty"`

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels,omitempty"`

	// Bytes is the size of the fetched content.
	Bytes int `json:"bytes"`

	// LatencyMs is the fetch latency in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// CheckedAt is when the cycle that produced this record started.
	CheckedAt time.Time `json:"checked_at"`

	// Error contains the error message if the fetch failed.
	Error *string `json:"error"`
}

// Store defines storage and subscription operations for digest records.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores a record and notifies all subscribers.
	// Records are keyed by ID, so later updates replace earlier ones.
	Update(record DigestRecord)

	// Get returns the record stored for id.
	Get(id string) (DigestRecord, bool)

	// GetAll returns a snapshot of all records sorted by name, then ID.
	GetAll() []DigestRecord

	// Subscribe returns a buffered channel that receives record updates.
	// Slow consumers may miss updates. Caller must call Unsubscribe.
	Subscribe() <-chan DigestRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan DigestRecord)
}
