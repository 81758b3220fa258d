package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the channel buffer given to each subscriber.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore provides thread-safe storage with a publish-subscribe mechanism
// for real-time updates. Records are keyed by resource ID, with new records
// replacing previous values.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the watch cycle.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]DigestRecord
	subscribers map[chan DigestRecord]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]DigestRecord),
		subscribers: make(map[chan DigestRecord]struct{}),
	}
}

// Update stores a [DigestRecord] and notifies all subscribers.
//
// The record is stored using its ID as the key. Subsequent updates with the
// same ID replace the previous value. All subscribers receive the update
// (unless their buffer is full).
func (m *MemoryStore) Update(record DigestRecord) {
	m.mu.Lock()
	m.records[record.ID] = record
	m.mu.Unlock()

	m.notifySubscribers(record)
}

// Get returns the record stored for id.
func (m *MemoryStore) Get(id string) (DigestRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	return r, ok
}

// GetAll returns a snapshot of all records, sorted by name and then ID.
//
// The returned slice is a copy; modifications do not affect the store.
func (m *MemoryStore) GetAll() []DigestRecord {
	m.mu.RLock()
	records := make([]DigestRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].ID < records[j].ID
	})
	return records
}

// Subscribe creates a new subscription and returns a channel for receiving
// updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan DigestRecord {
	ch := make(chan DigestRecord, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan DigestRecord) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the record to all active subscribers.
//
// This is non-blocking: if a subscriber's channel buffer is full, the message
// is dropped for that subscriber rather than blocking the update path.
func (m *MemoryStore) notifySubscribers(record DigestRecord) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- record:
		default:
			// subscriber is slow, drop the message
		}
	}
}
