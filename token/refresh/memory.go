package refresh

import (
	"context"
	"sync"
	"time"
)

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry keeps records in process memory. It is lost on restart and is not
// shared between instances; use a database or Redis registry for that.
type MemoryRegistry struct {
	records map[string]*Record             // token hash to record
	owners  map[string]map[string]struct{} // owner id to token hashes
	lock    sync.RWMutex
	nowFunc func() time.Time
}

type MemoryOption func(*MemoryRegistry)

func WithNowFunc(now func() time.Time) MemoryOption {
	return func(m *MemoryRegistry) {
		m.nowFunc = now
	}
}

func NewMemoryRegistry(opts ...MemoryOption) *MemoryRegistry {
	m := &MemoryRegistry{
		records: make(map[string]*Record),
		owners:  make(map[string]map[string]struct{}),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryRegistry) Store(_ context.Context, ownerID, token string, ttl time.Duration) error {
	now := m.nowFunc()
	record := &Record{
		OwnerID:   ownerID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if previous, ok := m.records[record.TokenHash]; ok && previous.OwnerID != ownerID {
		m.unindex(previous)
	}
	m.records[record.TokenHash] = record
	if _, ok := m.owners[ownerID]; !ok {
		m.owners[ownerID] = make(map[string]struct{})
	}
	m.owners[ownerID][record.TokenHash] = struct{}{}
	return nil
}

func (m *MemoryRegistry) Verify(_ context.Context, token string) (*Record, error) {
	hash := HashToken(token)

	m.lock.RLock()
	record, ok := m.records[hash]
	m.lock.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if record.Expired(m.nowFunc()) {
		m.lock.Lock()
		// Re-check under the write lock, the record may have been replaced or swept
		if current, ok := m.records[hash]; ok && current.Expired(m.nowFunc()) {
			m.remove(current)
		}
		m.lock.Unlock()
		return nil, ErrNotFound
	}

	found := *record
	return &found, nil
}

func (m *MemoryRegistry) Revoke(_ context.Context, token string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if record, ok := m.records[HashToken(token)]; ok {
		m.remove(record)
	}
	return nil
}

func (m *MemoryRegistry) RevokeAll(_ context.Context, ownerID string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for hash := range m.owners[ownerID] {
		delete(m.records, hash)
	}
	delete(m.owners, ownerID)
	return nil
}

// Sweep collects expired hashes under the read lock, then deletes them under the write lock.
func (m *MemoryRegistry) Sweep(_ context.Context) (int, error) {
	now := m.nowFunc()

	m.lock.RLock()
	var expired []string
	for hash, record := range m.records {
		if record.Expired(now) {
			expired = append(expired, hash)
		}
	}
	m.lock.RUnlock()

	if len(expired) == 0 {
		return 0, nil
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	removed := 0
	for _, hash := range expired {
		// Verify may have removed it, or Store replaced it, in between
		if record, ok := m.records[hash]; ok && record.Expired(now) {
			m.remove(record)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of records, expired or not.
func (m *MemoryRegistry) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.records)
}

// remove must be called with the write lock held.
func (m *MemoryRegistry) remove(record *Record) {
	delete(m.records, record.TokenHash)
	m.unindex(record)
}

// unindex must be called with the write lock held.
func (m *MemoryRegistry) unindex(record *Record) {
	hashes, ok := m.owners[record.OwnerID]
	if !ok {
		return
	}
	delete(hashes, record.TokenHash)
	if len(hashes) == 0 {
		delete(m.owners, record.OwnerID)
	}
}
