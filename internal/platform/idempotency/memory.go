package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process memory. It backs local development and
// tests where no Firestore client is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Claim(_ context.Context, key, digest string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	record, ok := s.records[id]
	if !ok || record.expired(now) {
		record = Record{
			Key:       key,
			Digest:    digest,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		s.records[id] = record
		return OutcomeProceed, record, nil
	}

	if record.Digest != digest {
		return OutcomeProceed, Record{}, ErrKeyReused
	}
	if record.Completed {
		return OutcomeReplay, record, nil
	}
	return OutcomeInFlight, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, digest string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	record, ok := s.records[id]
	if ok && record.Digest != digest {
		return ErrKeyReused
	}
	if !ok {
		record = Record{Key: key, Digest: digest, CreatedAt: now}
	}

	record.Completed = true
	record.StatusCode = resp.StatusCode
	record.Header = storableHeader(resp.Header)
	record.Body = append([]byte(nil), resp.Body...)
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordID(key))
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}

	purged := 0
	for id, record := range s.records {
		if !record.expired(now) {
			continue
		}
		delete(s.records, id)
		purged++
		if purged >= limit {
			break
		}
	}
	return purged, nil
}
