package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// RecordStore persists lead records by ticket. Put never overwrites.
type RecordStore interface {
	Put(ctx context.Context, rec *Record, ttl time.Duration) error
	Get(ctx context.Context, ticket string) (*Record, error)
}

// TimeIndex is the time-ordered secondary index used for enumeration.
type TimeIndex interface {
	IndexByTime(ctx context.Context, rec *Record, ttl time.Duration) error
	ListRecent(ctx context.Context, limit int) ([]IndexEntry, error)
}

// Store is a backend that provides both the primary records and the time index.
type Store interface {
	RecordStore
	TimeIndex
}

// Keys derives storage keys from a namespace prefix such as "contact".
type Keys struct {
	Prefix string
}

// Record is the primary key for a ticket.
func (k Keys) Record(ticket string) string {
	return k.prefix() + ":" + ticket
}

// TimeIndexPrefix is the shared prefix of every secondary index key.
func (k Keys) TimeIndexPrefix() string {
	return k.prefix() + "_by_time:"
}

// TimeIndex is the secondary index key for rec.
func (k Keys) TimeIndex(rec *Record) string {
	return k.TimeIndexPrefix() + timeIndexSuffix(rec)
}

func (k Keys) prefix() string {
	if p := strings.TrimSpace(k.Prefix); p != "" {
		return p
	}
	return "contact"
}

type memoryItem struct {
	rec       Record
	expiresAt time.Time
}

// InMemoryStore keeps records in a map with the same expiry semantics as the remote backends.
type InMemoryStore struct {
	mu    sync.RWMutex
	keys  Keys
	items map[string]memoryItem
	index map[string]time.Time
	now   func() time.Time
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items: make(map[string]memoryItem),
		index: make(map[string]time.Time),
		now:   time.Now,
	}
}

// WithClock overrides the time source; used to exercise expiry.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Put stores a copy of rec unless its ticket is already present.
func (s *InMemoryStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keys.Record(rec.Ticket)
	now := s.now()
	if existing, ok := s.items[key]; ok && now.Before(existing.expiresAt) {
		return ErrTicketExists
	}
	s.items[key] = memoryItem{rec: *rec, expiresAt: now.Add(ttl)}
	return nil
}

// Get returns a copy of the record, or ErrNotFound when absent or expired.
func (s *InMemoryStore) Get(ctx context.Context, ticket string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[s.keys.Record(ticket)]
	if !ok || !s.now().Before(item.expiresAt) {
		return nil, ErrNotFound
	}
	rec := item.rec
	return &rec, nil
}

// IndexByTime records the ticket under its submission time.
func (s *InMemoryStore) IndexByTime(ctx context.Context, rec *Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[s.keys.TimeIndex(rec)] = s.now().Add(ttl)
	return nil
}

// ListRecent returns live index entries, newest first.
func (s *InMemoryStore) ListRecent(ctx context.Context, limit int) ([]IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	prefix := s.keys.TimeIndexPrefix()
	var keys []string
	for key, expiresAt := range s.index {
		if now.Before(expiresAt) {
			keys = append(keys, key)
		}
	}
	return entriesFromKeys(keys, prefix, limit), nil
}

// Len reports how many live records are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	n := 0
	for _, item := range s.items {
		if now.Before(item.expiresAt) {
			n++
		}
	}
	return n
}

// entriesFromKeys sorts index keys newest first and decodes up to limit entries.
func entriesFromKeys(keys []string, prefix string, limit int) []IndexEntry {
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	entries := make([]IndexEntry, 0, min(len(keys), max(limit, 0)))
	for _, key := range keys {
		if limit > 0 && len(entries) >= limit {
			break
		}
		entry, ok := parseTimeIndexSuffix(strings.TrimPrefix(key, prefix))
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

var _ Store = (*InMemoryStore)(nil)
