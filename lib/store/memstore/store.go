package memstore

import (
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Defaults for eviction behavior.
const (
	DefaultSampleSize = 5
)

// Options configures the engine during initialization.
type Options struct {
	// MaxKeys bounds the map size; 0 means unbounded.
	MaxKeys int

	// SampleSize is the number of candidates inspected per eviction
	// (0 = DefaultSampleSize).
	SampleSize int

	// Now overrides the clock, used by tests (nil = time.Now).
	Now func() time.Time
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// entry is one live record. Value bytes are owned by the entry: writes
// copy their input so callers cannot mutate stored state.
type entry struct {
	value      []byte
	expiresAt  int64 // wall clock ms, or store.NoExpiry
	lastAccess int64 // wall clock ms of the most recent read or write
	encoding   store.Encoding
}

// Store is the in-memory engine: a single map guarded by one mutex, so
// every operation is atomic with respect to every other and no entry is
// ever observed mid-mutation.
type Store struct {
	mu         sync.Mutex
	data       map[string]*entry
	maxKeys    int
	sampleSize int
	now        func() time.Time

	// cumulative counters, guarded by mu
	evictions     uint64
	expiredLazy   uint64
	expiredActive uint64
}

// New creates an engine with the provided options (nil = defaults).
//
// Thread-safety: the returned store is safe for concurrent use; all
// methods serialize on one internal mutex.
func New(opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		data:       make(map[string]*entry),
		maxKeys:    opts.MaxKeys,
		sampleSize: sampleSize,
		now:        now,
	}
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// expired reports whether e is past its expiry at the given time.
func (e *entry) expired(nowMs int64) bool {
	return e.expiresAt != store.NoExpiry && e.expiresAt <= nowMs
}

// --------------------------------------------------------------------------
// Interface Methods — Writes (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Set(key string, value []byte) {
	s.SetWithTTL(key, value, 0)
}

func (s *Store) SetWithTTL(key string, value []byte, ttlMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfNeeded()

	nowMs := s.nowMs()
	expiresAt := store.NoExpiry
	if ttlMs > 0 {
		expiresAt = nowMs + ttlMs
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.data[key] = &entry{
		value:      valueCopy,
		expiresAt:  expiresAt,
		lastAccess: nowMs,
		encoding:   store.DeduceEncoding(value),
	}
}

func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return false
	}
	delete(s.data, key)
	if e.expired(s.nowMs()) {
		// An expired record was already semantically absent.
		s.expiredLazy++
		return false
	}
	return true
}

func (s *Store) Expire(key string, seconds int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return false
	}

	nowMs := s.nowMs()
	if e.expired(nowMs) {
		delete(s.data, key)
		s.expiredLazy++
		return false
	}

	e.expiresAt = nowMs + seconds*1000
	return true
}

// --------------------------------------------------------------------------
// Interface Methods — Reads (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	e.lastAccess = s.nowMs()

	// Hand out a copy so callers cannot mutate the stored bytes.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(key)
	return ok
}

func (s *Store) TTL(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return store.TTLMissing
	}
	if e.expiresAt == store.NoExpiry {
		return store.TTLNoExpiry
	}
	return (e.expiresAt - s.nowMs()) / 1000
}

// lookup finds a live entry, purging it when expired (lazy deletion).
// Callers must hold s.mu.
func (s *Store) lookup(key string) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.nowMs()) {
		delete(s.data, key)
		s.expiredLazy++
		return nil, false
	}
	return e, true
}

// EncodingOf reports the encoding hint recorded for a live key. The hint
// is informational only; it is deduced at write time and exposed for
// introspection.
func (s *Store) EncodingOf(key string) (store.Encoding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return store.EncodingRaw, false
	}
	return e.encoding, true
}

// --------------------------------------------------------------------------
// Snapshot and Statistics
// --------------------------------------------------------------------------

func (s *Store) Snapshot() map[string]store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.nowMs()
	out := make(map[string]store.Record, len(s.data))
	for k, e := range s.data {
		if e.expired(nowMs) {
			continue
		}
		valueCopy := make([]byte, len(e.value))
		copy(valueCopy, e.value)
		out[k] = store.Record{Value: valueCopy, ExpiresAt: e.expiresAt}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *Store) Stats() store.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.nowMs()
	expiring := 0
	for _, e := range s.data {
		if e.expiresAt != store.NoExpiry && e.expiresAt > nowMs {
			expiring++
		}
	}

	return store.Stats{
		Keys:          len(s.data),
		Expiring:      expiring,
		Evictions:     s.evictions,
		ExpiredLazy:   s.expiredLazy,
		ExpiredActive: s.expiredActive,
	}
}
