package memstore

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// fakeClock is a manually advanced clock for deterministic TTL tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(opts *Options) (*Store, *fakeClock) {
	clock := newFakeClock()
	if opts == nil {
		opts = &Options{}
	}
	opts.Now = clock.Now
	return New(opts), clock
}

func TestSetGet(t *testing.T) {
	s, _ := newTestStore(nil)

	s.Set("k", []byte("v"))
	got, ok := s.Get("k")
	if !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get() = %q, %v; want %q, true", got, ok, "v")
	}

	// Overwrite wins.
	s.Set("k", []byte("v2"))
	got, _ = s.Get("k")
	if !bytes.Equal(got, []byte("v2")) {
		t.Errorf("Get() after overwrite = %q, want %q", got, "v2")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(nil)

	s.Set("k", []byte("abc"))
	got, _ := s.Get("k")
	got[0] = 'X'

	again, _ := s.Get("k")
	if !bytes.Equal(again, []byte("abc")) {
		t.Errorf("stored value mutated through Get result: %q", again)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(nil)

	s.Set("k", []byte("v"))
	if !s.Delete("k") {
		t.Error("first Delete() = false, want true")
	}
	if _, ok := s.Get("k"); ok {
		t.Error("Get() after delete reported the key present")
	}
	if s.Delete("k") {
		t.Error("second Delete() = true, want false")
	}
}

func TestTTLExpiry(t *testing.T) {
	s, clock := newTestStore(nil)

	s.SetWithTTL("k", []byte("v"), 1000)

	if _, ok := s.Get("k"); !ok {
		t.Fatal("key absent immediately after SetWithTTL")
	}
	if ttl := s.TTL("k"); ttl != 1 && ttl != 0 {
		t.Errorf("TTL() = %d, want 0 or 1", ttl)
	}

	clock.Advance(1200 * time.Millisecond)

	if _, ok := s.Get("k"); ok {
		t.Error("key still present past its expiry")
	}
	if ttl := s.TTL("k"); ttl != store.TTLMissing {
		t.Errorf("TTL() after expiry = %d, want %d", ttl, store.TTLMissing)
	}
	// Lazy deletion purged the record.
	if s.Len() != 0 {
		t.Errorf("Len() = %d after lazy purge, want 0", s.Len())
	}
}

func TestTTLCodes(t *testing.T) {
	s, _ := newTestStore(nil)

	if ttl := s.TTL("missing"); ttl != store.TTLMissing {
		t.Errorf("TTL(missing) = %d, want %d", ttl, store.TTLMissing)
	}

	s.Set("plain", []byte("v"))
	if ttl := s.TTL("plain"); ttl != store.TTLNoExpiry {
		t.Errorf("TTL(plain) = %d, want %d", ttl, store.TTLNoExpiry)
	}

	s.SetWithTTL("ttl", []byte("v"), 90_000)
	if ttl := s.TTL("ttl"); ttl != 90 && ttl != 89 {
		t.Errorf("TTL(ttl) = %d, want ~90", ttl)
	}
}

func TestSetWithTTLNonPositiveMeansNoExpiry(t *testing.T) {
	s, clock := newTestStore(nil)

	s.SetWithTTL("a", []byte("v"), 0)
	s.SetWithTTL("b", []byte("v"), -1)
	clock.Advance(24 * time.Hour)

	for _, key := range []string{"a", "b"} {
		if _, ok := s.Get(key); !ok {
			t.Errorf("key %q expired despite no TTL", key)
		}
		if ttl := s.TTL(key); ttl != store.TTLNoExpiry {
			t.Errorf("TTL(%q) = %d, want %d", key, ttl, store.TTLNoExpiry)
		}
	}
}

func TestExists(t *testing.T) {
	s, clock := newTestStore(nil)

	if s.Exists("k") {
		t.Error("Exists() on empty store = true")
	}
	s.SetWithTTL("k", []byte("v"), 500)
	if !s.Exists("k") {
		t.Error("Exists() = false for live key")
	}
	clock.Advance(time.Second)
	if s.Exists("k") {
		t.Error("Exists() = true for expired key")
	}
	if s.Len() != 0 {
		t.Error("expired key not purged by Exists()")
	}
}

func TestExpire(t *testing.T) {
	s, clock := newTestStore(nil)

	if s.Expire("missing", 10) {
		t.Error("Expire() on missing key = true")
	}

	s.Set("k", []byte("v"))
	if !s.Expire("k", 1) {
		t.Error("Expire() on live key = false")
	}
	clock.Advance(1100 * time.Millisecond)
	if _, ok := s.Get("k"); ok {
		t.Error("key survived past Expire deadline")
	}

	// Expire on an already expired key purges and fails.
	s.SetWithTTL("gone", []byte("v"), 100)
	clock.Advance(time.Second)
	if s.Expire("gone", 10) {
		t.Error("Expire() on expired key = true")
	}
	if s.Len() != 0 {
		t.Error("expired key not purged by Expire()")
	}
}

func TestEvictionBound(t *testing.T) {
	const maxKeys = 16
	s, _ := newTestStore(&Options{MaxKeys: maxKeys})

	for i := 0; i < 200; i++ {
		s.Set(fmt.Sprintf("key-%d", i), []byte("v"))
		if n := s.Len(); n > maxKeys {
			t.Fatalf("Len() = %d after insert %d, bound is %d", n, i, maxKeys)
		}
	}

	if stats := s.Stats(); stats.Evictions == 0 {
		t.Error("no evictions recorded despite exceeding the key limit")
	}
}

func TestEvictionPrefersCold(t *testing.T) {
	// With a sample covering the whole keyspace the sampler is exact, so
	// the untouched key must be the victim.
	s, clock := newTestStore(&Options{MaxKeys: 3, SampleSize: 64})

	s.Set("k1", []byte("v"))
	clock.Advance(time.Millisecond)
	s.Set("k2", []byte("v"))
	clock.Advance(time.Millisecond)
	s.Set("k3", []byte("v"))
	clock.Advance(time.Millisecond)

	// Touch k1 and k2; k3 stays cold.
	s.Get("k1")
	clock.Advance(time.Millisecond)
	s.Get("k2")
	clock.Advance(time.Millisecond)

	s.Set("k4", []byte("v"))

	for _, key := range []string{"k1", "k2", "k4"} {
		if !s.Exists(key) {
			t.Errorf("key %q missing, should have survived eviction", key)
		}
	}
	if s.Exists("k3") {
		t.Error("cold key k3 survived, expected it evicted")
	}
}

func TestActiveExpire(t *testing.T) {
	s, clock := newTestStore(nil)

	for i := 0; i < 50; i++ {
		s.SetWithTTL(fmt.Sprintf("ttl-%d", i), []byte("v"), 100)
	}
	for i := 0; i < 10; i++ {
		s.Set(fmt.Sprintf("keep-%d", i), []byte("v"))
	}

	clock.Advance(time.Second)
	s.ActiveExpire()

	// The adaptive repeat keeps sweeping while >= 25% of sampled records
	// are expired, so a fully stale TTL population is drained completely.
	stats := s.Stats()
	if stats.Keys != 10 {
		t.Errorf("Keys = %d after sweep, want 10 survivors", stats.Keys)
	}
	if stats.ExpiredActive != 50 {
		t.Errorf("ExpiredActive = %d, want 50", stats.ExpiredActive)
	}
}

func TestActiveExpireLeavesLiveKeys(t *testing.T) {
	s, clock := newTestStore(nil)

	s.SetWithTTL("live", []byte("v"), int64((10 * time.Minute).Milliseconds()))
	s.SetWithTTL("dead", []byte("v"), 10)
	clock.Advance(time.Second)

	s.ActiveExpire()

	if !s.Exists("live") {
		t.Error("live key removed by active expiration")
	}
	if s.Exists("dead") {
		t.Error("dead key survived active expiration")
	}
}

func TestSnapshotDetached(t *testing.T) {
	s, clock := newTestStore(nil)

	s.Set("a", []byte("1"))
	s.SetWithTTL("b", []byte("2"), 5000)
	s.SetWithTTL("dead", []byte("3"), 10)
	clock.Advance(100 * time.Millisecond)

	snap := s.Snapshot()

	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2 (expired key excluded)", len(snap))
	}
	if rec, ok := snap["a"]; !ok || rec.ExpiresAt != store.NoExpiry {
		t.Errorf("snapshot[a] = %+v, want no-expiry record", rec)
	}
	if rec, ok := snap["b"]; !ok || rec.ExpiresAt == store.NoExpiry {
		t.Errorf("snapshot[b] = %+v, want record with expiry", rec)
	}

	// Mutating the live store must not change the snapshot.
	s.Set("a", []byte("changed"))
	if !bytes.Equal(snap["a"].Value, []byte("1")) {
		t.Error("snapshot aliases live store memory")
	}
}

func TestStatsExpiringCount(t *testing.T) {
	s, _ := newTestStore(nil)

	s.Set("plain", []byte("v"))
	s.SetWithTTL("ttl1", []byte("v"), 60_000)
	s.SetWithTTL("ttl2", []byte("v"), 60_000)

	stats := s.Stats()
	if stats.Keys != 3 {
		t.Errorf("Keys = %d, want 3", stats.Keys)
	}
	if stats.Expiring != 2 {
		t.Errorf("Expiring = %d, want 2", stats.Expiring)
	}
}

func TestEncodingOf(t *testing.T) {
	s, _ := newTestStore(nil)

	s.Set("int", []byte("42"))
	s.Set("short", []byte("hello"))
	s.Set("long", make([]byte, 64))

	tests := []struct {
		key  string
		want store.Encoding
	}{
		{"int", store.EncodingInt},
		{"short", store.EncodingEmbstr},
		{"long", store.EncodingRaw},
	}
	for _, tt := range tests {
		enc, ok := s.EncodingOf(tt.key)
		if !ok || enc != tt.want {
			t.Errorf("EncodingOf(%q) = %v, %v; want %v, true", tt.key, enc, ok, tt.want)
		}
	}

	if _, ok := s.EncodingOf("missing"); ok {
		t.Error("EncodingOf reported a missing key as present")
	}
}

func TestDeduceEncoding(t *testing.T) {
	tests := []struct {
		value string
		want  store.Encoding
	}{
		{"12345", store.EncodingInt},
		{"-7", store.EncodingInt},
		{"9223372036854775807", store.EncodingInt},
		{"9223372036854775808", store.EncodingEmbstr}, // overflows int64
		{"hello", store.EncodingEmbstr},
		{"", store.EncodingEmbstr},
		{"12a", store.EncodingEmbstr},
		{string(make([]byte, 45)), store.EncodingRaw},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := store.DeduceEncoding([]byte(tt.value)); got != tt.want {
				t.Errorf("DeduceEncoding(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
