package aol

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/memstore"
)

func testLog(t *testing.T, mode SyncMode) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appendonly.aof")
	l, err := Open(path, mode, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func args(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestAppendAndReplay(t *testing.T) {
	for _, mode := range []SyncMode{SyncAlways, SyncEverySec, SyncNo} {
		t.Run(string(mode), func(t *testing.T) {
			l, path := testLog(t, mode)

			records := [][][]byte{
				args("SET", "a", "1"),
				args("SET", "b", "2"),
				args("DEL", "a"),
				args("SET", "c", "3"),
			}
			for _, rec := range records {
				if err := l.Append(rec); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}
			if err := l.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			st := memstore.New(nil)
			applied, err := Replay(path, st, nil)
			if err != nil {
				t.Fatalf("Replay failed: %v", err)
			}
			if applied != len(records) {
				t.Errorf("applied %d records, want %d", applied, len(records))
			}

			if _, ok := st.Get("a"); ok {
				t.Error("deleted key a reappeared after replay")
			}
			if v, _ := st.Get("b"); !bytes.Equal(v, []byte("2")) {
				t.Errorf("b = %q, want 2", v)
			}
			if v, _ := st.Get("c"); !bytes.Equal(v, []byte("3")) {
				t.Errorf("c = %q, want 3", v)
			}
		})
	}
}

func TestReplayMissingFile(t *testing.T) {
	st := memstore.New(nil)
	applied, err := Replay(filepath.Join(t.TempDir(), "nope.aof"), st, nil)
	if err != nil {
		t.Fatalf("Replay of missing file errored: %v", err)
	}
	if applied != 0 {
		t.Errorf("applied = %d, want 0", applied)
	}
}

func TestReplayToleratesTruncatedTail(t *testing.T) {
	l, path := testLog(t, SyncNo)

	if err := l.Append(args("SET", "whole", "record")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Simulate a crash mid-write: a partial record at the end.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("*3\r\n$3\r\nSET\r\n$4\r\nhal"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	st := memstore.New(nil)
	applied, err := Replay(path, st, nil)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1 (tail dropped)", applied)
	}
	if !st.Exists("whole") {
		t.Error("complete record lost")
	}
	if st.Exists("hal") {
		t.Error("partial record applied")
	}
}

func TestReplayShapes(t *testing.T) {
	l, path := testLog(t, SyncNo)

	records := [][][]byte{
		args("SET", "ex", "v", "EX", "60"),
		args("SET", "px", "v", "PX", "60000"),
		args("SET", "plain", "v"),
		args("EXPIRE", "plain", "120"),
		args("INCR", "n"),
		args("INCR", "n"),
		args("SET", "s", "abc"),
		args("INCR", "s"), // non-integer: skipped
		args("DEL", "ex", "missing"),
	}
	for _, rec := range records {
		if err := l.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	st := memstore.New(nil)
	applied, err := Replay(path, st, nil)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	// The non-integer INCR is the only skipped record.
	if applied != len(records)-1 {
		t.Errorf("applied = %d, want %d", applied, len(records)-1)
	}

	if st.Exists("ex") {
		t.Error("ex survived its DEL")
	}
	if ttl := st.TTL("px"); ttl <= 0 || ttl > 60 {
		t.Errorf("TTL(px) = %d, want (0, 60]", ttl)
	}
	if ttl := st.TTL("plain"); ttl <= 60 || ttl > 120 {
		t.Errorf("TTL(plain) = %d, want (60, 120]", ttl)
	}
	if v, _ := st.Get("n"); !bytes.Equal(v, []byte("2")) {
		t.Errorf("n = %q after two INCR, want 2", v)
	}
	if v, _ := st.Get("s"); !bytes.Equal(v, []byte("abc")) {
		t.Errorf("s = %q, want abc untouched by skipped INCR", v)
	}
}

func waitForRewrite(t *testing.T, l *Log) error {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		finished, err := l.PollRewrite()
		if finished {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("rewrite did not finish in time")
	return nil
}

func TestRewriteCompacts(t *testing.T) {
	l, path := testLog(t, SyncNo)

	// A churny history: many dead writes, small live state.
	st := memstore.New(nil)
	for i := 0; i < 100; i++ {
		_ = l.Append(args("SET", "churn", "x"))
	}
	_ = l.Append(args("DEL", "churn"))
	_ = l.Append(args("SET", "keep", "v"))
	st.Set("keep", []byte("v"))

	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := l.StartRewrite(st.Snapshot(), time.Now().UnixMilli()); err != nil {
		t.Fatalf("StartRewrite failed: %v", err)
	}
	if err := waitForRewrite(t, l); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() >= before.Size() {
		t.Errorf("rewrite did not shrink the log: %d -> %d bytes", before.Size(), after.Size())
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("temp file left behind after rewrite")
	}

	// The rewritten log reconstructs the live state.
	fresh := memstore.New(nil)
	if _, err := Replay(path, fresh, nil); err != nil {
		t.Fatalf("Replay of rewritten log failed: %v", err)
	}
	if v, _ := fresh.Get("keep"); !bytes.Equal(v, []byte("v")) {
		t.Errorf("keep = %q after rewrite replay, want v", v)
	}
	if fresh.Exists("churn") {
		t.Error("dead key resurrected by rewrite")
	}
}

func TestRewritePreservesRemainingTTL(t *testing.T) {
	l, path := testLog(t, SyncNo)

	nowMs := time.Now().UnixMilli()
	snapshot := map[string]store.Record{
		"ttl":   {Value: []byte("v"), ExpiresAt: nowMs + 90_000},
		"plain": {Value: []byte("v"), ExpiresAt: store.NoExpiry},
	}

	if err := l.StartRewrite(snapshot, nowMs); err != nil {
		t.Fatal(err)
	}
	if err := waitForRewrite(t, l); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	st := memstore.New(nil)
	if _, err := Replay(path, st, nil); err != nil {
		t.Fatal(err)
	}

	if ttl := st.TTL("ttl"); ttl <= 0 || ttl > 90 {
		t.Errorf("TTL(ttl) = %d, want (0, 90]", ttl)
	}
	if ttl := st.TTL("plain"); ttl != store.TTLNoExpiry {
		t.Errorf("TTL(plain) = %d, want %d", ttl, store.TTLNoExpiry)
	}
}

func TestRewriteInProgressFailsFast(t *testing.T) {
	l, _ := testLog(t, SyncNo)

	// A rewrite stays in progress until PollRewrite has picked up its
	// completion, so the second call must fail however fast the worker
	// finishes the snapshot.
	snapshot := make(map[string]store.Record, 10_000)
	for i := 0; i < 10_000; i++ {
		snapshot[string(rune('a'+i%26))+string(rune('0'+i%10))+"-"+time.Now().String()] =
			store.Record{Value: make([]byte, 128), ExpiresAt: store.NoExpiry}
	}

	if err := l.StartRewrite(snapshot, time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}
	if !l.RewriteInProgress() {
		t.Skip("rewrite finished before the in-progress check")
	}
	if err := l.StartRewrite(snapshot, time.Now().UnixMilli()); !errors.Is(err, ErrRewriteInProgress) {
		t.Errorf("second StartRewrite err = %v, want ErrRewriteInProgress", err)
	}

	if err := waitForRewrite(t, l); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
}

func TestAppendAfterRewrite(t *testing.T) {
	l, path := testLog(t, SyncNo)

	_ = l.Append(args("SET", "a", "1"))

	st := memstore.New(nil)
	st.Set("a", []byte("1"))
	if err := l.StartRewrite(st.Snapshot(), time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}
	if err := waitForRewrite(t, l); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	// The log was reopened; appends land in the rewritten file.
	if err := l.Append(args("SET", "b", "2")); err != nil {
		t.Fatalf("Append after rewrite failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	fresh := memstore.New(nil)
	if _, err := Replay(path, fresh, nil); err != nil {
		t.Fatal(err)
	}
	if !fresh.Exists("a") || !fresh.Exists("b") {
		t.Error("post-rewrite append lost")
	}
}

func TestParseSyncMode(t *testing.T) {
	for _, valid := range []string{"always", "everysec", "no"} {
		if _, err := ParseSyncMode(valid); err != nil {
			t.Errorf("ParseSyncMode(%q) errored: %v", valid, err)
		}
	}
	if _, err := ParseSyncMode("sometimes"); err == nil {
		t.Error("ParseSyncMode accepted an invalid mode")
	}
}
