package aol

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/ValentinKolb/sKV/lib/resp"
	"github.com/ValentinKolb/sKV/lib/store"
)

// ErrRewriteInProgress is returned by StartRewrite while a previous
// rewrite has not finished.
var ErrRewriteInProgress = errors.New("aol: rewrite already in progress")

// rewriteState tracks the single in-flight background rewrite.
type rewriteState struct {
	inProgress atomic.Bool
	done       chan error
}

// StartRewrite launches a background rewrite of the log from a detached
// snapshot taken at nowMs. The snapshot must not be mutated afterwards.
//
// The worker serializes every record as a minimal reconstruction command
// ("SET k v", plus "PX <remaining>" for keys with a live TTL) into
// <path>.tmp, fsyncs, and atomically renames the temp file over the live
// log. Completion is observed via PollRewrite; the live log stays intact
// until the rename.
func (l *Log) StartRewrite(snapshot map[string]store.Record, nowMs int64) error {
	if !l.rewrite.inProgress.CompareAndSwap(false, true) {
		return ErrRewriteInProgress
	}

	l.rewrite.done = make(chan error, 1)
	l.logger.Infow("background rewrite started", "keys", len(snapshot))

	go func() {
		l.rewrite.done <- writeSnapshot(l.path, snapshot, nowMs)
	}()
	return nil
}

// RewriteInProgress reports whether a rewrite has been started and its
// completion has not yet been picked up by PollRewrite.
func (l *Log) RewriteInProgress() bool {
	return l.rewrite.inProgress.Load()
}

// PollRewrite checks for rewrite completion without blocking. It returns
// finished == true exactly once per rewrite; on success the live log has
// been replaced and is reopened for appending. The server calls this from
// its maintenance tick.
func (l *Log) PollRewrite() (finished bool, err error) {
	if !l.rewrite.inProgress.Load() {
		return false, nil
	}

	select {
	case err := <-l.rewrite.done:
		if err == nil {
			err = l.reopen()
		}
		l.rewrite.inProgress.Store(false)
		if err != nil {
			l.logger.Warnw("background rewrite failed", "err", err)
		} else {
			l.logger.Infow("background rewrite finished", "path", l.path)
		}
		return true, err
	default:
		return false, nil
	}
}

// writeSnapshot serializes the snapshot into <path>.tmp and renames it
// onto path. Runs in the rewrite goroutine; it shares no state with the
// live log beyond the final rename.
func writeSnapshot(path string, snapshot map[string]store.Record, nowMs int64) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("aol: create %s: %w", tmpPath, err)
	}

	bw := bufio.NewWriterSize(f, writeBufferSize)
	var encBuf []byte
	for key, rec := range snapshot {
		args := [][]byte{[]byte("SET"), []byte(key), rec.Value}
		if rec.ExpiresAt != store.NoExpiry {
			remaining := rec.ExpiresAt - nowMs
			if remaining <= 0 {
				// Expired between snapshot and serialization.
				continue
			}
			args = append(args, []byte("PX"), []byte(strconv.FormatInt(remaining, 10)))
		}

		encBuf = resp.AppendCommand(encBuf[:0], args)
		if _, err := bw.Write(encBuf); err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("aol: write %s: %w", tmpPath, err)
		}
	}

	if err := bw.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("aol: flush %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("aol: fsync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("aol: close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("aol: rename %s: %w", tmpPath, err)
	}
	return nil
}
