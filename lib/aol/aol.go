package aol

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ValentinKolb/sKV/lib/resp"
)

// --------------------------------------------------------------------------
// Sync Modes
// --------------------------------------------------------------------------

// SyncMode selects when appended records are fsynced to disk.
type SyncMode string

const (
	// SyncAlways fsyncs inline after every append. Strongest durability,
	// slowest writes.
	SyncAlways SyncMode = "always"

	// SyncEverySec flushes on every append and fsyncs from a background
	// worker about once per second. The default.
	SyncEverySec SyncMode = "everysec"

	// SyncNo flushes on every append and leaves fsync timing to the OS.
	SyncNo SyncMode = "no"
)

// ParseSyncMode validates a mode string from configuration.
func ParseSyncMode(s string) (SyncMode, error) {
	switch SyncMode(s) {
	case SyncAlways, SyncEverySec, SyncNo:
		return SyncMode(s), nil
	default:
		return "", fmt.Errorf("invalid aol sync mode %q (expected one of: always, everysec, no)", s)
	}
}

const writeBufferSize = 64 * 1024

// --------------------------------------------------------------------------
// Log Type
// --------------------------------------------------------------------------

// Log is the append-only operation log. One Log owns one file opened for
// append; records are RESP command arrays.
type Log struct {
	path   string
	mode   SyncMode
	logger *zap.SugaredLogger

	mu     sync.Mutex
	f      *os.File
	bw     *bufio.Writer
	encBuf []byte
	closed bool

	stopSync chan struct{}
	syncWG   sync.WaitGroup

	rewrite rewriteState
}

// Open opens (creating if necessary) the log file for appending and, in
// everysec mode, starts the fsync worker.
func Open(path string, mode SyncMode, logger *zap.SugaredLogger) (*Log, error) {
	if path == "" {
		return nil, errors.New("aol: path is required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aol: open %s: %w", path, err)
	}

	l := &Log{
		path:     path,
		mode:     mode,
		logger:   logger,
		f:        f,
		bw:       bufio.NewWriterSize(f, writeBufferSize),
		stopSync: make(chan struct{}),
	}

	if mode == SyncEverySec {
		l.syncWG.Add(1)
		go l.syncWorker()
	}

	logger.Infow("append log enabled", "path", path, "sync", string(mode))
	return l, nil
}

// Path returns the live log path.
func (l *Log) Path() string { return l.path }

// --------------------------------------------------------------------------
// Appending
// --------------------------------------------------------------------------

// Append writes one command record and flushes it to the OS. In
// SyncAlways mode the record is also fsynced before Append returns.
//
// Thread-safety: safe for concurrent use.
func (l *Log) Append(args [][]byte) error {
	if len(args) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("aol: log closed")
	}

	l.encBuf = resp.AppendCommand(l.encBuf[:0], args)
	if _, err := l.bw.Write(l.encBuf); err != nil {
		return fmt.Errorf("aol: append: %w", err)
	}
	if err := l.bw.Flush(); err != nil {
		return fmt.Errorf("aol: flush: %w", err)
	}

	if l.mode == SyncAlways {
		if err := l.f.Sync(); err != nil {
			return fmt.Errorf("aol: fsync: %w", err)
		}
	}
	return nil
}

// Sync flushes buffered bytes and fsyncs the file.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if l.closed {
		return nil
	}
	if err := l.bw.Flush(); err != nil {
		return err
	}
	return l.f.Sync()
}

// syncWorker is the everysec fsync goroutine. It never touches
// application state, only the log fd.
func (l *Log) syncWorker() {
	defer l.syncWG.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopSync:
			return
		case <-ticker.C:
			if err := l.Sync(); err != nil {
				l.logger.Warnw("background fsync failed", "err", err)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Close flushes, fsyncs and closes the file, stopping the fsync worker.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	_ = l.syncLocked()
	l.closed = true
	close(l.stopSync)
	err := l.f.Close()
	l.mu.Unlock()

	l.syncWG.Wait()
	return err
}

// reopen swaps the fd to the (just rewritten) file at the log path.
// Called after a successful rewrite rename.
func (l *Log) reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("aol: log closed")
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("aol: reopen %s: %w", l.path, err)
	}

	_ = l.bw.Flush()
	_ = l.f.Close()
	l.f = f
	l.bw = bufio.NewWriterSize(f, writeBufferSize)
	return nil
}
