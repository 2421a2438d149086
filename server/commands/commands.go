// Package commands implements the sKV command table and dispatcher: the
// mapping from command names to handlers, arity validation, and the
// decision of which commands enter the append log.
package commands

import (
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/aol"
	"github.com/ValentinKolb/sKV/lib/resp"
	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Command Table Types
// --------------------------------------------------------------------------

// Flag carries informational command classification bits.
type Flag uint8

const (
	FlagWrite Flag = 1 << iota
	FlagReadOnly
	FlagFast
)

// handlerFunc executes one validated command. args includes the command
// name at index 0.
type handlerFunc func(h *Handler, args [][]byte) resp.Frame

// commandInfo is one command table row. Arity follows the Redis
// convention: N >= 0 means exactly N arguments including the name, -N
// means at least N.
type commandInfo struct {
	handler handlerFunc
	arity   int
	flags   Flag
}

// table is the static command table.
var table = map[string]commandInfo{
	"PING":         {handlePing, -1, FlagReadOnly | FlagFast},
	"SET":          {handleSet, -3, FlagWrite},
	"GET":          {handleGet, 2, FlagReadOnly | FlagFast},
	"TTL":          {handleTTL, 2, FlagReadOnly | FlagFast},
	"DEL":          {handleDel, -2, FlagWrite},
	"EXPIRE":       {handleExpire, 3, FlagWrite},
	"INCR":         {handleIncr, 2, FlagWrite},
	"EXISTS":       {handleExists, 2, FlagReadOnly | FlagFast},
	"INFO":         {handleInfo, -1, FlagReadOnly},
	"BGREWRITEAOF": {handleBgRewriteAOF, 1, 0},
}

// --------------------------------------------------------------------------
// Handler (dispatcher state)
// --------------------------------------------------------------------------

// Handler dispatches decoded request frames against the store. One
// Handler serves all connections; the store serializes access itself.
type Handler struct {
	store store.IStore
	log   *aol.Log // nil when persistence is disabled

	startTime time.Time

	// clients reports the live connection count for INFO (nil = 0).
	clients func() int
}

// Options carries optional dispatcher wiring.
type Options struct {
	// Clients reports the current connection count, shown by INFO.
	Clients func() int
}

// New creates the dispatcher. log may be nil (persistence disabled).
func New(st store.IStore, log *aol.Log, opts *Options) *Handler {
	h := &Handler{
		store:     st,
		log:       log,
		startTime: time.Now(),
	}
	if opts != nil {
		h.clients = opts.Clients
	}
	return h
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// Dispatch validates and executes one request frame. It returns the
// reply, the resolved command name (empty when the frame was not a
// command at all) and whether the command must be appended to the log
// (a successfully executed write).
func (h *Handler) Dispatch(frame resp.Frame) (reply resp.Frame, name string, logIt bool) {
	args, ok := requestArgs(frame)
	if !ok {
		return resp.Error("ERR invalid command"), "", false
	}

	name = strings.ToUpper(string(args[0]))
	info, ok := table[name]
	if !ok {
		return resp.Errorf("ERR unknown command '%s'", name), name, false
	}

	argc := len(args)
	if (info.arity >= 0 && argc != info.arity) || (info.arity < 0 && argc < -info.arity) {
		return resp.Errorf("ERR wrong number of arguments for '%s' command", name), name, false
	}

	reply = info.handler(h, args)

	logIt = info.flags&FlagWrite != 0 && reply.Kind != resp.KindError
	return reply, name, logIt
}

// Args unpacks a request frame for callers that need the raw arguments
// of an already dispatched command (the server uses this to append write
// commands to the log verbatim).
func Args(frame resp.Frame) ([][]byte, bool) {
	return requestArgs(frame)
}

// requestArgs unpacks a request frame: a non-empty array of non-nil bulk
// strings. Anything else is not a command.
func requestArgs(frame resp.Frame) ([][]byte, bool) {
	if frame.Kind != resp.KindArray || len(frame.Array) == 0 {
		return nil, false
	}
	args := make([][]byte, len(frame.Array))
	for i, child := range frame.Array {
		if child.Kind != resp.KindBulkString || child.Bulk == nil {
			return nil, false
		}
		args[i] = child.Bulk
	}
	return args, true
}
