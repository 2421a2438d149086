package commands

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/aol"
	"github.com/ValentinKolb/sKV/lib/resp"
)

// Shared error frames. Wording matches the wire contract exactly.
var (
	errSyntax       = resp.Error("ERR syntax error")
	errNotAnInteger = resp.Error("ERR value is not an integer or out of range")
	replyOK         = resp.SimpleString("OK")
	replyPong       = resp.SimpleString("PONG")
	errRewriteBusy  = resp.Error("ERR rewrite already in progress")
)

// --------------------------------------------------------------------------
// Connection / Introspection Commands
// --------------------------------------------------------------------------

func handlePing(_ *Handler, _ [][]byte) resp.Frame {
	return replyPong
}

func handleInfo(h *Handler, args [][]byte) resp.Frame {
	var section string
	if len(args) > 1 {
		section = strings.ToLower(string(args[1]))
	}

	stats := h.store.Stats()
	clients := 0
	if h.clients != nil {
		clients = h.clients()
	}

	var sb strings.Builder
	write := func(name string, lines ...string) {
		if section != "" && section != name {
			return
		}
		sb.WriteString("# ")
		// Section headers are capitalized, filter matching is not.
		sb.WriteString(strings.ToUpper(name[:1]) + name[1:])
		sb.WriteString("\r\n")
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteString("\r\n")
		}
	}

	write("server",
		fmt.Sprintf("uptime_in_seconds:%d", int64(time.Since(h.startTime).Seconds())))
	write("clients",
		fmt.Sprintf("connected_clients:%d", clients))
	write("stats",
		fmt.Sprintf("evicted_keys:%d", stats.Evictions),
		fmt.Sprintf("expired_keys:%d", stats.ExpiredLazy+stats.ExpiredActive))
	write("keyspace",
		fmt.Sprintf("keys=%d,expires=%d", stats.Keys, stats.Expiring))

	return resp.BulkString([]byte(sb.String()))
}

// --------------------------------------------------------------------------
// String Commands
// --------------------------------------------------------------------------

func handleSet(h *Handler, args [][]byte) resp.Frame {
	key := string(args[1])
	value := args[2]

	// Option loop: EX and PX each consume one follow-on positive integer;
	// repeating either, or mixing both, is a syntax error.
	var ttlMs int64
	haveTTL := false
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "EX":
			if haveTTL || i+1 >= len(args) {
				return errSyntax
			}
			i++
			seconds, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil {
				return errNotAnInteger
			}
			if seconds <= 0 {
				return errSyntax
			}
			ttlMs = seconds * 1000
			haveTTL = true

		case "PX":
			if haveTTL || i+1 >= len(args) {
				return errSyntax
			}
			i++
			millis, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil {
				return errNotAnInteger
			}
			if millis <= 0 {
				return errSyntax
			}
			ttlMs = millis
			haveTTL = true

		default:
			return errSyntax
		}
	}

	if haveTTL {
		h.store.SetWithTTL(key, value, ttlMs)
	} else {
		h.store.Set(key, value)
	}
	return replyOK
}

func handleGet(h *Handler, args [][]byte) resp.Frame {
	value, ok := h.store.Get(string(args[1]))
	if !ok {
		return resp.NullBulkString()
	}
	return resp.BulkString(value)
}

func handleIncr(h *Handler, args [][]byte) resp.Frame {
	key := string(args[1])

	current, ok := h.store.Get(key)
	if !ok {
		h.store.Set(key, []byte("1"))
		return resp.Integer(1)
	}

	n, err := strconv.ParseInt(string(current), 10, 64)
	if err != nil {
		return errNotAnInteger
	}
	if n == math.MaxInt64 {
		return errNotAnInteger
	}

	n++
	h.store.Set(key, []byte(strconv.FormatInt(n, 10)))
	return resp.Integer(n)
}

// --------------------------------------------------------------------------
// Key Management Commands
// --------------------------------------------------------------------------

func handleDel(h *Handler, args [][]byte) resp.Frame {
	removed := int64(0)
	for _, key := range args[1:] {
		if h.store.Delete(string(key)) {
			removed++
		}
	}
	return resp.Integer(removed)
}

func handleExists(h *Handler, args [][]byte) resp.Frame {
	if h.store.Exists(string(args[1])) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func handleTTL(h *Handler, args [][]byte) resp.Frame {
	return resp.Integer(h.store.TTL(string(args[1])))
}

func handleExpire(h *Handler, args [][]byte) resp.Frame {
	seconds, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errNotAnInteger
	}
	if h.store.Expire(string(args[1]), seconds) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

// --------------------------------------------------------------------------
// Persistence Commands
// --------------------------------------------------------------------------

func handleBgRewriteAOF(h *Handler, _ [][]byte) resp.Frame {
	if h.log == nil {
		return resp.Error("ERR AOF is disabled")
	}

	snapshot := h.store.Snapshot()
	if err := h.log.StartRewrite(snapshot, time.Now().UnixMilli()); err != nil {
		if errors.Is(err, aol.ErrRewriteInProgress) {
			return errRewriteBusy
		}
		return resp.Errorf("ERR rewrite failed: %v", err)
	}
	return resp.SimpleString("Background AOF rewrite started")
}
