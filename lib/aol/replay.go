package aol

import (
	"errors"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/ValentinKolb/sKV/lib/resp"
	"github.com/ValentinKolb/sKV/lib/store"
)

// Replay reads the log at path and applies every decodable record to st,
// returning the number of records applied. A missing file is not an
// error (fresh start). Decoding stops at the first incomplete or invalid
// frame: a partial tail is the normal residue of a crash mid-write, so
// everything before it is kept and the tail is dropped with a logged
// warning rather than an error.
//
// Replay applies records directly against the store — the command
// dispatcher is bypassed and nothing is re-logged.
func Replay(path string, st store.IStore, logger *zap.SugaredLogger) (int, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	applied := 0
	pos := 0
	for pos < len(buf) {
		frame, next, err := resp.Decode(buf, pos)
		if err != nil {
			logger.Warnw("append log ends in a partial record, dropping tail",
				"offset", pos, "tail_bytes", len(buf)-pos)
			break
		}
		pos = next

		args, ok := commandArgs(frame)
		if !ok {
			continue
		}
		if applyRecord(st, args) {
			applied++
		}
	}

	return applied, nil
}

// commandArgs unpacks an array-of-bulk-strings frame into raw arguments.
func commandArgs(f resp.Frame) ([][]byte, bool) {
	if f.Kind != resp.KindArray || len(f.Array) == 0 {
		return nil, false
	}
	args := make([][]byte, len(f.Array))
	for i, child := range f.Array {
		if child.Kind != resp.KindBulkString || child.Bulk == nil {
			return nil, false
		}
		args[i] = child.Bulk
	}
	return args, true
}

// applyRecord applies one logged command using the fixed record shapes.
// Unknown or malformed records are skipped; replay favors recovering the
// rest of the log over strictness.
func applyRecord(st store.IStore, args [][]byte) bool {
	switch string(toUpper(args[0])) {
	case "SET":
		return applySet(st, args)

	case "DEL":
		if len(args) < 2 {
			return false
		}
		for _, key := range args[1:] {
			st.Delete(string(key))
		}
		return true

	case "EXPIRE":
		if len(args) != 3 {
			return false
		}
		sec, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			return false
		}
		st.Expire(string(args[1]), sec)
		return true

	case "INCR":
		if len(args) != 2 {
			return false
		}
		return applyIncr(st, string(args[1]))

	default:
		return false
	}
}

// applySet handles "SET k v", "SET k v EX s" and "SET k v PX ms".
func applySet(st store.IStore, args [][]byte) bool {
	if len(args) != 3 && len(args) != 5 {
		return false
	}
	key := string(args[1])

	if len(args) == 3 {
		st.Set(key, args[2])
		return true
	}

	n, err := strconv.ParseInt(string(args[4]), 10, 64)
	if err != nil {
		return false
	}
	switch string(toUpper(args[3])) {
	case "EX":
		st.SetWithTTL(key, args[2], n*1000)
	case "PX":
		st.SetWithTTL(key, args[2], n)
	default:
		return false
	}
	return true
}

// applyIncr recomputes the increment from the current store value:
// absent means 1, a non-integer value means the record is skipped.
func applyIncr(st store.IStore, key string) bool {
	cur, ok := st.Get(key)
	if !ok {
		st.Set(key, []byte("1"))
		return true
	}
	n, err := strconv.ParseInt(string(cur), 10, 64)
	if err != nil {
		return false
	}
	st.Set(key, []byte(strconv.FormatInt(n+1, 10)))
	return true
}

func toUpper(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return out
}
