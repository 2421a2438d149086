package resp

import "strconv"

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// AppendFrame appends the canonical encoding of f to dst and returns the
// extended slice. Nil bulk strings serialize as "$-1\r\n"; nil arrays are
// never produced by sKV but encode as "*-1\r\n" for symmetry.
func AppendFrame(dst []byte, f Frame) []byte {
	switch f.Kind {
	case KindSimpleString, KindError:
		dst = append(dst, byte(f.Kind))
		dst = append(dst, f.Str...)
		return append(dst, crlf...)

	case KindInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, f.Int, 10)
		return append(dst, crlf...)

	case KindBulkString:
		if f.Bulk == nil {
			return append(dst, "$-1\r\n"...)
		}
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(f.Bulk)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, f.Bulk...)
		return append(dst, crlf...)

	case KindArray:
		if f.Array == nil {
			return append(dst, "*-1\r\n"...)
		}
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(f.Array)), 10)
		dst = append(dst, crlf...)
		for _, child := range f.Array {
			dst = AppendFrame(dst, child)
		}
		return dst

	default:
		// Unreachable for frames built through this package.
		return dst
	}
}

// Encode returns the canonical encoding of f as a fresh slice.
func Encode(f Frame) []byte {
	return AppendFrame(nil, f)
}

// AppendCommand appends the request encoding of args (array of bulk
// strings) to dst. This is the record format of the append log and the
// request format of every RESP client.
func AppendCommand(dst []byte, args [][]byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, crlf...)
	for _, a := range args {
		if a == nil {
			dst = append(dst, "$-1\r\n"...)
			continue
		}
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(a)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, a...)
		dst = append(dst, crlf...)
	}
	return dst
}
