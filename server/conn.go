package server

import (
	"errors"
	"io"

	"github.com/ValentinKolb/sKV/lib/resp"
	"github.com/ValentinKolb/sKV/server/commands"
	"github.com/ValentinKolb/sKV/server/telemetry"
)

const readChunkSize = 4096

// handleConnection runs the request/reply loop for one client. The read
// buffer accumulates partial frames across socket reads; every complete
// frame in it is dispatched before replies are flushed in one write,
// which is what makes pipelining work.
func (s *Server) handleConnection(id uint64, conn io.ReadWriteCloser) {
	defer s.wg.Done()
	defer func() {
		s.conns.Delete(id)
		_ = conn.Close()
		telemetry.ConnectionsClosed.Inc()
	}()

	var (
		readBuf  []byte
		writeBuf []byte
		chunk    = make([]byte, readChunkSize)
	)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			readBuf = append(readBuf, chunk[:n]...)

			consumed, ok := s.processFrames(&readBuf, &writeBuf)
			if !ok {
				// Protocol error: terminate without a reply.
				return
			}

			// Drop consumed bytes, keeping any partial frame suffix.
			if consumed > 0 {
				readBuf = append(readBuf[:0], readBuf[consumed:]...)
			}

			if len(writeBuf) > 0 {
				if _, werr := conn.Write(writeBuf); werr != nil {
					s.logger.Debugw("send failed, dropping connection", "conn", id, "err", werr)
					return
				}
				writeBuf = writeBuf[:0]
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !s.shuttingDown.Load() {
				s.logger.Debugw("read failed, dropping connection", "conn", id, "err", err)
			}
			return
		}
	}
}

// processFrames decodes and executes every complete frame in readBuf,
// appending replies to writeBuf. It returns the number of bytes consumed
// and ok == false on a protocol error.
func (s *Server) processFrames(readBuf, writeBuf *[]byte) (int, bool) {
	pos := 0
	for {
		frame, next, err := resp.Decode(*readBuf, pos)
		if err != nil {
			if errors.Is(err, resp.ErrIncomplete) {
				return pos, true
			}
			telemetry.ProtocolErrors.Inc()
			return pos, false
		}
		pos = next

		*writeBuf = resp.AppendFrame(*writeBuf, s.execute(frame))
	}
}

// execute runs one command under the server's execution mutex: dispatch,
// then append to the log if the command was a successful write. Holding
// the mutex across both steps keeps log order identical to store apply
// order.
func (s *Server) execute(frame resp.Frame) resp.Frame {
	s.execMu.Lock()
	reply, name, logIt := s.handler.Dispatch(frame)

	if logIt && s.log != nil {
		if args, ok := commands.Args(frame); ok {
			if err := s.log.Append(args); err != nil {
				// Transient log failure: warn and keep serving.
				s.logger.Warnw("append log write failed", "command", name, "err", err)
			} else {
				telemetry.AOLRecords.Inc()
			}
		}
	}
	s.execMu.Unlock()

	if name != "" {
		telemetry.CommandCounter(name).Inc()
	}
	if reply.Kind == resp.KindError {
		telemetry.ErrorReplies.Inc()
	}
	return reply
}
