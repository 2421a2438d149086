// Package client provides a minimal RESP client for sKV. It is used by
// the kv subcommands, the perf tool and the end-to-end tests; it is not
// a general-purpose connection pool.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/sKV/lib/resp"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds connection parameters for one client connection.
type Config struct {
	// Endpoint is the server address, e.g. "localhost:7379".
	Endpoint string

	// TimeoutSecond bounds dial, read and write operations (0 = none).
	TimeoutSecond int

	// TCPConf socket tuning, applied after dial.
	TCPNoDelay      bool
	TCPKeepAliveSec int
	ReadBufferSize  int
	WriteBufferSize int
}

// --------------------------------------------------------------------------
// Client Type
// --------------------------------------------------------------------------

// Client is one RESP connection. Methods are not safe for concurrent use;
// callers needing concurrency open one client per goroutine.
type Client struct {
	conn    net.Conn
	timeout time.Duration

	readBuf []byte
	pos     int
	sendBuf []byte
}

// Dial connects to the configured endpoint and applies the socket
// options.
func Dial(config Config) (*Client, error) {
	timeout := time.Duration(config.TimeoutSecond) * time.Second

	conn, err := net.DialTimeout("tcp", config.Endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", config.Endpoint, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(config.TCPNoDelay)
		if config.TCPKeepAliveSec > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(time.Duration(config.TCPKeepAliveSec) * time.Second)
		}
		if config.ReadBufferSize > 0 {
			_ = tcpConn.SetReadBuffer(config.ReadBufferSize)
		}
		if config.WriteBufferSize > 0 {
			_ = tcpConn.SetWriteBuffer(config.WriteBufferSize)
		}
	}

	return &Client{conn: conn, timeout: timeout}, nil
}

// Close terminates the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// --------------------------------------------------------------------------
// Request / Reply
// --------------------------------------------------------------------------

// Do sends one command (array of bulk strings) and reads one reply frame.
func (c *Client) Do(args ...[]byte) (resp.Frame, error) {
	if len(args) == 0 {
		return resp.Frame{}, errors.New("client: empty command")
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return resp.Frame{}, err
		}
	}

	c.sendBuf = resp.AppendCommand(c.sendBuf[:0], args)
	if _, err := c.conn.Write(c.sendBuf); err != nil {
		return resp.Frame{}, fmt.Errorf("client: write: %w", err)
	}

	return c.readReply()
}

// DoStrings is Do with string arguments, for CLI call sites.
func (c *Client) DoStrings(args ...string) (resp.Frame, error) {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	return c.Do(raw...)
}

// readReply decodes one frame, reading more bytes from the socket until
// the frame is complete. Surplus bytes (pipelined replies) stay buffered
// for the next call.
func (c *Client) readReply() (resp.Frame, error) {
	for {
		if c.pos < len(c.readBuf) {
			frame, next, err := resp.Decode(c.readBuf, c.pos)
			if err == nil {
				c.pos = next
				if c.pos == len(c.readBuf) {
					c.readBuf = c.readBuf[:0]
					c.pos = 0
				}
				return frame.Detach(), nil
			}
			if !errors.Is(err, resp.ErrIncomplete) {
				return resp.Frame{}, fmt.Errorf("client: malformed reply: %w", err)
			}
		}

		chunk := make([]byte, 4096)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.readBuf = append(c.readBuf, chunk[:n]...)
			continue
		}
		if err != nil {
			return resp.Frame{}, fmt.Errorf("client: read: %w", err)
		}
	}
}
