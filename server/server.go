package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/ValentinKolb/sKV/lib/aol"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/server/commands"
	"github.com/ValentinKolb/sKV/server/common"
	"github.com/ValentinKolb/sKV/server/telemetry"
)

// maintenanceInterval is the cadence of active expiration and rewrite
// polling.
const maintenanceInterval = time.Second

// --------------------------------------------------------------------------
// Server Type
// --------------------------------------------------------------------------

// Server is one sKV server instance. Create with New, run with Serve,
// stop with Shutdown.
type Server struct {
	config  common.ServerConfig
	store   store.IStore
	log     *aol.Log // nil when persistence is disabled
	handler *commands.Handler
	logger  *zap.SugaredLogger

	// execMu serializes dispatch + log append, making the store a
	// single-owner resource and keeping log order identical to apply
	// order across connections.
	execMu sync.Mutex

	listenerMu sync.Mutex
	listener   net.Listener
	conns      *xsync.MapOf[uint64, net.Conn]
	nextConnID atomic.Uint64

	shutdown     chan struct{}
	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// New wires a server from its collaborators. log may be nil, in which
// case the server runs without persistence.
func New(config common.ServerConfig, st store.IStore, log *aol.Log, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		config:   config,
		store:    st,
		log:      log,
		logger:   logger,
		conns:    xsync.NewMapOf[uint64, net.Conn](),
		shutdown: make(chan struct{}),
	}
	s.handler = commands.New(st, log, &commands.Options{
		Clients: func() int { return s.conns.Size() },
	})
	return s
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Serve listens on the configured endpoint and accepts connections until
// Shutdown is called. A failure to bind or listen is returned to the
// caller (unrecoverable startup error).
func (s *Server) Serve() error {
	listener, err := net.Listen("tcp", s.config.Endpoint)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Endpoint, err)
	}
	return s.ServeListener(listener)
}

// ServeListener runs the accept loop on an already bound listener.
func (s *Server) ServeListener(listener net.Listener) error {
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	s.logger.Infow("serving", "endpoint", listener.Addr().String())

	s.wg.Add(1)
	go s.maintenanceLoop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				break
			}
			s.logger.Errorw("accept failed", "err", err)
			continue
		}

		s.tuneConn(conn)
		id := s.nextConnID.Add(1)
		s.conns.Store(id, conn)
		telemetry.ConnectionsAccepted.Inc()

		s.wg.Add(1)
		go s.handleConnection(id, conn)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the bound listener address (nil before Serve).
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and closes every client connection; it does
// not wait. Serve returns once the connection goroutines have drained.
// Buffered replies of open connections are discarded, matching the
// connection termination policy.
func (s *Server) Shutdown() {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	close(s.shutdown)

	s.listenerMu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.listenerMu.Unlock()
	s.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
}

// maintenanceLoop drives periodic background work: the active expiration
// sweep and, when persistence is on, the non-blocking rewrite poll.
func (s *Server) maintenanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.store.ActiveExpire()
			if s.log != nil {
				_, _ = s.log.PollRewrite()
			}
		}
	}
}

// tuneConn applies the configured socket options to an accepted
// connection.
func (s *Server) tuneConn(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}

	_ = tcpConn.SetNoDelay(s.config.TCP.TCPNoDelay)
	if s.config.Socket.WriteBufferSize > 0 {
		_ = tcpConn.SetWriteBuffer(s.config.Socket.WriteBufferSize)
	}
	if s.config.Socket.ReadBufferSize > 0 {
		_ = tcpConn.SetReadBuffer(s.config.Socket.ReadBufferSize)
	}
	if s.config.TCP.TCPKeepAliveSec > 0 {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(time.Duration(s.config.TCP.TCPKeepAliveSec) * time.Second)
	}
	if s.config.TCP.TCPLingerSec >= 0 {
		_ = tcpConn.SetLinger(s.config.TCP.TCPLingerSec)
	}
}
