package core

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/stokehttp/stoker/config"
	"github.com/stokehttp/stoker/core/bus"
	"github.com/stokehttp/stoker/core/gateway"
	"github.com/stokehttp/stoker/core/http"
	"github.com/stokehttp/stoker/core/pools"

	"go.opentelemetry.io/otel/trace"
)

// RequestObserver receives server events for metrics export. All methods
// must be safe for concurrent use.
type RequestObserver interface {
	ObserveRequest(status int, d time.Duration)
	ConnOpened()
	ConnClosed()
}

// Server owns the listening socket, the worker pool, and every live
// connection. Lifecycle transitions arrive over the bus; the acceptor
// goroutine is the only thing touching the listener.
type Server struct {
	// cfg is an immutable snapshot; reloads build a new Config and swap
	// the pointer, so readers on worker goroutines never see a torn write.
	cfg        atomic.Pointer[config.Config]
	bus        *bus.Bus
	dispatcher *gateway.Dispatcher
	pool       *pools.WorkerPool
	observer   RequestObserver
	tracer     trace.Tracer

	listener   net.Listener
	acceptDone chan struct{}

	mu    sync.Mutex
	conns map[*Connection]struct{}

	started  atomic.Bool
	draining atomic.Bool

	stats struct {
		accepted atomic.Uint64
		served   atomic.Uint64
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithObserver attaches a metrics observer.
func WithObserver(o RequestObserver) ServerOption {
	return func(s *Server) { s.observer = o }
}

// WithTracer records one span per dispatched request.
func WithTracer(t trace.Tracer) ServerOption {
	return func(s *Server) { s.tracer = t }
}

// NewServer creates a server dispatching to gw, wired to b for lifecycle
// events and logging.
func NewServer(cfg *config.Config, b *bus.Bus, gw gateway.Gateway, opts ...ServerOption) *Server {
	s := &Server{
		bus:   b,
		conns: make(map[*Connection]struct{}),
	}
	s.cfg.Store(cfg)
	for _, opt := range opts {
		opt(s)
	}

	dopts := []gateway.Option{gateway.WithLogf(b.Log)}
	if s.tracer != nil {
		dopts = append(dopts, gateway.WithTracer(s.tracer))
	}
	s.dispatcher = gateway.NewDispatcher(gw, dopts...)

	s.pool = pools.NewWorkerPool(pools.Options{
		MinWorkers:  cfg.MinThreads,
		MaxWorkers:  cfg.MaxThreads,
		QueueSize:   cfg.RequestQueueSize,
		IdleTimeout: 30 * time.Second,
		OnWorkerStart: func(id int) {
			_ = b.Publish(bus.ChStartThread, id)
		},
		OnWorkerStop: func(id int) {
			_ = b.Publish(bus.ChStopThread, id)
		},
	})

	return s
}

// Attach subscribes the server's lifecycle handlers on its bus. Start runs
// late (priority 75) so infrastructure subscribers are up before the socket
// opens; stop runs early (25) so the socket closes before they wind down.
func (s *Server) Attach() {
	s.bus.Subscribe(bus.ChStart, "httpserver", 75, func(...interface{}) error {
		return s.Start()
	})
	s.bus.Subscribe(bus.ChStop, "httpserver", 25, func(...interface{}) error {
		return s.Stop()
	})
	s.bus.Subscribe(bus.ChGraceful, "httpserver", 50, func(...interface{}) error {
		return s.Graceful()
	})
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Config returns the current configuration snapshot. Callers must treat it
// as read-only; reconfiguration goes through Reconfigure with a fresh copy.
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// Reconfigure swaps in a new configuration snapshot. Per-request knobs take
// effect on their next read; pool sizing is applied by a following Graceful.
func (s *Server) Reconfigure(cfg *config.Config) {
	s.cfg.Store(cfg)
}

func (s *Server) limits() http.Limits {
	cfg := s.cfg.Load()
	return http.Limits{
		MaxRequestLine: cfg.MaxRequestLineSize,
		MaxHeaderSize:  cfg.MaxRequestHeaderSize,
		MaxBodySize:    cfg.MaxRequestBodySize,
		ProxyMode:      cfg.ProxyMode,
	}
}

// Start binds the listener and begins accepting. Bind and TLS failures are
// returned before any worker starts.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	cfg := s.cfg.Load()
	if err := cfg.Validate(); err != nil {
		s.started.Store(false)
		return err
	}

	ln, err := Listen(cfg)
	if err != nil {
		s.started.Store(false)
		return err
	}
	s.listener = ln
	s.draining.Store(false)
	s.acceptDone = make(chan struct{})

	s.pool.Start()
	go s.acceptLoop()

	s.bus.Log("Serving on %s", ln.Addr())
	return nil
}

// Stop closes the listener (unblocking accept), nudges idle connections,
// and waits up to the shutdown timeout for in-flight requests. Connections
// still open past the deadline are closed regardless.
func (s *Server) Stop() error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}

	s.draining.Store(true)
	s.listener.Close()
	<-s.acceptDone

	// Idle keep-alive connections are parked in their read window; an
	// immediate deadline turns that into a silent close.
	s.mu.Lock()
	for c := range s.conns {
		if c.State() == StateAwaitingRequestLine {
			c.rwc.SetReadDeadline(time.Now())
		}
	}
	s.mu.Unlock()

	cfg := s.cfg.Load()
	err := s.pool.Close(cfg.ShutdownTimeout)
	if errors.Is(err, pools.ErrShutdownTimeout) {
		s.mu.Lock()
		stragglers := len(s.conns)
		for c := range s.conns {
			c.rwc.Close()
		}
		s.mu.Unlock()
		s.bus.Log("shutdown timeout (%s) exceeded, closed %d connection(s)", cfg.ShutdownTimeout, stragglers)
	}

	s.bus.Log("HTTP server stopped on %s", cfg.BindAddr)
	return nil
}

// Graceful re-applies pool sizing from the current configuration snapshot
// without touching the listening socket or live connections.
func (s *Server) Graceful() error {
	cfg := s.cfg.Load()
	s.pool.Resize(cfg.MinThreads, cfg.MaxThreads)
	s.bus.Log("graceful: worker pool resized to %d..%d", cfg.MinThreads, cfg.MaxThreads)
	return nil
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)

	for {
		rwc, err := s.listener.Accept()
		if err != nil {
			if s.draining.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if isTransientAccept(err) {
				s.bus.Log("accept: transient: %v", err)
				continue
			}
			s.bus.Log("accept: %v", err)
			return
		}

		s.tuneConn(rwc)
		c := newConnection(s, rwc)
		s.addConn(c)
		s.stats.accepted.Add(1)

		// Submit blocks while the pending queue is full; that pause is the
		// accept-loop backpressure instead of unbounded queue growth.
		if !s.pool.Submit(c.serve) {
			c.close()
			return
		}
	}
}

// isTransientAccept reports accept errors that the loop should survive,
// like a connection aborted between SYN and accept.
func isTransientAccept(err error) bool {
	return errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}

func (s *Server) tuneConn(rwc net.Conn) {
	if tcp, ok := rwc.(*net.TCPConn); ok {
		if s.cfg.Load().TCPNoDelay {
			tcp.SetNoDelay(true)
		}
		tcp.SetKeepAlive(true)
		tcp.SetKeepAlivePeriod(30 * time.Second)
	}
}

func (s *Server) addConn(c *Connection) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.ConnOpened()
	}
}

func (s *Server) removeConn(c *Connection) {
	s.mu.Lock()
	_, tracked := s.conns[c]
	delete(s.conns, c)
	s.mu.Unlock()
	if tracked && s.observer != nil {
		s.observer.ConnClosed()
	}
}

func (s *Server) observeRequest(status int, d time.Duration) {
	s.stats.served.Add(1)
	if s.observer != nil {
		s.observer.ObserveRequest(status, d)
	}
}
