package core

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/stokehttp/stoker/core/http"
)

// ConnState is the per-connection keep-alive state machine.
type ConnState int32

// Connection states
const (
	StateAwaitingRequestLine ConnState = iota
	StateReadingHeaders
	StateReadingBody
	StateDispatching
	StateWritingResponse
	StateClosed
)

// String returns the string representation of the connection state
func (s ConnState) String() string {
	switch s {
	case StateAwaitingRequestLine:
		return "awaiting-request-line"
	case StateReadingHeaders:
		return "reading-headers"
	case StateReadingBody:
		return "reading-body"
	case StateDispatching:
		return "dispatching"
	case StateWritingResponse:
		return "writing-response"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection wraps one accepted socket. Exactly one worker owns it for its
// whole keep-alive lifetime; only State is observed from outside.
type Connection struct {
	srv *Server
	rwc net.Conn
	br  *bufio.Reader
	bw  *bufio.Writer

	state      atomic.Int32
	remoteAddr string
	localAddr  string
	requests   int
}

func newConnection(srv *Server, rwc net.Conn) *Connection {
	return &Connection{
		srv:        srv,
		rwc:        rwc,
		br:         bufio.NewReaderSize(rwc, 4096),
		bw:         bufio.NewWriterSize(rwc, 4096),
		remoteAddr: rwc.RemoteAddr().String(),
		localAddr:  rwc.LocalAddr().String(),
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Connection) setState(s ConnState) {
	c.state.Store(int32(s))
}

// serve runs the keep-alive loop: sequential requests off one socket until
// the client closes, a protocol error occurs, the idle window expires, or
// the server drains.
func (c *Connection) serve() {
	defer func() {
		if r := recover(); r != nil {
			c.srv.bus.Log("connection %s: panic: %v", c.remoteAddr, r)
		}
		c.close()
	}()

	for {
		c.setState(StateAwaitingRequestLine)
		cfg := c.srv.cfg.Load()

		// First request gets the full socket timeout; between requests the
		// shorter idle keep-alive window applies.
		idle := cfg.KeepAliveTimeout
		if c.requests == 0 {
			idle = cfg.SocketTimeout
		}
		c.rwc.SetReadDeadline(time.Now().Add(idle))

		// No next request inside the idle window closes silently: the
		// client simply did not reuse the connection.
		if _, err := c.br.Peek(1); err != nil {
			return
		}

		c.rwc.SetReadDeadline(time.Now().Add(cfg.SocketTimeout))
		c.rwc.SetWriteDeadline(time.Now().Add(cfg.SocketTimeout))

		if !c.serveOne() {
			return
		}
		c.requests++
	}
}

// serveOne handles a single request/response exchange and reports whether
// the connection may be reused.
func (c *Connection) serveOne() bool {
	c.setState(StateReadingHeaders)
	cfg := c.srv.cfg.Load()
	w := http.NewResponseWriter(c.bw, cfg.Protocol)

	req, err := http.ReadRequest(c.br, c.srv.limits())
	if err != nil {
		c.setState(StateWritingResponse)
		// A read timeout has consumed the shared deadline; give the error
		// response its own write window.
		c.rwc.SetWriteDeadline(time.Now().Add(cfg.SocketTimeout))
		c.writeFailure(w, err)
		return false
	}
	req.RemoteAddr = c.remoteAddr
	req.LocalAddr = c.localAddr

	c.setState(StateReadingBody)
	if req.WantsContinue() && req.HasBody() {
		if err := w.WriteContinue(); err != nil {
			return false
		}
	}

	c.setState(StateDispatching)
	start := time.Now()
	resp := c.srv.dispatcher.Dispatch(context.Background(), req)

	keepAlive := req.KeepAlive() && !c.srv.draining.Load()

	c.setState(StateWritingResponse)
	// Dispatch may have outlived the deadlines set before the read; the
	// response write and the body drain get a fresh window.
	c.rwc.SetWriteDeadline(time.Now().Add(cfg.SocketTimeout))
	c.rwc.SetReadDeadline(time.Now().Add(cfg.SocketTimeout))
	reusable, werr := w.WriteResponse(req, resp, keepAlive)
	c.srv.observeRequest(resp.Status, time.Since(start))
	if werr != nil {
		return false
	}

	// Keep-alive requires the request body fully consumed, or the next
	// request line would start mid-body.
	if err := req.Drain(); err != nil {
		return false
	}
	return reusable
}

// writeFailure renders a read/parse failure. Protocol errors carry their
// wire form; read timeouts mid-request become a 408; anything else (client
// vanished) gets no response at all.
func (c *Connection) writeFailure(w *http.ResponseWriter, err error) {
	var pe *http.ProtocolError
	if errors.As(err, &pe) {
		if _, werr := w.WriteResponse(nil, http.ErrorResponse(pe), false); werr == nil {
			c.srv.observeRequest(pe.Status, 0)
		}
		return
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		pe := http.ErrRequestTimeout()
		if _, werr := w.WriteResponse(nil, http.ErrorResponse(pe), false); werr == nil {
			c.srv.observeRequest(pe.Status, 0)
		}
	}
}

func (c *Connection) close() {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateClosed)
	c.bw.Flush()
	c.rwc.Close()
	c.srv.removeConn(c)
}
