package gateway

import (
	"sync"

	"github.com/stokehttp/stoker/core/http"
)

// NativeHandler produces a response for one request.
type NativeHandler func(req *http.Request) *http.Response

// OutcomeHandler is the lower-level form for handlers that redirect or fail.
type OutcomeHandler func(req *http.Request) Outcome

type nativeRoute struct {
	handle      OutcomeHandler
	requireBody bool
}

// Native is a small exact-match gateway: method+path handler table plus the
// server-wide asterisk handler for "OPTIONS *". It exists for embedders who
// do not want a routing framework; anything richer should sit behind
// WrapHTTPHandler instead.
type Native struct {
	mu       sync.RWMutex
	routes   map[string]nativeRoute
	asterisk NativeHandler
}

// NewNative creates an empty native gateway.
func NewNative() *Native {
	return &Native{routes: make(map[string]nativeRoute)}
}

// Register binds h to an exact method and path.
func (n *Native) Register(method, path string, h NativeHandler) {
	n.RegisterOutcome(method, path, func(req *http.Request) Outcome {
		return Complete(h(req))
	})
}

// RegisterRequireBody registers h for a handler that cannot work without a
// request body: requests declaring neither Content-Length nor
// Transfer-Encoding are answered 411 before h runs.
func (n *Native) RegisterRequireBody(method, path string, h NativeHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[method+" "+path] = nativeRoute{
		handle: func(req *http.Request) Outcome {
			return Complete(h(req))
		},
		requireBody: true,
	}
}

// RegisterOutcome registers a handler that may redirect or fail explicitly.
func (n *Native) RegisterOutcome(method, path string, h OutcomeHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[method+" "+path] = nativeRoute{handle: h}
}

// RegisterAsterisk replaces the "OPTIONS *" handler.
func (n *Native) RegisterAsterisk(h NativeHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.asterisk = h
}

// Handle implements Gateway.
func (n *Native) Handle(req *http.Request) Outcome {
	if req.Path == "*" {
		n.mu.RLock()
		h := n.asterisk
		n.mu.RUnlock()
		if h == nil {
			h = defaultAsterisk
		}
		return Complete(h(req))
	}

	n.mu.RLock()
	route, ok := n.routes[req.Method+" "+req.Path]
	n.mu.RUnlock()

	if !ok {
		return Complete(http.NewTextResponse(404, "Not Found"))
	}
	if route.requireBody && !req.HasBody() {
		return Complete(http.ErrorResponse(http.ErrLengthRequired()))
	}
	return route.handle(req)
}

func defaultAsterisk(req *http.Request) *http.Response {
	return http.NewTextResponse(200, req.Method)
}
