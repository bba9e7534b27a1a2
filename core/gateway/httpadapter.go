package gateway

import (
	"bytes"
	"io"
	nethttp "net/http"
	"net/url"

	"github.com/stokehttp/stoker/core/http"
)

// HTTPHandler adapts any net/http.Handler to the gateway seam, so routing
// frameworks (chi, the stdlib mux) run on the core unchanged. The handler's
// response is buffered; applications that must stream should implement
// Gateway directly.
type HTTPHandler struct {
	h nethttp.Handler
}

// WrapHTTPHandler wraps h as a Gateway.
func WrapHTTPHandler(h nethttp.Handler) *HTTPHandler {
	return &HTTPHandler{h: h}
}

// Handle implements Gateway. Panics inside the wrapped handler propagate;
// the dispatcher converts them to a 500 and closes the connection.
func (g *HTTPHandler) Handle(req *http.Request) Outcome {
	r := &nethttp.Request{
		Method:        req.Method,
		URL:           &url.URL{Path: req.Path, RawQuery: req.Query},
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        make(nethttp.Header, req.Headers.Len()),
		ContentLength: req.ContentLength,
		RequestURI:    req.RequestURI,
		RemoteAddr:    req.RemoteAddr,
		Host:          req.Headers.Get("Host"),
	}
	r = r.WithContext(req.Context())
	if req.Body != nil {
		r.Body = io.NopCloser(req.Body)
	} else {
		r.Body = nethttp.NoBody
	}
	for _, k := range req.Headers.Keys() {
		for _, v := range req.Headers.Values(k) {
			r.Header.Add(k, v)
		}
	}

	rec := &responseRecorder{header: make(nethttp.Header), status: 200}
	g.h.ServeHTTP(rec, r)

	resp := http.NewResponse(rec.status)
	for k, vs := range rec.header {
		for _, v := range vs {
			resp.Headers.Add(k, v)
		}
	}
	// The body is fully buffered, so the adapter always knows its length.
	resp.Headers.Del("Transfer-Encoding")
	resp.Body = bytes.NewReader(rec.buf.Bytes())
	resp.ContentLength = int64(rec.buf.Len())
	return Complete(resp)
}

// responseRecorder is the minimal net/http.ResponseWriter the adapter
// needs: header map, status, buffered body.
type responseRecorder struct {
	header      nethttp.Header
	status      int
	buf         bytes.Buffer
	wroteHeader bool
}

func (r *responseRecorder) Header() nethttp.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(200)
	}
	return r.buf.Write(p)
}
