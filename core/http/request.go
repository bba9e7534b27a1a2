package http

import (
	"context"
	"io"
	"strings"
)

// Request is one HTTP transaction on a connection. It is owned by exactly
// one worker for its lifetime and never shared across goroutines.
type Request struct {
	Method     string
	RequestURI string // raw request target as received
	Path       string
	Query      string // raw query string without the '?'
	Proto      string // "HTTP/1.1"
	ProtoMajor int
	ProtoMinor int

	Headers *HeaderMap

	// Body is bounded: length-delimited or chunked per the request framing.
	// ContentLength is -1 when the body is chunked.
	Body          io.Reader
	ContentLength int64
	Chunked       bool

	RemoteAddr string
	LocalAddr  string

	// ctx is set by the dispatcher before the gateway runs; it carries the
	// trace span for this request.
	ctx context.Context
}

// Context returns the dispatch context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// SetContext installs the dispatch context for gateways to read.
func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// HasBody reports whether the request declared a body at all.
func (r *Request) HasBody() bool {
	return r.Chunked || r.ContentLength > 0
}

// KeepAlive reports whether the request permits connection reuse:
// HTTP/1.1 unless "Connection: close", HTTP/1.0 only with an explicit
// "Connection: keep-alive".
func (r *Request) KeepAlive() bool {
	if r.ProtoMajor == 1 && r.ProtoMinor == 1 {
		return !r.hasConnectionToken("close")
	}
	if r.ProtoMajor == 1 && r.ProtoMinor == 0 {
		return r.hasConnectionToken("keep-alive")
	}
	return false
}

// WantsContinue reports whether the client sent "Expect: 100-continue".
func (r *Request) WantsContinue() bool {
	return strings.EqualFold(strings.TrimSpace(r.Headers.Get("Expect")), "100-continue")
}

func (r *Request) hasConnectionToken(token string) bool {
	for _, v := range r.Headers.Values("Connection") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Drain consumes and discards whatever is left of the request body, so the
// connection is positioned at the next request line. Returns an error when
// the body cannot be fully read (the connection must then be closed).
func (r *Request) Drain() error {
	if r.Body == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, r.Body)
	return err
}
