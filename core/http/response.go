package http

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/stokehttp/stoker/core/pools"
)

// Response is what a gateway hands back for one request. ContentLength -1
// means the application did not declare a length; the writer then streams
// chunked (HTTP/1.1) or close-delimited (HTTP/1.0).
type Response struct {
	Status        int
	Headers       *HeaderMap
	Body          io.Reader
	ContentLength int64

	// Close forces the connection closed after this response regardless of
	// the request's keep-alive preference.
	Close bool
}

// NewResponse creates an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{
		Status:        status,
		Headers:       NewHeaderMap(),
		ContentLength: -1,
	}
}

// NewTextResponse creates a text/plain response with a fixed body.
func NewTextResponse(status int, body string) *Response {
	r := NewResponse(status)
	r.Headers.Set("Content-Type", "text/plain")
	r.Body = strings.NewReader(body)
	r.ContentLength = int64(len(body))
	return r
}

// NewBytesResponse creates a response with a fixed byte body.
func NewBytesResponse(status int, contentType string, body []byte) *Response {
	r := NewResponse(status)
	r.Headers.Set("Content-Type", contentType)
	r.Body = strings.NewReader(string(body))
	r.ContentLength = int64(len(body))
	return r
}

// ErrorResponse renders a protocol error as its wire form: the literal
// diagnostic as a text/plain body, connection closed.
func ErrorResponse(pe *ProtocolError) *Response {
	r := NewTextResponse(pe.Status, pe.Diagnostic)
	r.Close = true
	return r
}

// ResponseWriter writes one response per request onto the connection's
// buffered writer, enforcing the headers-already-sent guard.
type ResponseWriter struct {
	bw          *bufio.Writer
	proto       string // protocol version advertised in the status line
	wroteHeader bool
	status      int
}

// NewResponseWriter creates a writer advertising proto ("HTTP/1.1").
func NewResponseWriter(bw *bufio.Writer, proto string) *ResponseWriter {
	return &ResponseWriter{bw: bw, proto: proto}
}

// HeadersSent reports whether the status line and headers went out; once
// true the response status is immutable.
func (w *ResponseWriter) HeadersSent() bool {
	return w.wroteHeader
}

// Status returns the status written, 0 before headers are sent.
func (w *ResponseWriter) Status() int {
	return w.status
}

// Reset prepares the writer for the next request on the same connection.
func (w *ResponseWriter) Reset() {
	w.wroteHeader = false
	w.status = 0
}

// WriteContinue emits an interim 100 Continue. It does not count as the
// final response, so the headers-sent guard stays down.
func (w *ResponseWriter) WriteContinue() error {
	if w.wroteHeader {
		return ErrHeadersSent
	}
	if _, err := w.bw.WriteString(w.proto + " 100 Continue\r\n\r\n"); err != nil {
		return err
	}
	return w.bw.Flush()
}

// WriteResponse sends resp for req and reports whether the connection
// framing permits reuse afterwards. Status and headers are committed on
// entry; a second call for the same request fails with ErrHeadersSent.
func (w *ResponseWriter) WriteResponse(req *Request, resp *Response, keepAlive bool) (reusable bool, err error) {
	if w.wroteHeader {
		return false, ErrHeadersSent
	}

	headers := resp.Headers.Clone()
	if !headers.Has("Date") {
		headers.Set("Date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"))
	}
	if !headers.Has("Server") {
		headers.Set("Server", "stoker")
	}

	if resp.Close {
		keepAlive = false
	}

	bodyless := BodylessStatus(resp.Status)
	isHead := req != nil && req.Method == "HEAD"
	chunked := false

	switch {
	case bodyless:
		headers.Del("Transfer-Encoding")
		if resp.Status != 304 {
			headers.Del("Content-Length")
		}
	case resp.ContentLength >= 0:
		headers.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	case resp.Body == nil:
		headers.Set("Content-Length", "0")
	case w.proto == "HTTP/1.1":
		headers.Set("Transfer-Encoding", "chunked")
		chunked = true
	default:
		// HTTP/1.0 with unknown length: the close delimits the body.
		keepAlive = false
	}

	if !keepAlive {
		headers.Set("Connection", "close")
	} else if req != nil && req.ProtoMajor == 1 && req.ProtoMinor == 0 {
		// HTTP/1.0 defaults to close, so reuse must be advertised or the
		// client abandons a socket the server keeps parked.
		headers.Set("Connection", "keep-alive")
	}

	w.wroteHeader = true
	w.status = resp.Status

	if _, err := w.bw.WriteString(w.proto + " " + strconv.Itoa(resp.Status) + " " + StatusText(resp.Status) + "\r\n"); err != nil {
		return false, err
	}
	if _, err := headers.WriteTo(w.bw); err != nil {
		return false, err
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return false, err
	}

	if bodyless || isHead {
		// The application's body stream still gets consumed so generators
		// observe a complete run, but nothing reaches the wire.
		if resp.Body != nil {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				return false, err
			}
		}
		return keepAlive, w.bw.Flush()
	}

	if resp.Body != nil {
		if chunked {
			if err := w.writeChunked(resp.Body); err != nil {
				return false, err
			}
		} else {
			n, err := io.Copy(w.bw, resp.Body)
			if err != nil {
				return false, err
			}
			if resp.ContentLength >= 0 && n != resp.ContentLength {
				return false, fmt.Errorf("response body: wrote %d of %d declared bytes", n, resp.ContentLength)
			}
		}
	} else if resp.ContentLength > 0 {
		return false, fmt.Errorf("response declared %d body bytes with no body", resp.ContentLength)
	}

	return keepAlive, w.bw.Flush()
}

func (w *ResponseWriter) writeChunked(body io.Reader) error {
	buf := pools.GetBytes(8192)
	defer pools.PutBytes(buf)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.bw.WriteString(strconv.FormatInt(int64(n), 16) + "\r\n"); werr != nil {
				return werr
			}
			if _, werr := w.bw.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := w.bw.WriteString("\r\n"); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	_, err := w.bw.WriteString("0\r\n\r\n")
	return err
}
