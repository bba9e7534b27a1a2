package gateway

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stokehttp/stoker/core/http"
)

// DefaultMaxRedirects bounds the internal-redirect loop.
const DefaultMaxRedirects = 10

// Dispatcher drives a Gateway for one request at a time: it loops over
// internal redirects, converts failures and panics into a synthesized 500,
// and guarantees the connection state stays coherent for keep-alive.
type Dispatcher struct {
	gw           Gateway
	maxRedirects int
	tracer       trace.Tracer
	logf         func(format string, args ...interface{})
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer records one span per dispatch.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithLogf routes dispatcher diagnostics (tracebacks, redirect loops) to a
// logger, typically the bus log channel.
func WithLogf(logf func(format string, args ...interface{})) Option {
	return func(d *Dispatcher) { d.logf = logf }
}

// WithMaxRedirects overrides the internal-redirect bound.
func WithMaxRedirects(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxRedirects = n
		}
	}
}

// NewDispatcher creates a dispatcher over gw.
func NewDispatcher(gw Gateway, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gw:           gw,
		maxRedirects: DefaultMaxRedirects,
		logf:         func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the gateway and always returns a well-formed response. A
// response with Close set means the connection must not be reused.
func (d *Dispatcher) Dispatch(ctx context.Context, req *http.Request) (resp *http.Response) {
	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.Start(ctx, "dispatch",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.target", req.RequestURI),
			))
		defer func() {
			span.SetAttributes(attribute.Int("http.status_code", resp.Status))
			span.End()
		}()
	}
	req.SetContext(ctx)

	for hops := 0; hops <= d.maxRedirects; hops++ {
		switch out := d.handleSafe(req).(type) {
		case Completed:
			if out.Response == nil {
				d.logf("gateway returned Completed with nil response for %s %s", req.Method, req.RequestURI)
				return d.internalError()
			}
			return out.Response

		case Redirect:
			req.Path = out.Path
			req.RequestURI = out.Path

		case Failed:
			d.logf("gateway error for %s %s: %v", req.Method, req.RequestURI, out.Err)
			return d.internalError()
		}
	}

	d.logf("internal redirect limit (%d) exceeded for %s %s", d.maxRedirects, req.Method, req.RequestURI)
	return d.internalError()
}

// handleSafe isolates the gateway: a panic becomes a Failed outcome instead
// of unwinding into the connection loop.
func (d *Dispatcher) handleSafe(req *http.Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed{Err: fmt.Errorf("gateway panic: %v", r)}
		}
	}()
	return d.gw.Handle(req)
}

// internalError synthesizes the 500 written when the application failed.
// Close is set: partially-consumed state cannot be trusted for keep-alive.
func (d *Dispatcher) internalError() *http.Response {
	resp := http.NewTextResponse(500, "Internal Server Error")
	resp.Close = true
	return resp
}
