// Package gateway is the seam between the connection core and application
// logic. The core hands a parsed request to a Gateway and gets back an
// explicit Outcome; everything above this line (routers, sessions,
// frameworks) is somebody else's business.
package gateway

import (
	"github.com/stokehttp/stoker/core/http"
)

// Gateway handles one parsed request and reports what happened.
type Gateway interface {
	Handle(req *http.Request) Outcome
}

// Outcome is the result of one gateway invocation: completed with a
// response, an internal redirect to a new path, or a failure. The
// dispatcher loops over Redirects explicitly; no control flow rides on
// panics.
type Outcome interface {
	outcome()
}

// Completed carries the response to write.
type Completed struct {
	Response *http.Response
}

// Redirect asks the dispatcher to re-run the gateway at a new path on the
// same request.
type Redirect struct {
	Path string
}

// Failed reports an application error; the dispatcher synthesizes a 500
// and marks the connection non-reusable.
type Failed struct {
	Err error
}

func (Completed) outcome() {}
func (Redirect) outcome()  {}
func (Failed) outcome()    {}

// Complete wraps a response in a Completed outcome.
func Complete(resp *http.Response) Outcome {
	return Completed{Response: resp}
}

// RedirectTo builds a Redirect outcome.
func RedirectTo(path string) Outcome {
	return Redirect{Path: path}
}

// Fail builds a Failed outcome.
func Fail(err error) Outcome {
	return Failed{Err: err}
}

// Func adapts a plain function to the Gateway interface.
type Func func(req *http.Request) Outcome

// Handle implements Gateway.
func (f Func) Handle(req *http.Request) Outcome {
	return f(req)
}
