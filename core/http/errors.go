package http

import (
	"errors"
	"fmt"
)

var (
	ErrHeadersSent = errors.New("response headers already sent")
	ErrBodyTooLong = errors.New("request body exceeds declared Content-Length")
)

// ProtocolError is a per-connection protocol failure. Status becomes the
// response status and Diagnostic the literal response body; the connection
// is closed afterwards, never kept alive.
type ProtocolError struct {
	Status     int
	Diagnostic string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Diagnostic)
}

// The protocol error taxonomy. The diagnostic strings are wire-visible and
// must stay byte-stable; clients and tests match on them.
func errMalformedRequestLine() *ProtocolError {
	return &ProtocolError{400, "Malformed Request-Line"}
}

func errBadProtocol() *ProtocolError {
	return &ProtocolError{400, "Malformed Request-Line: bad protocol"}
}

func errBadVersion() *ProtocolError {
	return &ProtocolError{400, "Malformed Request-Line: bad version"}
}

func errVersionUnsupported() *ProtocolError {
	return &ProtocolError{505, "Cannot fulfill request"}
}

func errMalformedURI() *ProtocolError {
	return &ProtocolError{400, "Malformed Request-URI"}
}

func errAbsoluteURI() *ProtocolError {
	return &ProtocolError{400, "Absolute URI not allowed if server is not a proxy."}
}

func errFragmentInURI() *ProtocolError {
	return &ProtocolError{400, "Illegal #fragment in Request-URI."}
}

func errRequestLineTooLong() *ProtocolError {
	return &ProtocolError{414, "Request-URI Too Long"}
}

func errHeadersTooLarge() *ProtocolError {
	return &ProtocolError{413, "Request Entity Too Large: headers exceed server limit"}
}

func errIllegalHeaderLine() *ProtocolError {
	return &ProtocolError{400, "Illegal header line."}
}

func errMalformedContentLength() *ProtocolError {
	return &ProtocolError{400, "Malformed Content-Length Header"}
}

func errBodyTooLarge() *ProtocolError {
	return &ProtocolError{413, "Maximum request body length exceeded"}
}

func errUnknownTransferEncoding() *ProtocolError {
	return &ProtocolError{501, "Unknown transfer encoding"}
}

// ErrRequestTimeout is written when a socket read times out mid-request.
func ErrRequestTimeout() *ProtocolError {
	return &ProtocolError{408, "Request Timeout"}
}

// ErrLengthRequired is written when a handler demands a body but the request
// declared neither Content-Length nor Transfer-Encoding.
func ErrLengthRequired() *ProtocolError {
	return &ProtocolError{411, "Content-Length required"}
}
