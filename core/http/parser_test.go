package http

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func readReq(t *testing.T, raw string, lim Limits) (*Request, error) {
	t.Helper()
	br := bufio.NewReader(strings.NewReader(raw))
	return ReadRequest(br, lim)
}

func wantProtocolError(t *testing.T, err error, status int, diagnostic string) {
	t.Helper()
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProtocolError, got %v", err)
	}
	if pe.Status != status {
		t.Errorf("Expected status %d, got %d", status, pe.Status)
	}
	if pe.Diagnostic != diagnostic {
		t.Errorf("Expected diagnostic %q, got %q", diagnostic, pe.Diagnostic)
	}
}

func TestParseSimpleGet(t *testing.T) {
	req, err := readReq(t, "GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\n", Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if req.Method != "GET" {
		t.Errorf("Expected method GET, got %s", req.Method)
	}
	if req.Path != "/hello" {
		t.Errorf("Expected path /hello, got %s", req.Path)
	}
	if req.ProtoMajor != 1 || req.ProtoMinor != 1 {
		t.Errorf("Expected HTTP/1.1, got %d.%d", req.ProtoMajor, req.ProtoMinor)
	}
	if req.Headers.Get("Host") != "example.com" {
		t.Errorf("Expected Host example.com, got %q", req.Headers.Get("Host"))
	}
	if req.HasBody() {
		t.Error("GET without Content-Length should not have a body")
	}
}

func TestParseQueryString(t *testing.T) {
	req, err := readReq(t, "GET /search?q=go&n=10 HTTP/1.1\r\n\r\n", Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if req.Path != "/search" {
		t.Errorf("Expected path /search, got %s", req.Path)
	}
	if req.Query != "q=go&n=10" {
		t.Errorf("Expected query q=go&n=10, got %s", req.Query)
	}
	if req.RequestURI != "/search?q=go&n=10" {
		t.Errorf("Expected raw target preserved, got %s", req.RequestURI)
	}
}

func TestParseLeadingBlankLine(t *testing.T) {
	req, err := readReq(t, "\r\nGET / HTTP/1.1\r\n\r\n", Limits{})
	if err != nil {
		t.Fatalf("ReadRequest should tolerate one leading blank line: %v", err)
	}
	if req.Method != "GET" {
		t.Errorf("Expected method GET, got %s", req.Method)
	}
}

func TestParseCleanCloseIsEOF(t *testing.T) {
	_, err := readReq(t, "", Limits{})
	if err != io.EOF {
		t.Fatalf("Expected io.EOF on clean close, got %v", err)
	}
}

func TestParseMalformedRequestLines(t *testing.T) {
	cases := []struct {
		name       string
		raw        string
		status     int
		diagnostic string
	}{
		{"two parts", "GET /\r\n\r\n", 400, "Malformed Request-Line"},
		{"four parts", "GET / HTTP/1.1 extra\r\n\r\n", 400, "Malformed Request-Line"},
		{"bad protocol", "GET / HTTPS/1.1\r\n\r\n", 400, "Malformed Request-Line: bad protocol"},
		{"no slash", "GET / HTTP\r\n\r\n", 400, "Malformed Request-Line: bad protocol"},
		{"no dot", "GET / HTTP/11\r\n\r\n", 400, "Malformed Request-Line: bad version"},
		{"alpha version", "GET / HTTP/1.x\r\n\r\n", 400, "Malformed Request-Line: bad version"},
		{"http 2", "GET / HTTP/2.0\r\n\r\n", 505, "Cannot fulfill request"},
		{"http 1.2", "GET / HTTP/1.2\r\n\r\n", 505, "Cannot fulfill request"},
		{"non-ascii uri", "GET /h\xc3\xa9llo HTTP/1.1\r\n\r\n", 400, "Malformed Request-URI"},
		{"relative target", "GET hello HTTP/1.1\r\n\r\n", 400, "Malformed Request-URI"},
		{"asterisk non-options", "GET * HTTP/1.1\r\n\r\n", 400, "Malformed Request-URI"},
		{"fragment", "GET /page#top HTTP/1.1\r\n\r\n", 400, "Illegal #fragment in Request-URI."},
		{"absolute uri", "GET http://example.com/ HTTP/1.1\r\n\r\n", 400, "Absolute URI not allowed if server is not a proxy."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readReq(t, tc.raw, Limits{})
			wantProtocolError(t, err, tc.status, tc.diagnostic)
		})
	}
}

func TestParseAsteriskOptions(t *testing.T) {
	req, err := readReq(t, "OPTIONS * HTTP/1.1\r\n\r\n", Limits{})
	if err != nil {
		t.Fatalf("OPTIONS * should parse: %v", err)
	}
	if req.Path != "*" {
		t.Errorf("Expected path *, got %s", req.Path)
	}
}

func TestParseAbsoluteURIInProxyMode(t *testing.T) {
	req, err := readReq(t, "GET http://example.com/x?y=1 HTTP/1.1\r\n\r\n", Limits{ProxyMode: true})
	if err != nil {
		t.Fatalf("Absolute URI should parse in proxy mode: %v", err)
	}
	if req.Path != "/x" {
		t.Errorf("Expected path /x, got %s", req.Path)
	}
	if req.Query != "y=1" {
		t.Errorf("Expected query y=1, got %s", req.Query)
	}
}

func TestParseRequestLineTooLong(t *testing.T) {
	raw := "GET /" + strings.Repeat("a", 9000) + " HTTP/1.1\r\n\r\n"
	_, err := readReq(t, raw, Limits{})
	wantProtocolError(t, err, 414, "Request-URI Too Long")
}

func TestRequestLineLimitFloor(t *testing.T) {
	// A configured limit below 256 is raised to 256, so a ~200-byte line
	// still parses even when the limit says 64.
	target := "/" + strings.Repeat("a", 180)
	raw := "GET " + target + " HTTP/1.1\r\n\r\n"
	req, err := readReq(t, raw, Limits{MaxRequestLine: 64})
	if err != nil {
		t.Fatalf("Request line within the 256-byte floor should parse: %v", err)
	}
	if req.Path != target {
		t.Errorf("Expected path %s, got %s", target, req.Path)
	}
}

func TestParseHeadersTooLarge(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("v", 2048) + "\r\n\r\n"
	_, err := readReq(t, raw, Limits{MaxHeaderSize: 512})
	wantProtocolError(t, err, 413, "Request Entity Too Large: headers exceed server limit")
}

func TestParseIllegalHeaderLines(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no colon", "GET / HTTP/1.1\r\nBadHeader\r\n\r\n"},
		{"empty key", "GET / HTTP/1.1\r\n: value\r\n\r\n"},
		{"space in key", "GET / HTTP/1.1\r\nBad Key: value\r\n\r\n"},
		{"orphan continuation", "GET / HTTP/1.1\r\n value\r\n\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readReq(t, tc.raw, Limits{})
			wantProtocolError(t, err, 400, "Illegal header line.")
		})
	}
}

func TestParseObsoleteLineFolding(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Long: first\r\n\tsecond\r\n\r\n"
	req, err := readReq(t, raw, Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if got := req.Headers.Get("X-Long"); got != "first second" {
		t.Errorf("Expected folded value 'first second', got %q", got)
	}
}

func TestParseRepeatedHeaderKeepsOrder(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nAccept: text/html\r\naccept: text/plain\r\n\r\n"
	req, err := readReq(t, raw, Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	vs := req.Headers.Values("Accept")
	if len(vs) != 2 || vs[0] != "text/html" || vs[1] != "text/plain" {
		t.Errorf("Expected values in arrival order, got %v", vs)
	}
}

func TestParseContentLengthBody(t *testing.T) {
	raw := "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	req, err := readReq(t, raw, Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if req.ContentLength != 5 {
		t.Errorf("Expected ContentLength 5, got %d", req.ContentLength)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("Body read failed: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("Expected body hello, got %q", body)
	}
}

func TestParseContentLengthErrors(t *testing.T) {
	cases := []struct {
		name       string
		cl         string
		status     int
		diagnostic string
	}{
		{"negative", "-1", 400, "Malformed Content-Length Header"},
		{"garbage", "abc", 400, "Malformed Content-Length Header"},
		// 2**64 overflows int64 but is a well-formed number; it is a size
		// violation, not a syntax one.
		{"overflow", "18446744073709551616", 413, "Maximum request body length exceeded"},
		{"over limit", "2048", 413, "Maximum request body length exceeded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := "POST / HTTP/1.1\r\nContent-Length: " + tc.cl + "\r\n\r\n"
			_, err := readReq(t, raw, Limits{MaxBodySize: 1024})
			wantProtocolError(t, err, tc.status, tc.diagnostic)
		})
	}
}

func TestParseOverflowContentLengthIsRepeatable(t *testing.T) {
	// The same oversized request must produce the same 413 every time; an
	// overflow never crashes the parser or poisons shared state.
	for i := 0; i < 3; i++ {
		raw := "POST / HTTP/1.1\r\nContent-Length: 18446744073709551616\r\n\r\n"
		_, err := readReq(t, raw, Limits{})
		wantProtocolError(t, err, 413, "Maximum request body length exceeded")
	}
}

func TestParseUnknownTransferEncoding(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n"
	_, err := readReq(t, raw, Limits{})
	wantProtocolError(t, err, 501, "Unknown transfer encoding")
}

func TestParseChunkedBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6;ext=1\r\n world\r\n0\r\n\r\n"
	req, err := readReq(t, raw, Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if !req.Chunked {
		t.Error("Expected Chunked to be set")
	}
	if req.ContentLength != -1 {
		t.Errorf("Expected ContentLength -1 for chunked, got %d", req.ContentLength)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("Body read failed: %v", err)
	}
	if string(body) != "hello world" {
		t.Errorf("Expected 'hello world', got %q", body)
	}
}

func TestParseChunkedTrailersSkipped(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nabc\r\n0\r\nX-Checksum: 99\r\n\r\n"
	req, err := readReq(t, raw, Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("Body read failed: %v", err)
	}
	if string(body) != "abc" {
		t.Errorf("Expected abc, got %q", body)
	}
}

func TestParseInvalidChunkSize(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n"
	req, err := readReq(t, raw, Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	_, err = io.ReadAll(req.Body)
	wantProtocolError(t, err, 400, "Invalid chunk size")
}

func TestParseChunkedBodyOverLimit(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"400\r\n" + strings.Repeat("a", 1024) + "\r\n0\r\n\r\n"
	req, err := readReq(t, raw, Limits{MaxBodySize: 512})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	_, err = io.ReadAll(req.Body)
	wantProtocolError(t, err, 413, "Maximum request body length exceeded")
}

func TestParseTruncatedBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nshort"
	req, err := readReq(t, raw, Limits{})
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	_, err = io.ReadAll(req.Body)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("Expected io.ErrUnexpectedEOF for truncated body, got %v", err)
	}
}

func TestParsePipelinedRequests(t *testing.T) {
	raw := "POST /a HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc" +
		"GET /b HTTP/1.1\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(raw))

	req1, err := ReadRequest(br, Limits{})
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if err := req1.Drain(); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	req2, err := ReadRequest(br, Limits{})
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if req2.Path != "/b" {
		t.Errorf("Expected path /b, got %s", req2.Path)
	}
}
