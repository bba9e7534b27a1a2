package http

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Limits bound what the parser will accept. Zero values fall back to the
// package defaults; the request-line limit never drops below 256 bytes,
// the floor clients may rely on.
type Limits struct {
	MaxRequestLine int
	MaxHeaderSize  int
	MaxBodySize    int64

	// ProxyMode permits absolute-URI request targets.
	ProxyMode bool
}

const (
	defaultMaxRequestLine = 8192
	defaultMaxHeaderSize  = 65536
	defaultMaxBodySize    = 100 << 20
)

func (l Limits) requestLine() int {
	if l.MaxRequestLine <= 0 {
		return defaultMaxRequestLine
	}
	if l.MaxRequestLine < 256 {
		return 256
	}
	return l.MaxRequestLine
}

func (l Limits) headerSize() int {
	if l.MaxHeaderSize <= 0 {
		return defaultMaxHeaderSize
	}
	return l.MaxHeaderSize
}

func (l Limits) bodySize() int64 {
	if l.MaxBodySize <= 0 {
		return defaultMaxBodySize
	}
	return l.MaxBodySize
}

// errLineTooLong is internal; callers map it to the 414 or 413 taxonomy
// depending on which section overflowed.
var errLineTooLong = errors.New("line exceeds limit")

// readLine reads one CRLF- (or bare LF-) terminated line, including the
// terminator, accumulating across bufio refills up to limit bytes.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > limit {
			return nil, errLineTooLong
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return line, err
		}
		return line, nil
	}
}

func trimLineEnding(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// ReadRequest parses the next request head off br and wires up a bounded
// body reader. A clean close before the first byte returns io.EOF; protocol
// violations return a *ProtocolError carrying the response to write.
func ReadRequest(br *bufio.Reader, lim Limits) (*Request, error) {
	raw, err := readLine(br, lim.requestLine())
	if err == errLineTooLong {
		return nil, errRequestLineTooLong()
	}
	if err != nil {
		if len(trimLineEnding(raw)) == 0 {
			return nil, io.EOF
		}
		return nil, err
	}

	line := trimLineEnding(raw)
	if len(line) == 0 {
		// Tolerate one empty line before the request line (RFC 7230 3.5).
		raw, err = readLine(br, lim.requestLine())
		if err == errLineTooLong {
			return nil, errRequestLineTooLong()
		}
		if err != nil {
			return nil, io.EOF
		}
		line = trimLineEnding(raw)
	}

	req := &Request{Headers: NewHeaderMap(), Proto: "HTTP/1.1"}

	if err := parseRequestLine(req, string(line), lim); err != nil {
		return nil, err
	}
	if err := parseHeaders(req, br, lim); err != nil {
		return nil, err
	}
	if err := setupBody(req, br, lim); err != nil {
		return nil, err
	}
	return req, nil
}

func parseRequestLine(req *Request, line string, lim Limits) error {
	for i := 0; i < len(line); i++ {
		if line[i] < 0x20 || line[i] > 0x7e {
			return errMalformedURI()
		}
	}

	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return errMalformedRequestLine()
	}
	method, target, proto := parts[0], parts[1], parts[2]

	major, minor, err := parseProtocol(proto)
	if err != nil {
		return err
	}
	req.Method = method
	req.Proto = proto
	req.ProtoMajor = major
	req.ProtoMinor = minor
	req.RequestURI = target

	return parseTarget(req, target, lim)
}

func parseProtocol(proto string) (major, minor int, err error) {
	slash := strings.IndexByte(proto, '/')
	if slash == -1 || proto[:slash] != "HTTP" {
		return 0, 0, errBadProtocol()
	}
	ver := proto[slash+1:]
	dot := strings.IndexByte(ver, '.')
	if dot == -1 {
		return 0, 0, errBadVersion()
	}
	major, errMaj := strconv.Atoi(ver[:dot])
	minor, errMin := strconv.Atoi(ver[dot+1:])
	if errMaj != nil || errMin != nil || major < 0 || minor < 0 {
		return 0, 0, errBadVersion()
	}
	if major != 1 || minor > 1 {
		return 0, 0, errVersionUnsupported()
	}
	return major, minor, nil
}

func parseTarget(req *Request, target string, lim Limits) error {
	if strings.IndexByte(target, '#') != -1 {
		return errFragmentInURI()
	}

	// Asterisk form is reserved for server-wide OPTIONS.
	if target == "*" {
		if req.Method != "OPTIONS" {
			return errMalformedURI()
		}
		req.Path = "*"
		return nil
	}

	if i := strings.Index(target, "://"); i > 0 && isScheme(target[:i]) {
		if !lim.ProxyMode {
			return errAbsoluteURI()
		}
		rest := target[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			target = rest[j:]
		} else {
			target = "/"
		}
	}

	if len(target) == 0 || target[0] != '/' {
		return errMalformedURI()
	}

	if q := strings.IndexByte(target, '?'); q != -1 {
		req.Path = target[:q]
		req.Query = target[q+1:]
	} else {
		req.Path = target
	}
	return nil
}

func isScheme(s string) bool {
	if len(s) == 0 || !isAlpha(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlpha(c) && (c < '0' || c > '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func parseHeaders(req *Request, br *bufio.Reader, lim Limits) error {
	total := 0
	maxSize := lim.headerSize()
	var lastKey string

	for {
		raw, err := readLine(br, maxSize)
		if err == errLineTooLong {
			return errHeadersTooLarge()
		}
		if err != nil {
			return io.ErrUnexpectedEOF
		}
		total += len(raw)
		if total > maxSize {
			return errHeadersTooLarge()
		}

		line := trimLineEnding(raw)
		if len(line) == 0 {
			return nil
		}

		// Obsolete line folding: continuation of the previous value.
		if line[0] == ' ' || line[0] == '\t' {
			if lastKey == "" {
				return errIllegalHeaderLine()
			}
			vs := req.Headers.kv[CanonicalKey(lastKey)]
			vs[len(vs)-1] += " " + strings.TrimSpace(string(line))
			continue
		}

		colon := strings.IndexByte(string(line), ':')
		if colon <= 0 {
			return errIllegalHeaderLine()
		}
		key := string(line[:colon])
		if strings.ContainsAny(key, " \t") {
			return errIllegalHeaderLine()
		}
		value := strings.TrimSpace(string(line[colon+1:]))

		req.Headers.Add(key, value)
		lastKey = key
	}
}

func setupBody(req *Request, br *bufio.Reader, lim Limits) error {
	if te := req.Headers.Get("Transfer-Encoding"); te != "" {
		codings := strings.Split(te, ",")
		last := strings.TrimSpace(codings[len(codings)-1])
		if !strings.EqualFold(last, "chunked") {
			return errUnknownTransferEncoding()
		}
		req.Chunked = true
		req.ContentLength = -1
		req.Body = newChunkedReader(br, lim.bodySize())
		return nil
	}

	cl := req.Headers.Get("Content-Length")
	if cl == "" {
		req.ContentLength = 0
		req.Body = emptyReader{}
		return nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil {
		// A syntactically valid number too big for int64 is a size
		// problem, not a parse problem.
		if errors.Is(err, strconv.ErrRange) {
			return errBodyTooLarge()
		}
		return errMalformedContentLength()
	}
	if n < 0 {
		return errMalformedContentLength()
	}
	if n > lim.bodySize() {
		return errBodyTooLarge()
	}

	req.ContentLength = n
	if n == 0 {
		req.Body = emptyReader{}
	} else {
		req.Body = newLengthReader(br, n)
	}
	return nil
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }
