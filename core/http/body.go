package http

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// lengthReader delivers exactly n bytes from the connection buffer and then
// EOF. A short underlying read is a broken connection, surfaced as
// io.ErrUnexpectedEOF.
type lengthReader struct {
	r io.Reader
	n int64
}

func newLengthReader(r io.Reader, n int64) *lengthReader {
	return &lengthReader{r: r, n: n}
}

func (l *lengthReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if err == io.EOF && l.n > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func errBadChunk() *ProtocolError {
	return &ProtocolError{400, "Invalid chunk size"}
}

// chunkedReader decodes a chunked transfer-coded body, enforcing the
// configured body-size cap across all chunks and skipping trailers.
type chunkedReader struct {
	br       *bufio.Reader
	limit    int64
	consumed int64
	left     int64 // unread bytes of the current chunk
	done     bool
	err      error
}

func newChunkedReader(br *bufio.Reader, limit int64) *chunkedReader {
	return &chunkedReader{br: br, limit: limit}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}

	if c.left == 0 {
		if err := c.beginChunk(); err != nil {
			c.err = err
			return 0, err
		}
		if c.done {
			return 0, io.EOF
		}
	}

	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.br.Read(p)
	c.left -= int64(n)
	c.consumed += int64(n)
	if c.consumed > c.limit {
		c.err = errBodyTooLarge()
		return n, c.err
	}
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		c.err = err
		return n, err
	}
	if c.left == 0 {
		if err := c.expectCRLF(); err != nil {
			c.err = err
			return n, err
		}
	}
	return n, nil
}

// beginChunk reads the next chunk-size line; the zero chunk flips to trailer
// handling and marks the body complete.
func (c *chunkedReader) beginChunk() error {
	raw, err := readLine(c.br, 256)
	if err == errLineTooLong {
		return errBadChunk()
	}
	if err != nil {
		return io.ErrUnexpectedEOF
	}

	line := string(trimLineEnding(raw))
	if i := strings.IndexByte(line, ';'); i != -1 {
		// Chunk extensions are tolerated and ignored.
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	size, err := strconv.ParseUint(line, 16, 63)
	if err != nil {
		return errBadChunk()
	}

	if size == 0 {
		if err := c.skipTrailers(); err != nil {
			return err
		}
		c.done = true
		return nil
	}

	if c.consumed+int64(size) > c.limit {
		return errBodyTooLarge()
	}
	c.left = int64(size)
	return nil
}

func (c *chunkedReader) expectCRLF() error {
	raw, err := readLine(c.br, 2)
	if err != nil || len(trimLineEnding(raw)) != 0 {
		return errBadChunk()
	}
	return nil
}

func (c *chunkedReader) skipTrailers() error {
	// Trailer block shares the header-section budget.
	total := 0
	for {
		raw, err := readLine(c.br, defaultMaxHeaderSize)
		if err == errLineTooLong {
			return errHeadersTooLarge()
		}
		if err != nil {
			return io.ErrUnexpectedEOF
		}
		total += len(raw)
		if total > defaultMaxHeaderSize {
			return errHeadersTooLarge()
		}
		if len(trimLineEnding(raw)) == 0 {
			return nil
		}
	}
}
