package http

import (
	"io"
	"mime"
	"net/textproto"
	"sort"
)

// HeaderMap is a case-insensitive header multimap. Keys are stored in
// canonical form (Content-Length); values of a repeated header keep their
// arrival order.
type HeaderMap struct {
	kv map[string][]string
}

// NewHeaderMap creates an empty header map.
func NewHeaderMap() *HeaderMap {
	return &HeaderMap{kv: make(map[string][]string)}
}

// CanonicalKey normalizes a header name (content-length -> Content-Length).
func CanonicalKey(key string) string {
	return textproto.CanonicalMIMEHeaderKey(key)
}

// Add appends value under key, preserving existing values.
func (h *HeaderMap) Add(key, value string) {
	k := CanonicalKey(key)
	h.kv[k] = append(h.kv[k], value)
}

// Set replaces all values of key with value.
func (h *HeaderMap) Set(key, value string) {
	h.kv[CanonicalKey(key)] = []string{value}
}

// Get returns the first value of key, or "".
func (h *HeaderMap) Get(key string) string {
	if vs := h.kv[CanonicalKey(key)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// GetDecoded returns the first value of key with any RFC 2047 encoded-words
// decoded. Values without encoded-words pass through unchanged.
func (h *HeaderMap) GetDecoded(key string) (string, error) {
	v := h.Get(key)
	if v == "" {
		return "", nil
	}
	dec := new(mime.WordDecoder)
	return dec.DecodeHeader(v)
}

// Values returns all values of key in arrival order.
func (h *HeaderMap) Values(key string) []string {
	return h.kv[CanonicalKey(key)]
}

// Has reports whether key is present.
func (h *HeaderMap) Has(key string) bool {
	_, ok := h.kv[CanonicalKey(key)]
	return ok
}

// Del removes key.
func (h *HeaderMap) Del(key string) {
	delete(h.kv, CanonicalKey(key))
}

// Len returns the number of distinct keys.
func (h *HeaderMap) Len() int {
	return len(h.kv)
}

// Keys returns the distinct keys in sorted order, so encoded output is
// deterministic.
func (h *HeaderMap) Keys() []string {
	keys := make([]string, 0, len(h.kv))
	for k := range h.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (h *HeaderMap) Clone() *HeaderMap {
	c := NewHeaderMap()
	for k, vs := range h.kv {
		c.kv[k] = append([]string(nil), vs...)
	}
	return c
}

// WriteTo encodes the map as CRLF-terminated header lines.
func (h *HeaderMap) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, k := range h.Keys() {
		for _, v := range h.kv[k] {
			n, err := io.WriteString(w, k+": "+v+"\r\n")
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
