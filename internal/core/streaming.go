package core

// streaming.go provides the reader stack applied to every import source.
//
//   - BOM removal and UTF-8 sanitizing via golang.org/x/text: a UTF-8 or
//     UTF-16 BOM selects the decoding, and invalid sequences become U+FFFD
//   - CountingReader: tracks bytes read and enforces the upload size limit
//
// Use WrapForStreaming to apply all transforms in the correct order.

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrFileTooLarge is returned when a source exceeds the configured size limit.
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// CountingReader counts bytes read from the underlying reader and fails with
// ErrFileTooLarge once more than limit bytes have been read.
// A limit of zero or less disables the check.
type CountingReader struct {
	reader io.Reader
	limit  int64
	read   atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader, limit int64) *CountingReader {
	return &CountingReader{reader: r, limit: limit}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	total := r.read.Add(int64(n))
	if r.limit > 0 && total > r.limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, r.limit)
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// NewDecodingReader strips a leading BOM and replaces invalid UTF-8 with
// U+FFFD. UTF-16 input with a BOM is transcoded to UTF-8.
func NewDecodingReader(r io.Reader) io.Reader {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return transform.NewReader(r, dec)
}

// WrapForStreaming applies size accounting then decoding.
// The returned CountingReader reports raw bytes consumed.
func WrapForStreaming(r io.Reader, limit int64) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, limit)
	return NewDecodingReader(counter), counter
}
