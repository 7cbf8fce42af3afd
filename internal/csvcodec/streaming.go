package csvcodec

// streaming.go holds io.Reader wrappers used when a CSV file is streamed to
// the server instead of being parsed in memory:
//
//   - BOMReader drops a leading UTF-8 byte order mark
//   - UTF8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - CountingReader tracks bytes read for progress reporting

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// replacement stands in for each invalid byte, on both the whole-file and
// the streaming read paths, so a file decodes the same either way.
const replacement = '?'

// BOMReader skips a UTF-8 BOM at the start of the wrapped reader.
type BOMReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMReader wraps r.
func NewBOMReader(r io.Reader) *BOMReader {
	return &BOMReader{r: bufio.NewReader(r)}
}

func (b *BOMReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		if head, err := b.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' without growing the
// stream. A multi-byte sequence split across reads is held back until the
// next read completes it.
type UTF8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes ready to
// hand out. Unless atEOF, a trailing incomplete sequence is kept in pending.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	end := len(data)
	if !atEOF {
		end -= incompleteTail(data)
		s.pending = append(s.pending, data[end:]...)
	}

	if utf8.Valid(data[:end]) {
		return end
	}

	w := 0
	for r := 0; r < end; {
		ch, size := utf8.DecodeRune(data[r:end])
		if ch == utf8.RuneError && size == 1 {
			data[w] = replacement
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

// incompleteTail returns how many trailing bytes of data start a multi-byte
// sequence that has not been completed yet.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue // continuation byte
		}
		if b < 0xC0 {
			return 0
		}
		if i < seqLen(b) {
			return i
		}
		return 0
	}
	return 0
}

func seqLen(b byte) int {
	switch {
	case b < 0xC0:
		return 1
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// CountingReader counts bytes read. Count and Progress are safe to call
// from another goroutine while reads are in progress.
type CountingReader struct {
	r     io.Reader
	n     atomic.Int64
	total int64
}

// NewCountingReader wraps r. total is the expected size, or 0 if unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Count returns the bytes read so far.
func (c *CountingReader) Count() int64 { return c.n.Load() }

// Progress returns the read progress as a percentage (0-100), or 0 when
// the total is unknown.
func (c *CountingReader) Progress() int {
	if c.total <= 0 {
		return 0
	}
	p := int(c.n.Load() * 100 / c.total)
	if p > 100 {
		p = 100
	}
	return p
}

// WrapForStreaming strips a BOM, sanitizes UTF-8 and counts bytes, in
// that order.
func WrapForStreaming(r io.Reader, total int64) *CountingReader {
	return NewCountingReader(NewUTF8Sanitizer(NewBOMReader(r)), total)
}
