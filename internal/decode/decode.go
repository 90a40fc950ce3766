// Package decode provides bounds-checked primitives for the little-endian
// binary layouts used by the replay container and the chart index, plus the
// structured error type shared by all three format decoders.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Failure categories. Decoder errors unwrap to one of these so callers can
// branch with errors.Is without inspecting the message.
var (
	ErrTruncated          = errors.New("truncated input")
	ErrMissingField       = errors.New("missing mandatory field")
	ErrBadValue           = errors.New("malformed value")
	ErrUnsupportedVersion = errors.New("unsupported format version")
)

// Error carries the context needed to diagnose a malformed file: which format,
// where in the buffer, which field, and what was expected versus found.
type Error struct {
	Format   string
	Offset   int
	Field    string
	Expected string
	Found    string
	kind     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s at offset %d: field %q", e.Format, e.kind, e.Offset, e.Field)
	if e.Expected != "" {
		msg += fmt.Sprintf(": expected %s, found %s", e.Expected, e.Found)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.kind }

// NewError builds an Error for failures detected outside a Reader, such as
// inside an already-decompressed payload.
func NewError(format string, offset int, field string, kind error, expected, found string) *Error {
	return &Error{Format: format, Offset: offset, Field: field, kind: kind, Expected: expected, Found: found}
}

// Reader walks a fully-resident byte buffer. Every read is bounds-checked;
// reads past the end fail with ErrTruncated instead of panicking. A Reader
// never partially advances: a failed read leaves the position untouched.
type Reader struct {
	format string
	buf    []byte
	pos    int
}

func NewReader(format string, buf []byte) *Reader {
	return &Reader{format: format, buf: buf}
}

// Offset reports the current byte position.
func (r *Reader) Offset() int { return r.pos }

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) fail(field string, kind error) *Error {
	return &Error{Format: r.format, Offset: r.pos, Field: field, kind: kind}
}

func (r *Reader) failf(field string, kind error, expected, found string) *Error {
	e := r.fail(field, kind)
	e.Expected = expected
	e.Found = found
	return e
}

func (r *Reader) take(field string, n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, r.failf(field, ErrTruncated,
			fmt.Sprintf("%d bytes", n), fmt.Sprintf("%d bytes", r.Remaining()))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) Byte(field string) (byte, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Bool(field string) (bool, error) {
	b, err := r.Byte(field)
	return b != 0, err
}

func (r *Reader) Uint16(field string) (uint16, error) {
	b, err := r.take(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32(field string) (uint32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64(field string) (uint64, error) {
	b, err := r.take(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Int16(field string) (int16, error) {
	v, err := r.Uint16(field)
	return int16(v), err
}

func (r *Reader) Int32(field string) (int32, error) {
	v, err := r.Uint32(field)
	return int32(v), err
}

func (r *Reader) Int64(field string) (int64, error) {
	v, err := r.Uint64(field)
	return int64(v), err
}

func (r *Reader) Float32(field string) (float32, error) {
	v, err := r.Uint32(field)
	return math.Float32frombits(v), err
}

func (r *Reader) Float64(field string) (float64, error) {
	v, err := r.Uint64(field)
	return math.Float64frombits(v), err
}

// maxULEBBytes bounds a ULEB128 value to 64 bits of payload.
const maxULEBBytes = 10

// ULEB128 reads an unsigned variable-width integer.
func (r *Reader) ULEB128(field string) (uint64, error) {
	start := r.pos
	var v uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= maxULEBBytes {
			r.pos = start
			return 0, r.failf(field, ErrBadValue, "ULEB128 <= 10 bytes", "unterminated sequence")
		}
		b, err := r.Byte(field)
		if err != nil {
			r.pos = start
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
}

// String reads an osu!-style string: a 0x00 presence byte for the empty
// string, or 0x0b followed by a ULEB128 byte length and UTF-8 payload.
func (r *Reader) String(field string) (string, error) {
	start := r.pos
	tag, err := r.Byte(field)
	if err != nil {
		return "", err
	}
	switch tag {
	case 0x00:
		return "", nil
	case 0x0b:
		n, err := r.ULEB128(field)
		if err != nil {
			r.pos = start
			return "", err
		}
		if n > uint64(r.Remaining()) {
			defer func() { r.pos = start }()
			return "", r.failf(field, ErrTruncated,
				fmt.Sprintf("%d string bytes", n), fmt.Sprintf("%d bytes", r.Remaining()))
		}
		b, err := r.take(field, int(n))
		if err != nil {
			r.pos = start
			return "", err
		}
		return string(b), nil
	default:
		defer func() { r.pos = start }()
		return "", r.failf(field, ErrBadValue, "string tag 0x00 or 0x0b", fmt.Sprintf("0x%02x", tag))
	}
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(field string, n int) ([]byte, error) {
	if n < 0 {
		return nil, r.failf(field, ErrBadValue, "non-negative length", fmt.Sprintf("%d", n))
	}
	return r.take(field, n)
}

// Skip discards n bytes.
func (r *Reader) Skip(field string, n int) error {
	_, err := r.take(field, n)
	return err
}
