// Package codec decodes the binary payloads streamed from a tile store:
// terrain meshes, surface metatiles, availability images and point clouds.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrMalformed          = errors.New("malformed payload")
	ErrBadMagic           = fmt.Errorf("%w: bad magic", ErrMalformed)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrMalformed)
	ErrTruncated          = fmt.Errorf("%w: truncated", ErrMalformed)
)

// reader is a little-endian cursor over a payload. The first failed read
// sticks in err and every later read returns zero.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrTruncated, n, r.pos, len(r.data))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) i16() int16 {
	return int16(r.u16())
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) f64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *reader) magic(want string) {
	b := r.take(len(want))
	if b != nil && string(b) != want {
		r.err = fmt.Errorf("%w: got %q, want %q", ErrBadMagic, b, want)
	}
}

// writer is the encoding counterpart of reader, used by tooling and tests.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *writer) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}
