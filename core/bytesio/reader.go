// Package bytesio is the byte-level adapter under every container parser:
// a bounds-checked cursor, big/little endian append helpers and an owned
// source that commits atomically.
package bytesio

import (
	"encoding/binary"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// Reader is a bounds-checked cursor over an immutable byte slice.
// Every read that would cross the end fails with TruncatedData.
type Reader struct {
	buf   []byte
	pos   int
	Order binary.ByteOrder
}

// NewReader returns a cursor at offset 0.
func NewReader(b []byte, order binary.ByteOrder) *Reader {
	return &Reader{buf: b, Order: order}
}

func (r *Reader) Len() int       { return len(r.buf) }
func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }
func (r *Reader) Buf() []byte    { return r.buf }

func (r *Reader) check(off, n int) error {
	if off < 0 || n < 0 || off > len(r.buf) || n > len(r.buf)-off {
		return core.Errorf(core.TruncatedData, "", "need %d bytes at offset %d, have %d", n, off, len(r.buf))
	}
	return nil
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(off int) error {
	if err := r.check(off, 0); err != nil {
		return err
	}
	r.pos = off
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.check(r.pos, n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Slice returns n bytes at off without moving the cursor. The result
// aliases the underlying buffer.
func (r *Reader) Slice(off, n int) ([]byte, error) {
	if err := r.check(off, n); err != nil {
		return nil, err
	}
	return r.buf[off : off+n : off+n], nil
}

// Bytes reads n bytes at the cursor.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b, err := r.Slice(r.pos, n)
	if err != nil {
		return nil, err
	}
	r.pos += n
	return b, nil
}

func (r *Reader) U8() (byte, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return r.Order.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return r.Order.Uint32(b), nil
}

// U16At reads at an absolute offset without moving the cursor.
func (r *Reader) U16At(off int) (uint16, error) {
	b, err := r.Slice(off, 2)
	if err != nil {
		return 0, err
	}
	return r.Order.Uint16(b), nil
}

// U32At reads at an absolute offset without moving the cursor.
func (r *Reader) U32At(off int) (uint32, error) {
	b, err := r.Slice(off, 4)
	if err != nil {
		return 0, err
	}
	return r.Order.Uint32(b), nil
}
