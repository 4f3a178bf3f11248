package bytesio

import (
	"bytes"
	"encoding/binary"
)

// PutU16 appends v in the given byte order.
func PutU16(w *bytes.Buffer, order binary.ByteOrder, v uint16) {
	var b [2]byte
	order.PutUint16(b[:], v)
	w.Write(b[:])
}

// PutU32 appends v in the given byte order.
func PutU32(w *bytes.Buffer, order binary.ByteOrder, v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	w.Write(b[:])
}
