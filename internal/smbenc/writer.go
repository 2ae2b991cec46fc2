package smbenc

import (
	"encoding/binary"
	"fmt"
)

// Writer appends SMB wire data to a pre-allocated buffer.
type Writer struct {
	buf []byte
	err error
}

func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

func (w *Writer) WriteUint8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteUint16BE appends a big-endian uint16.
func (w *Writer) WriteUint16BE(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteBytes(data []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, data...)
}

func (w *Writer) WriteZeros(n int) {
	if w.err != nil || n <= 0 {
		return
	}
	w.buf = append(w.buf, make([]byte, n)...)
}

// Pad pads the buffer with zero bytes to the next multiple of alignment.
func (w *Writer) Pad(alignment int) {
	if w.err != nil || alignment <= 0 {
		return
	}
	if remainder := len(w.buf) % alignment; remainder != 0 {
		w.WriteZeros(alignment - remainder)
	}
}

// WriteUint32At overwrites a little-endian uint32 at offset. Used to backpatch
// chained record offsets once the following record position is known.
func (w *Writer) WriteUint32At(offset int, v uint32) {
	if w.err != nil {
		return
	}
	if offset < 0 || offset+4 > len(w.buf) {
		w.err = fmt.Errorf("smbenc: WriteUint32At out of bounds: offset %d + 4 > %d", offset, len(w.buf))
		return
	}
	binary.LittleEndian.PutUint32(w.buf[offset:], v)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// Err returns the first error encountered, or nil.
func (w *Writer) Err() error {
	return w.err
}
