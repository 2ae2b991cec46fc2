package smbenc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/smb-go/internal/smbenc"
)

func TestReader(t *testing.T) {
	data := []byte{
		0x01,
		0x01, 0x02,
		0x01, 0xBD,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0xAA, 0xBB,
	}
	r := NewReader(data)
	assert.Equal(t, uint8(0x01), r.ReadUint8())
	assert.Equal(t, uint16(0x0201), r.ReadUint16())
	assert.Equal(t, uint16(0x01BD), r.ReadUint16BE())
	assert.Equal(t, uint32(0x04030201), r.ReadUint32())
	assert.Equal(t, uint64(0x0807060504030201), r.ReadUint64())
	assert.Equal(t, 2, r.Remaining())
	assert.Equal(t, []byte{0xAA, 0xBB}, r.ReadBytes(2))
	require.NoError(t, r.Err())
	assert.Equal(t, len(data), r.Position())
	assert.Equal(t, 0, r.Remaining())
}

func TestReader_errorAccumulation(t *testing.T) {
	r := NewReader([]byte{0x01})
	assert.Zero(t, r.ReadUint16())
	require.ErrorIs(t, r.Err(), ErrShortRead)

	assert.Zero(t, r.ReadUint8())
	assert.Zero(t, r.ReadUint32())
	assert.Zero(t, r.ReadUint64())
	assert.Nil(t, r.ReadBytes(1))
	r.Skip(1)
	assert.Equal(t, 0, r.Position())
	assert.ErrorIs(t, r.Err(), ErrShortRead)
}

func TestReader_EnsureRemaining(t *testing.T) {
	r := NewReader(make([]byte, 4))
	r.EnsureRemaining(4)
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Position())
	r.Skip(2)
	r.EnsureRemaining(3)
	assert.ErrorIs(t, r.Err(), ErrShortRead)
}

func TestWriter(t *testing.T) {
	w := NewWriter(32)
	w.WriteUint8(0x01)
	w.WriteUint16(0x0201)
	w.WriteUint16BE(0x01BD)
	w.WriteUint32(0x04030201)
	w.WriteUint64(0x0807060504030201)
	w.WriteBytes([]byte{0xAA})
	w.WriteZeros(2)
	require.NoError(t, w.Err())
	assert.Equal(t, []byte{
		0x01,
		0x01, 0x02,
		0x01, 0xBD,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0xAA, 0x00, 0x00,
	}, w.Bytes())
	assert.Equal(t, 20, w.Len())
}

func TestWriter_Pad(t *testing.T) {
	w := NewWriter(16)
	w.WriteUint8(1)
	w.Pad(8)
	assert.Equal(t, 8, w.Len())
	w.Pad(8)
	assert.Equal(t, 8, w.Len())
	w.Pad(0)
	assert.Equal(t, 8, w.Len())
}

func TestWriter_WriteUint32At(t *testing.T) {
	w := NewWriter(8)
	w.WriteZeros(8)
	w.WriteUint32At(4, 0x98)
	require.NoError(t, w.Err())
	assert.Equal(t, []byte{0, 0, 0, 0, 0x98, 0, 0, 0}, w.Bytes())

	w.WriteUint32At(6, 1)
	assert.Error(t, w.Err())
	w.WriteUint8(1)
	assert.Equal(t, 8, w.Len())
}
