package nic

import (
	"fmt"
	"net/netip"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/internal/smbenc"
)

// InfoSize is the size of one NETWORK_INTERFACE_INFO record.
const InfoSize = 152

const (
	sockaddrOffset  = 24
	sockaddrSize    = 128
	familyInet      = 0x0002
	familyInet6     = 0x0017
	sockaddrIn6Size = 2 + 2 + 4 + 16 + 4
	sockaddrInSize  = 2 + 2 + 4
)

// Encode returns the fixed-size wire record of i with a zero Next field.
func (i *Info) Encode() []byte {
	w := smbenc.NewWriter(InfoSize)
	i.encodeTo(w, 0)
	return w.Bytes()
}

func (i *Info) encodeTo(w *smbenc.Writer, next uint32) {
	start := w.Len()
	w.WriteUint32(next)
	w.WriteUint32(i.index)
	w.WriteUint32(uint32(i.capability))
	w.WriteUint32(0) // Reserved
	w.WriteUint64(i.linkSpeed)
	if i.address.Is4() {
		w.WriteUint16(familyInet)
		w.WriteUint16BE(0)
		a := i.address.As4()
		w.WriteBytes(a[:])
	} else {
		w.WriteUint16(familyInet6)
		w.WriteUint16BE(0)
		w.WriteUint32(0) // FlowInfo
		a := i.address.As16()
		w.WriteBytes(a[:])
		w.WriteUint32(0) // ScopeId
	}
	w.WriteZeros(InfoSize - (w.Len() - start))
}

// Decode parses one record. data must hold at least InfoSize bytes.
func Decode(data []byte) (*Info, error) {
	info, _, err := decode(data)
	return info, err
}

func decode(data []byte) (*Info, uint32, error) {
	r := smbenc.NewReader(data)
	r.EnsureRemaining(InfoSize)
	next := r.ReadUint32()
	index := r.ReadUint32()
	capability := Capability(r.ReadUint32())
	r.Skip(4)
	linkSpeed := r.ReadUint64()
	family := r.ReadUint16()
	r.Skip(2) // Port
	if err := r.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errors.ErrMalformedInterfaceInfo, err)
	}
	if capability&^capabilityMask != 0 {
		return nil, next, fmt.Errorf("%w: unknown capability bits %s", errors.ErrMalformedInterfaceInfo, capability)
	}

	var addr netip.Addr
	switch family {
	case familyInet:
		addr = netip.AddrFrom4([4]byte(r.ReadBytes(4)))
	case familyInet6:
		r.Skip(4)
		addr = netip.AddrFrom16([16]byte(r.ReadBytes(16)))
	default:
		return nil, next, fmt.Errorf("%w: unknown address family 0x%04x", errors.ErrMalformedInterfaceInfo, family)
	}
	return NewInfo(addr, index, linkSpeed, capability), next, nil
}

// DecodeList parses a chain of records linked by their Next offsets, as
// returned by FSCTL_QUERY_NETWORK_INTERFACE_INFO.
//
// A malformed record is skipped and reported in the returned error while the
// remaining records are still returned. A Next offset that does not advance
// past the current record or points outside buf ends the walk.
func DecodeList(buf []byte) ([]*Info, error) {
	var (
		infos []*Info
		errs  []error
	)
	for offset := 0; offset < len(buf); {
		if len(buf)-offset < InfoSize {
			errs = append(errs, fmt.Errorf("record at offset %d: %w: truncated (%d bytes)", offset, errors.ErrMalformedInterfaceInfo, len(buf)-offset))
			break
		}
		info, next, err := decode(buf[offset : offset+InfoSize])
		if err != nil {
			errs = append(errs, fmt.Errorf("record at offset %d: %w", offset, err))
		} else {
			infos = append(infos, info)
		}
		if next == 0 {
			break
		}
		if next < InfoSize || uint64(offset)+uint64(next) > uint64(len(buf)) {
			errs = append(errs, fmt.Errorf("record at offset %d: %w: next offset %d out of range", offset, errors.ErrMalformedInterfaceInfo, next))
			break
		}
		offset += int(next)
	}
	return infos, errors.Join(errs...)
}

// EncodeList writes infos as a chain of records.
func EncodeList(infos []*Info) []byte {
	w := smbenc.NewWriter(len(infos) * InfoSize)
	for idx, info := range infos {
		var next uint32
		if idx < len(infos)-1 {
			next = InfoSize
		}
		info.encodeTo(w, next)
	}
	return w.Bytes()
}
