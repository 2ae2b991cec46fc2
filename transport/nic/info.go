package nic

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// Capability is the capability bit set advertised for a network interface.
type Capability uint32

const (
	CapabilityRSS  Capability = 0x00000001
	CapabilityRDMA Capability = 0x00000002

	capabilityMask = CapabilityRSS | CapabilityRDMA
)

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c&CapabilityRSS != 0 {
		parts = append(parts, "RSS")
	}
	if c&CapabilityRDMA != 0 {
		parts = append(parts, "RDMA")
	}
	if rest := c &^ capabilityMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// RSSScoreBonus is added to the link speed of RSS-capable interfaces by Score.
const RSSScoreBonus uint64 = 1000

// Info describes one network interface of the client or the server.
//
// Info is immutable and may be shared between channels.
type Info struct {
	address    netip.Addr
	index      uint32
	linkSpeed  uint64
	capability Capability
}

// Key identifies an interface. Two Infos with the same Key are equal.
type Key struct {
	Address netip.Addr
	Index   uint32
}

// NewInfo returns an interface description. linkSpeed is in bits per second.
func NewInfo(address netip.Addr, index uint32, linkSpeed uint64, capability Capability) *Info {
	return &Info{
		address:    address.Unmap(),
		index:      index,
		linkSpeed:  linkSpeed,
		capability: capability,
	}
}

func (i *Info) Address() netip.Addr      { return i.address }
func (i *Info) InterfaceIndex() uint32   { return i.index }
func (i *Info) LinkSpeed() uint64        { return i.linkSpeed }
func (i *Info) Capabilities() Capability { return i.capability }
func (i *Info) IsRSSCapable() bool       { return i.capability&CapabilityRSS != 0 }
func (i *Info) IsRDMACapable() bool      { return i.capability&CapabilityRDMA != 0 }
func (i *Info) IsIPv6() bool             { return i.address.Is6() }

// Score ranks the interface for channel placement: link speed plus RSSScoreBonus for RSS capable interfaces.
func (i *Info) Score() uint64 {
	score := i.linkSpeed
	if i.IsRSSCapable() {
		if score > ^uint64(0)-RSSScoreBonus {
			return ^uint64(0)
		}
		score += RSSScoreBonus
	}
	return score
}

func (i *Info) Key() Key {
	return Key{Address: i.address, Index: i.index}
}

// Equal reports whether i and o describe the same interface (same address and interface index).
func (i *Info) Equal(o *Info) bool {
	if i == nil || o == nil {
		return i == o
	}
	return i.Key() == o.Key()
}

// IsUsableForChannel reports whether a channel may be established over the interface.
func (i *Info) IsUsableForChannel() bool {
	a := i.address
	return a.IsValid() &&
		!a.IsUnspecified() &&
		!a.IsLoopback() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsMulticast()
}

func (i *Info) String() string {
	return fmt.Sprintf("%s(if=%d speed=%s caps=%s)", i.address, i.index, FormatLinkSpeed(i.linkSpeed), i.capability)
}

// FormatLinkSpeed renders a bits-per-second value with a decimal unit.
func FormatLinkSpeed(bps uint64) string {
	switch {
	case bps >= 1_000_000_000 && bps%1_000_000_000 == 0:
		return fmt.Sprintf("%dGbps", bps/1_000_000_000)
	case bps >= 1_000_000 && bps%1_000_000 == 0:
		return fmt.Sprintf("%dMbps", bps/1_000_000)
	case bps >= 1_000 && bps%1_000 == 0:
		return fmt.Sprintf("%dKbps", bps/1_000)
	default:
		return fmt.Sprintf("%dbps", bps)
	}
}

// SortByScore sorts infos by descending score. Ties keep the interface index order.
func SortByScore(infos []*Info) {
	slices.SortStableFunc(infos, func(a, b *Info) int {
		if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
}

// FilterUsable returns the interfaces usable for channels, dropping duplicates by Key.
func FilterUsable(infos []*Info) []*Info {
	res := make([]*Info, 0, len(infos))
	seen := make(map[Key]struct{}, len(infos))
	for _, info := range infos {
		if info == nil || !info.IsUsableForChannel() {
			continue
		}
		if _, ok := seen[info.Key()]; ok {
			continue
		}
		seen[info.Key()] = struct{}{}
		res = append(res, info)
	}
	return res
}
