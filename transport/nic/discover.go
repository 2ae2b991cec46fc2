package nic

import (
	"fmt"
	"net"
	"net/netip"
)

// DefaultLinkSpeed is reported for local interfaces, whose speed is not portably available.
const DefaultLinkSpeed uint64 = 1_000_000_000

type hostInterface struct {
	Index int
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

var listHostInterfaces = func() ([]hostInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	res := make([]hostInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, fmt.Errorf("get interface addresses of %s: %w", iface.Name, err)
		}
		res = append(res, hostInterface{
			Index: iface.Index,
			Name:  iface.Name,
			Flags: iface.Flags,
			Addrs: addrs,
		})
	}
	return res, nil
}

// DiscoverLocal lists the addresses of the host's up, non-loopback interfaces
// that are usable for channels, sorted by score.
func DiscoverLocal() ([]*Info, error) {
	ifaces, err := listHostInterfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var infos []*Info
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		for _, a := range iface.Addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}
			infos = append(infos, NewInfo(addr, uint32(iface.Index), DefaultLinkSpeed, 0))
		}
	}
	infos = FilterUsable(infos)
	SortByScore(infos)
	return infos, nil
}
