package nic

import (
	"net"
	"testing"
)

type HostInterface = hostInterface

func SetHostInterfaces(t *testing.T, ifaces []HostInterface, err error) {
	org := listHostInterfaces
	listHostInterfaces = func() ([]hostInterface, error) { return ifaces, err }
	t.Cleanup(func() {
		listHostInterfaces = org
	})
}

func DialerLocalAddr(d *DialContext) net.Addr {
	return d.dialer.LocalAddr
}
