package nic_test

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/smb-go/transport/nic"
)

func ipNet(s string) *net.IPNet {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestDiscoverLocal(t *testing.T) {
	SetHostInterfaces(t, []HostInterface{
		{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback, Addrs: []net.Addr{ipNet("127.0.0.1/8")}},
		{Index: 2, Name: "eth0", Flags: net.FlagUp, Addrs: []net.Addr{ipNet("192.168.1.10/24"), ipNet("fe80::1/64")}},
		{Index: 3, Name: "eth1", Flags: 0, Addrs: []net.Addr{ipNet("10.0.0.10/24")}},
		{Index: 4, Name: "eth2", Flags: net.FlagUp, Addrs: []net.Addr{ipNet("2001:db8::10/64"), &net.IPAddr{IP: net.ParseIP("10.9.9.9")}}},
	}, nil)

	infos, err := DiscoverLocal()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), infos[0].Address())
	assert.Equal(t, uint32(2), infos[0].InterfaceIndex())
	assert.Equal(t, DefaultLinkSpeed, infos[0].LinkSpeed())
	assert.Equal(t, netip.MustParseAddr("2001:db8::10"), infos[1].Address())
}

func TestDiscoverLocal_error(t *testing.T) {
	SetHostInterfaces(t, nil, errors.New("boom"))
	_, err := DiscoverLocal()
	assert.ErrorContains(t, err, "boom")
}

func TestNewDialContext(t *testing.T) {
	t.Run("from interface info", func(t *testing.T) {
		d, err := NewDialContext(DialContextConfig{Local: NewInfo(netip.MustParseAddr("127.0.0.1"), 1, 0, 0)})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:0", DialerLocalAddr(d).String())
	})
	t.Run("unbound", func(t *testing.T) {
		d, err := NewDialContext(DialContextConfig{})
		require.NoError(t, err)
		assert.Nil(t, DialerLocalAddr(d))
	})
	t.Run("unknown nic", func(t *testing.T) {
		_, err := NewDialContext(DialContextConfig{NIC: "no-such-nic0"})
		assert.Error(t, err)
	})
}

func TestDialContext_DialContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	d, err := NewDialContext(DialContextConfig{Local: NewInfo(netip.MustParseAddr("127.0.0.1"), 1, 0, 0)})
	require.NoError(t, err)
	conn, err := d.DialContext(t.Context(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "127.0.0.1", conn.LocalAddr().(*net.TCPAddr).IP.String())
}
