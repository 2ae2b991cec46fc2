//go:build linux

package tcp

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// RTT は、TCP_INFOから平滑化RTTとその変動を取得します。
func (t *Transport) RTT() (rtt, rttvar time.Duration, ok bool) {
	conn, _, err := t.connection()
	if err != nil {
		return 0, 0, false
	}
	tcpConn, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return 0, 0, false
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return 0, 0, false
	}

	var sysErr error
	err = raw.Control(func(fd uintptr) {
		ti, err := unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
		if err != nil {
			sysErr = err
			return
		}
		rtt = time.Duration(ti.Rtt) * time.Microsecond
		rttvar = time.Duration(ti.Rttvar) * time.Microsecond
	})
	if err != nil || sysErr != nil {
		return 0, 0, false
	}
	return rtt, rttvar, true
}
