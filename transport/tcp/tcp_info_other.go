//go:build !linux

package tcp

import "time"

// RTT は、このプラットフォームでは取得できません。
func (t *Transport) RTT() (rtt, rttvar time.Duration, ok bool) {
	return 0, 0, false
}
