package transport

import "time"

// RTTReporter は、カーネルが計測したラウンドトリップタイムを報告できるトランスポートです。
type RTTReporter interface {
	// RTT は、平滑化RTT (SRTT) とその変動 (RTTVAR) を返します。
	// 取得できない場合、okはfalseです。
	RTT() (rtt, rttvar time.Duration, ok bool)
}
