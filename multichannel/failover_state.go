package multichannel

import (
	"time"

	"github.com/aptpod/smb-go/internal/retry"
)

// FailoverState は、障害が発生した1本のチャネルに対する復旧試行の状態です。
type FailoverState struct {
	channelID     ChannelID
	maxRetries    int
	backoff       retry.Backoff
	retryCount    int
	failureTime   time.Time
	nextRetryTime time.Time
}

// NewFailoverState は、failureTimeに障害が発生したチャネルの状態を返却します。
//
// 最初の試行時刻は failureTime + base です。以降は IncrementRetry の呼び出し時刻から
// min(base*2^retryCount, max) 後となります。
func NewFailoverState(id ChannelID, failureTime time.Time, maxRetries int, base, max time.Duration) *FailoverState {
	b := retry.Backoff{Base: base, Max: max}
	return &FailoverState{
		channelID:     id,
		maxRetries:    maxRetries,
		backoff:       b,
		failureTime:   failureTime,
		nextRetryTime: failureTime.Add(b.Duration(0)),
	}
}

func (s *FailoverState) ChannelID() ChannelID     { return s.channelID }
func (s *FailoverState) RetryCount() int          { return s.retryCount }
func (s *FailoverState) MaxRetries() int          { return s.maxRetries }
func (s *FailoverState) FailureTime() time.Time   { return s.failureTime }
func (s *FailoverState) NextRetryTime() time.Time { return s.nextRetryTime }

// ShouldRetry は、試行回数が上限未満の場合にtrueを返却します。
func (s *FailoverState) ShouldRetry() bool {
	return s.retryCount < s.maxRetries
}

// IncrementRetry は、試行回数を加算し次の試行時刻を進めます。次の試行時刻は必ず前回より後になります。
func (s *FailoverState) IncrementRetry() {
	s.retryCount++
	next := now().Add(s.backoff.Duration(s.retryCount))
	if !next.After(s.nextRetryTime) {
		next = s.nextRetryTime.Add(time.Nanosecond)
	}
	s.nextRetryTime = next
}
