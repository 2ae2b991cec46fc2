package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

var (
	randFloat64         = rand.Float64
	defaultBaseInterval = 100 * time.Millisecond
	defaultMaxInterval  = 5 * time.Second
)

// RetryはExponential Backoff and Jitter方式のリトライを行います。
//
// Jitterは 0.5 ~ 1.5のランダム値です。
type Retry struct {
	// 最大試行回数。0はリトライをし続けます。デフォルトは0です。
	MaxAttempt int

	// 基準リトライ間隔。デフォルトは100ミリ秒です。
	BaseInterval time.Duration

	// 最大基準リトライ間隔。デフォルトは5秒です。
	MaxBaseInterval time.Duration
}

// RetryFuncは、リトライを実施する関数です。
type RetryFunc func() (end bool)

func (r Retry) Do(f RetryFunc) {
	r.DoContext(context.Background(), f)
}

// DoContextは、コンテキストがキャンセルされるまでリトライを行います。
//
// MaxAttemptが指定されている場合、fの呼び出しは最大MaxAttempt回です。
// キャンセルされた場合はfalseを返却します。
func (r Retry) DoContext(ctx context.Context, f RetryFunc) bool {
	baseInterval := r.BaseInterval
	if baseInterval == 0 {
		baseInterval = defaultBaseInterval
	}
	maxBaseInterval := r.MaxBaseInterval
	if maxBaseInterval == 0 {
		maxBaseInterval = defaultMaxInterval
	}
	var retryCount int
	for {
		if ctx.Err() != nil {
			return false
		}
		if f() {
			return true
		}
		retryCount++
		if r.MaxAttempt != 0 && retryCount >= r.MaxAttempt {
			return false
		}
		timer := time.NewTimer(nextSleep(retryCount-1, baseInterval, maxBaseInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func nextSleep(count int, base, max time.Duration) time.Duration {
	return time.Duration(float64(exponential(count, base, max)) * (0.5 + randFloat64()))
}

func exponential(count int, base, max time.Duration) time.Duration {
	baseInterval := float64(base) * math.Pow(2, float64(count))
	if baseInterval > float64(max) {
		baseInterval = float64(max)
	}
	return time.Duration(baseInterval)
}

func Do(f RetryFunc) {
	retry := Retry{}
	retry.Do(f)
}

// Backoffは、Jitterを含まない決定的な指数バックオフです。
//
// 次回の試行時刻を事前に確定させる必要があるスケジューリングで使用します。
type Backoff struct {
	// 基準間隔。0の場合はデフォルトの100ミリ秒です。
	Base time.Duration
	// 最大間隔。0の場合はデフォルトの5秒です。
	Max time.Duration
}

// Durationは、count回目の失敗後の待機時間 min(Base*2^count, Max) を返却します。
func (b Backoff) Duration(count int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultBaseInterval
	}
	max := b.Max
	if max <= 0 {
		max = defaultMaxInterval
	}
	if max < base {
		max = base
	}
	if count < 0 {
		count = 0
	}
	return exponential(count, base, max)
}
