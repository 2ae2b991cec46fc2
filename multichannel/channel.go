package multichannel

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/transport"
	"github.com/aptpod/smb-go/transport/nic"
)

// now は multichannel内で利用する現在時刻関数です。
var now = time.Now

// ChannelID は、チャネルの識別子です。復旧したチャネルには新しいIDが採番されます。
type ChannelID string

func NewChannelID() ChannelID {
	return ChannelID(uuid.NewString())
}

// ScoreWeights は、チャネルスコアの計算に使用する定数です。
type ScoreWeights struct {
	// Base は、確立済みチャネルの基準スコアです。
	Base int64 `mapstructure:"base" validate:"gt=0"`
	// InterfaceDivisor は、インターフェーススコアをチャネルスコアへ換算する除数です。
	InterfaceDivisor uint64 `mapstructure:"interface_divisor" validate:"gt=0"`
	// BusyPenalty は、Active状態のチャネルから差し引く値です。
	BusyPenalty int64 `mapstructure:"busy_penalty" validate:"gt=0"`
	// PrimaryBonus は、プライマリチャネルへ加算する値です。
	PrimaryBonus int64 `mapstructure:"primary_bonus" validate:"gt=0"`
	// エラー率がErrorRateHighを超えるとErrorPenaltyHigh、ErrorRateLowを超えるとErrorPenaltyLowを差し引きます。
	ErrorRateHigh    float64 `mapstructure:"error_rate_high" validate:"gt=0,lte=1"`
	ErrorPenaltyHigh int64   `mapstructure:"error_penalty_high" validate:"gt=0"`
	ErrorRateLow     float64 `mapstructure:"error_rate_low" validate:"gte=0,lt=1"`
	ErrorPenaltyLow  int64   `mapstructure:"error_penalty_low" validate:"gt=0"`
}

// DefaultScoreWeights は、デフォルトのスコア定数です。
var DefaultScoreWeights = ScoreWeights{
	Base:             100,
	InterfaceDivisor: 100,
	BusyPenalty:      20,
	PrimaryBonus:     10,
	ErrorRateHigh:    0.1,
	ErrorPenaltyHigh: 50,
	ErrorRateLow:     0.01,
	ErrorPenaltyLow:  20,
}

func (w ScoreWeights) validate() error {
	if w.ErrorRateLow >= w.ErrorRateHigh {
		return fmt.Errorf("error_rate_low %v must be below error_rate_high %v", w.ErrorRateLow, w.ErrorRateHigh)
	}
	if w.ErrorPenaltyLow > w.ErrorPenaltyHigh {
		return fmt.Errorf("error_penalty_low %d must not exceed error_penalty_high %d", w.ErrorPenaltyLow, w.ErrorPenaltyHigh)
	}
	// a busy channel at full error rate keeps a positive score
	if w.Base-w.BusyPenalty-w.ErrorPenaltyHigh <= 0 {
		return fmt.Errorf("base %d must exceed busy_penalty + error_penalty_high (%d)", w.Base, w.BusyPenalty+w.ErrorPenaltyHigh)
	}
	return nil
}

func (w ScoreWeights) errorPenalty(rate float64) int64 {
	switch {
	case rate > w.ErrorRateHigh:
		return w.ErrorPenaltyHigh
	case rate > w.ErrorRateLow:
		return w.ErrorPenaltyLow
	default:
		return 0
	}
}

// ChannelInfo は、セッションにバインドされたチャネル1本分の状態です。
//
// カウンターはロックなしで並行に更新できます。状態と処理中オペレーションは同じロックで保護され、
// Failed への遷移と処理中オペレーションの退避は不可分に行われます。
type ChannelInfo struct {
	id        ChannelID
	transport transport.Transport
	local     *nic.Info
	remote    *nic.Info
	weights   ScoreWeights

	primary atomic.Bool
	state   atomic.Int32

	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	requestsSent     atomic.Uint64
	requestsReceived atomic.Uint64
	errors           atomic.Uint64

	createdAt     time.Time
	establishedAt atomic.Int64
	firstActivity atomic.Int64
	lastActivity  atomic.Int64

	mu         sync.Mutex
	pending    []Request
	signingKey []byte
	// settled は、markFailedで生成され、障害処理の再割り当てが完了すると閉じられます。
	settled chan struct{}
}

// ChannelOption は、ChannelInfoの生成オプションです。
type ChannelOption func(*ChannelInfo)

// WithScoreWeights は、スコア定数を指定します。
func WithScoreWeights(w ScoreWeights) ChannelOption {
	return func(c *ChannelInfo) {
		c.weights = w
	}
}

// WithPrimary は、プライマリチャネルとして生成します。
func WithPrimary() ChannelOption {
	return func(c *ChannelInfo) {
		c.primary.Store(true)
	}
}

// WithSigningKey は、チャネルの署名鍵を設定します。
func WithSigningKey(key []byte) ChannelOption {
	return func(c *ChannelInfo) {
		c.signingKey = slices.Clone(key)
	}
}

// NewChannelInfo は、Disconnected状態のチャネルを返却します。
func NewChannelInfo(id ChannelID, tr transport.Transport, local, remote *nic.Info, opts ...ChannelOption) *ChannelInfo {
	c := &ChannelInfo{
		id:        id,
		transport: tr,
		local:     local,
		remote:    remote,
		weights:   DefaultScoreWeights,
		createdAt: now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ChannelInfo) ID() ChannelID                  { return c.id }
func (c *ChannelInfo) Transport() transport.Transport { return c.transport }
func (c *ChannelInfo) LocalInterface() *nic.Info      { return c.local }
func (c *ChannelInfo) RemoteInterface() *nic.Info     { return c.remote }
func (c *ChannelInfo) State() ChannelState            { return ChannelState(c.state.Load()) }
func (c *ChannelInfo) IsHealthy() bool                { return c.State().IsHealthy() }
func (c *ChannelInfo) IsPrimary() bool                { return c.primary.Load() }
func (c *ChannelInfo) SetPrimary(primary bool)        { c.primary.Store(primary) }

func (c *ChannelInfo) SigningKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.signingKey)
}

// SetState は状態を変更します。Failed からは遷移できず、その場合はfalseを返却します。
//
// Established/Activeのどちらを指定しても、処理中オペレーションの有無に応じた状態になります。
//
// Failed への遷移では処理中オペレーションは退避されません。障害時はFailover.HandleFailureを使用してください。
func (c *ChannelInfo) SetState(s ChannelState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setStateLocked(s)
}

func (c *ChannelInfo) setStateLocked(s ChannelState) bool {
	cur := c.State()
	if cur == ChannelStateFailed {
		return cur == s
	}
	if s.IsHealthy() {
		if cur == ChannelStateDisconnected {
			c.establishedAt.Store(now().UnixNano())
		}
		s = ChannelStateEstablished
		if len(c.pending) > 0 {
			s = ChannelStateActive
		}
	}
	c.state.Store(int32(s))
	return true
}

// markDisconnectedIfIdle は、処理中オペレーションのない健全なチャネルをDisconnectedへ遷移させます。
// 遷移した場合はtrueを返却し、以降はオペレーションを割り当てられません。
func (c *ChannelInfo) markDisconnectedIfIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.State().IsHealthy() || len(c.pending) > 0 {
		return false
	}
	c.state.Store(int32(ChannelStateDisconnected))
	return true
}

// markFailed は、Failedへ遷移させ処理中オペレーションを取り出し、遷移前の状態を返却します。
// 既にFailedの場合は何も取り出しません。
func (c *ChannelInfo) markFailed() ([]Request, ChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.State()
	if prev == ChannelStateFailed {
		return nil, prev
	}
	c.state.Store(int32(ChannelStateFailed))
	c.settled = make(chan struct{})
	drained := c.pending
	c.pending = nil
	return drained, prev
}

// settleFailure は、markFailedで取り出したオペレーションの再割り当てが完了したことを通知します。
func (c *ChannelInfo) settleFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled == nil {
		return
	}
	select {
	case <-c.settled:
	default:
		close(c.settled)
	}
}

// failureSettled は、settleFailureで閉じられるチャネルを返却します。
// markFailedを経ずにFailedになった場合はnilです。
func (c *ChannelInfo) failureSettled() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// Score は、ロードバランシングに使用するチャネルの適合度です。常に0以上で、Failed/Disconnectedでは0です。
func (c *ChannelInfo) Score() int64 {
	var score int64
	switch c.State() {
	case ChannelStateEstablished:
		score = c.baseScoreFromInterfaces()
	case ChannelStateActive:
		score = c.baseScoreFromInterfaces() - c.weights.BusyPenalty
	default:
		return 0
	}
	if c.IsPrimary() {
		score += c.weights.PrimaryBonus
	}
	score -= c.weights.errorPenalty(c.ErrorRate())
	return max(score, 0)
}

// baseScoreFromInterfaces は、プライマリの加算分を残した値で頭打ちになります。
func (c *ChannelInfo) baseScoreFromInterfaces() int64 {
	limit := math.MaxInt64 - max(c.weights.PrimaryBonus, 0)
	score := min(c.weights.Base, limit)
	div := c.weights.InterfaceDivisor
	if div == 0 {
		div = 1
	}
	for _, info := range []*nic.Info{c.local, c.remote} {
		if info == nil {
			continue
		}
		add := info.Score() / div
		if add > uint64(limit-score) {
			return limit
		}
		score += int64(add)
	}
	return score
}

func (c *ChannelInfo) touch() {
	ts := now().UnixNano()
	c.firstActivity.CompareAndSwap(0, ts)
	c.lastActivity.Store(ts)
}

func (c *ChannelInfo) AddBytesSent(n uint64) {
	c.bytesSent.Add(n)
	c.touch()
}

func (c *ChannelInfo) AddBytesReceived(n uint64) {
	c.bytesReceived.Add(n)
	c.touch()
}

func (c *ChannelInfo) IncrementRequestsSent() {
	c.requestsSent.Add(1)
	c.touch()
}

func (c *ChannelInfo) IncrementRequestsReceived() {
	c.requestsReceived.Add(1)
	c.touch()
}

func (c *ChannelInfo) IncrementErrors() {
	c.errors.Add(1)
}

// UpdateActivity は、キープアライブなど転送量を伴わない通信を記録します。
func (c *ChannelInfo) UpdateActivity() {
	c.touch()
}

func (c *ChannelInfo) BytesSent() uint64        { return c.bytesSent.Load() }
func (c *ChannelInfo) BytesReceived() uint64    { return c.bytesReceived.Load() }
func (c *ChannelInfo) RequestsSent() uint64     { return c.requestsSent.Load() }
func (c *ChannelInfo) RequestsReceived() uint64 { return c.requestsReceived.Load() }
func (c *ChannelInfo) Errors() uint64           { return c.errors.Load() }

// ErrorRate は、errors / max(requestsSent, 1) です。
func (c *ChannelInfo) ErrorRate() float64 {
	sent := max(c.requestsSent.Load(), 1)
	return float64(c.errors.Load()) / float64(sent)
}

// Throughput は、最初の通信からの平均転送速度（bytes/s）です。通信前は0です。
func (c *ChannelInfo) Throughput() float64 {
	first := c.firstActivity.Load()
	if first == 0 {
		return 0
	}
	elapsed := time.Duration(now().UnixNano() - first)
	if elapsed <= 0 {
		return 0
	}
	total := c.bytesSent.Load() + c.bytesReceived.Load()
	return float64(total) / elapsed.Seconds()
}

// EstablishedTime は、Establishedへ遷移した時刻です。未確立の場合はゼロ値です。
func (c *ChannelInfo) EstablishedTime() time.Time {
	return unixNanoTime(c.establishedAt.Load())
}

// LastActivityTime は、最後に通信した時刻です。通信前はゼロ値です。
func (c *ChannelInfo) LastActivityTime() time.Time {
	return unixNanoTime(c.lastActivity.Load())
}

// IdleTime は、最後の通信（通信前は生成時刻）からの経過時間です。
func (c *ChannelInfo) IdleTime() time.Duration {
	last := c.lastActivity.Load()
	if last == 0 {
		return now().Sub(c.createdAt)
	}
	return time.Duration(now().UnixNano() - last)
}

func unixNanoTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// AddPendingOperation は、処理中オペレーションを追加しEstablishedからActiveへ遷移させます。
// 健全でないチャネルには追加できません。
func (c *ChannelInfo) AddPendingOperation(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch s := c.State(); s {
	case ChannelStateEstablished:
		c.state.Store(int32(ChannelStateActive))
	case ChannelStateActive:
	default:
		return fmt.Errorf("channel %s is %s: %w", c.id, s, errors.ErrChannelFailed)
	}
	c.pending = append(c.pending, req)
	return nil
}

// RemovePendingOperation は、処理中オペレーションを取り除きます。最後の1つを取り除くとEstablishedへ戻ります。
func (c *ChannelInfo) RemovePendingOperation(req Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := slices.Index(c.pending, req)
	if idx < 0 {
		return false
	}
	c.pending = slices.Delete(c.pending, idx, idx+1)
	if len(c.pending) == 0 && c.State() == ChannelStateActive {
		c.state.Store(int32(ChannelStateEstablished))
	}
	return true
}

// ClearPendingOperations は、全ての処理中オペレーションを不可分に取り除き返却します。
func (c *ChannelInfo) ClearPendingOperations() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.pending
	c.pending = nil
	if c.State() == ChannelStateActive {
		c.state.Store(int32(ChannelStateEstablished))
	}
	return drained
}

// HasPendingOperation は、reqが処理中オペレーションに含まれるかを返却します。
func (c *ChannelInfo) HasPendingOperation(req Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.pending, req)
}

// PendingOperations は、処理中オペレーションのスナップショットです。
func (c *ChannelInfo) PendingOperations() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.pending)
}

// RequestsPending は、処理中オペレーション数です。
func (c *ChannelInfo) RequestsPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *ChannelInfo) String() string {
	return fmt.Sprintf("channel(%s %s local=%v remote=%v)", c.id, c.State(), c.local, c.remote)
}
