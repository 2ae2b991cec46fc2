package multichannel

import (
	"context"
	"encoding/binary"
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/log"
)

var (
	randFloat64 = rand.Float64
	randIntN    = rand.IntN
)

// LoadBalancer は、健全なチャネルの中からリクエストの送信先を選択します。
//
// 1回の選択では ChannelManager.HealthyChannels を一度だけ取得し、そのスナップショットの中から選択します。
type LoadBalancer struct {
	manager                ChannelManager
	strategy               atomic.Int32
	rrCounter              atomic.Uint64
	largeTransferThreshold int64
	assignAttempts         int
	logger                 log.Logger
	metrics                *Metrics

	// 統計情報
	stateMu         sync.Mutex
	lastSelected    ChannelID
	totalSelections atomic.Uint64
	switchCount     atomic.Uint64

	selectionCountsMu sync.Mutex
	selectionCounts   map[ChannelID]uint64
}

// BalancerStats は、LoadBalancer の統計情報です。
type BalancerStats struct {
	// SelectionCounts はチャネルごとの選択回数です。
	SelectionCounts map[ChannelID]uint64
	// TotalSelections は総選択回数です。
	TotalSelections uint64
	// SwitchCount は直前と異なるチャネルを選択した回数です。
	SwitchCount uint64
}

// NewLoadBalancer は、managerのチャネルから選択する LoadBalancer を返却します。
func NewLoadBalancer(manager ChannelManager, opts ...Option) (*LoadBalancer, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newLoadBalancer(manager, cfg), nil
}

func newLoadBalancer(manager ChannelManager, cfg *Config) *LoadBalancer {
	lb := &LoadBalancer{
		manager:                manager,
		largeTransferThreshold: cfg.LargeTransferThreshold,
		assignAttempts:         cfg.MaxChannels + 1,
		logger:                 cfg.Logger,
		metrics:                cfg.Metrics,
		selectionCounts:        make(map[ChannelID]uint64),
	}
	lb.strategy.Store(int32(cfg.Strategy))
	return lb
}

// Strategy は、現在の選択方式を返却します。
func (lb *LoadBalancer) Strategy() LoadBalancingStrategy {
	return LoadBalancingStrategy(lb.strategy.Load())
}

// SetStrategy は、選択方式を変更します。
func (lb *LoadBalancer) SetStrategy(s LoadBalancingStrategy) error {
	if !s.IsValid() {
		return fmt.Errorf("unknown load balancing strategy %d", int32(s))
	}
	lb.strategy.Store(int32(s))
	return nil
}

// SelectChannel は、reqの送信先チャネルを選択します。
// 健全なチャネルがない場合は errors.ErrNoAvailableChannel を返却します。
func (lb *LoadBalancer) SelectChannel(req Request) (*ChannelInfo, error) {
	channels := lb.manager.HealthyChannels()
	if len(channels) == 0 {
		return nil, errors.ErrNoAvailableChannel
	}

	strategy := lb.Strategy()
	var selected *ChannelInfo
	switch strategy {
	case StrategyRoundRobin:
		selected = lb.selectRoundRobin(channels)
	case StrategyLeastLoaded:
		selected = selectLeastLoaded(channels)
	case StrategyWeightedRandom:
		selected = selectWeightedRandom(channels)
	case StrategyAffinityBased:
		selected = selectByAffinity(req, channels)
	case StrategyAdaptive:
		if lb.isLargeTransfer(req) {
			selected = selectHighestScore(channels)
		} else {
			selected = selectLeastLoaded(channels)
		}
	default:
		return nil, fmt.Errorf("unknown load balancing strategy %s", strategy)
	}

	lb.recordSelection(selected.ID())
	lb.metrics.recordSelection(strategy)
	return selected, nil
}

// Assign は、チャネルを選択しreqを処理中オペレーションとして追加します。
//
// 選択したチャネルが追加までの間に障害となった場合は、新しいスナップショットから選択し直します。
func (lb *LoadBalancer) Assign(req Request) (*ChannelInfo, error) {
	for attempt := 0; ; attempt++ {
		ch, err := lb.SelectChannel(req)
		if err != nil {
			return nil, err
		}
		err = ch.AddPendingOperation(req)
		if err == nil {
			return ch, nil
		}
		lb.logger.Debugf(log.WithTrackChannelID(context.Background(), string(ch.ID())), "Selected channel became unavailable: %v", err)
		if attempt+1 >= lb.assignAttempts {
			return nil, fmt.Errorf("gave up after %d attempts: %w", attempt+1, errors.ErrNoAvailableChannel)
		}
	}
}

func (lb *LoadBalancer) isLargeTransfer(req Request) bool {
	tr, ok := req.(DataTransferRequest)
	if !ok {
		return false
	}
	return tr.TransferLength() >= lb.largeTransferThreshold
}

func (lb *LoadBalancer) selectRoundRobin(channels []*ChannelInfo) *ChannelInfo {
	idx := (lb.rrCounter.Add(1) - 1) % uint64(len(channels))
	return channels[idx]
}

func selectLeastLoaded(channels []*ChannelInfo) *ChannelInfo {
	selected := channels[0]
	minPending := selected.RequestsPending()
	for _, ch := range channels[1:] {
		if p := ch.RequestsPending(); p < minPending {
			selected, minPending = ch, p
		}
	}
	return selected
}

func selectHighestScore(channels []*ChannelInfo) *ChannelInfo {
	selected := channels[0]
	best := selected.Score()
	for _, ch := range channels[1:] {
		if s := ch.Score(); s > best {
			selected, best = ch, s
		}
	}
	return selected
}

func selectWeightedRandom(channels []*ChannelInfo) *ChannelInfo {
	scores := make([]float64, len(channels))
	var total float64
	for i, ch := range channels {
		scores[i] = float64(ch.Score())
		total += scores[i]
	}
	if total <= 0 {
		return channels[randIntN(len(channels))]
	}
	r := randFloat64() * total
	last := 0
	for i, s := range scores {
		if s <= 0 {
			continue
		}
		last = i
		if r < s {
			return channels[i]
		}
		r -= s
	}
	return channels[last]
}

// selectByAffinity は、キーとチャネルIDのハッシュが最大のチャネルを選択します（rendezvous hashing）。
// 選択されたチャネルが健全な間は同じキーに同じチャネルを返し、離脱した場合はそのチャネルのキーのみが再配置されます。
func selectByAffinity(req Request, channels []*ChannelInfo) *ChannelInfo {
	var key [8]byte
	if req != nil {
		binary.LittleEndian.PutUint64(key[:], req.AffinityKey())
	}
	var (
		selected *ChannelInfo
		best     uint64
	)
	for _, ch := range channels {
		d := xxhash.New()
		d.Write(key[:])
		d.WriteString(string(ch.ID()))
		if h := d.Sum64(); selected == nil || h > best {
			selected, best = ch, h
		}
	}
	return selected
}

func (lb *LoadBalancer) recordSelection(id ChannelID) {
	lb.totalSelections.Add(1)

	lb.stateMu.Lock()
	if lb.lastSelected != "" && lb.lastSelected != id {
		lb.switchCount.Add(1)
	}
	lb.lastSelected = id
	lb.stateMu.Unlock()

	lb.selectionCountsMu.Lock()
	lb.selectionCounts[id]++
	lb.selectionCountsMu.Unlock()
}

// forget は、取り除かれたチャネルの選択回数を破棄します。
func (lb *LoadBalancer) forget(id ChannelID) {
	lb.selectionCountsMu.Lock()
	delete(lb.selectionCounts, id)
	lb.selectionCountsMu.Unlock()
}

// Stats は現在の統計情報のスナップショットを返します。
func (lb *LoadBalancer) Stats() BalancerStats {
	lb.selectionCountsMu.Lock()
	countsCopy := maps.Clone(lb.selectionCounts)
	lb.selectionCountsMu.Unlock()

	return BalancerStats{
		SelectionCounts: countsCopy,
		TotalSelections: lb.totalSelections.Load(),
		SwitchCount:     lb.switchCount.Load(),
	}
}

// ResetStats は統計情報をリセットします。
func (lb *LoadBalancer) ResetStats() {
	lb.totalSelections.Store(0)
	lb.switchCount.Store(0)

	lb.selectionCountsMu.Lock()
	lb.selectionCounts = make(map[ChannelID]uint64)
	lb.selectionCountsMu.Unlock()

	lb.stateMu.Lock()
	lb.lastSelected = ""
	lb.stateMu.Unlock()
}
