package multichannel

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/internal/ch"
	"github.com/aptpod/smb-go/internal/retry"
	"github.com/aptpod/smb-go/log"
	"github.com/aptpod/smb-go/session"
	"github.com/aptpod/smb-go/transport"
	"github.com/aptpod/smb-go/transport/nic"
)

// KeepAliver は、無通信のチャネルへキープアライブ（SMB2 ECHOなど）を送信します。
type KeepAliver interface {
	KeepAlive(ctx context.Context, tr transport.Transport) error
}

const (
	eventQueueSize      = 64
	subscriberQueueSize = 16
)

var _ ChannelManager = (*Manager)(nil)

/*
Manager は、1つのセッションにバインドされたチャネルの表を管理します。

Manager はチャネルの確立、障害時のフェイルオーバー、定期的なヘルスチェック、インターフェースの再検出を行います。
生成後は必ず Close を呼び出してください。
*/
type Manager struct {
	cfg     *Config
	sess    session.Session
	binder  session.Binder
	factory transport.Factory
	logger  log.Logger
	metrics *Metrics

	nics     *nic.Manager
	lb       *LoadBalancer
	failover *Failover

	mu       sync.RWMutex
	channels map[ChannelID]*ChannelInfo
	order    []ChannelID
	closed   bool

	// establishMu は、不足しているチャネルの確立を直列化します。
	establishMu   sync.Mutex
	started       atomic.Bool
	discoverLocal atomic.Bool

	eventCh       chan ChannelEvent
	subscribersMu sync.Mutex
	subscribers   []chan ChannelEvent

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager は、sessにチャネルをバインドする Manager を生成し、バックグラウンド処理を開始します。
func NewManager(sess session.Session, binder session.Binder, factory transport.Factory, opts ...Option) (*Manager, error) {
	if sess == nil || binder == nil || factory == nil {
		return nil, errors.New("session, binder and transport factory are required")
	}
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		sess:     sess,
		binder:   binder,
		factory:  factory,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		nics:     nic.OpenManager(cfg.Logger),
		channels: make(map[ChannelID]*ChannelInfo),
		eventCh:  make(chan ChannelEvent, eventQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.lb = newLoadBalancer(m, cfg)
	m.failover = newFailover(m, cfg, m.emit)

	nicChanges := m.nics.Subscribe()
	m.wg.Add(3)
	go m.healthCheckLoop()
	go m.discoveryLoop(nicChanges)
	go m.eventLoop()
	return m, nil
}

// Config は、Managerの設定のコピーです。
func (m *Manager) Config() Config {
	return *m.cfg
}

func (m *Manager) LoadBalancer() *LoadBalancer {
	return m.lb
}

func (m *Manager) Failover() *Failover {
	return m.failover
}

// IsMultiChannelEnabled は、追加チャネルを確立できる場合にtrueを返却します。
func (m *Manager) IsMultiChannelEnabled() bool {
	if !m.cfg.Enabled || m.cfg.BindingPolicy == session.BindingDisabled {
		return false
	}
	return session.CheckSupported(m.sess) == nil
}

func (m *Manager) channelLimit() int {
	if !m.cfg.Enabled {
		return 1
	}
	return m.cfg.MaxChannels
}

// RegisterPrimary は、セッションを確立した既存のコネクションをプライマリチャネルとして登録します。
func (m *Manager) RegisterPrimary(tr transport.Transport, local, remote *nic.Info) (*ChannelInfo, error) {
	c := NewChannelInfo(NewChannelID(), tr, local, remote, WithPrimary(), WithScoreWeights(m.cfg.Scoring))
	c.SetState(ChannelStateEstablished)
	if err := m.addChannel(c, true); err != nil {
		return nil, err
	}
	return c, nil
}

// Channels は、登録順の全チャネルのスナップショットです。
func (m *Manager) Channels() []*ChannelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]*ChannelInfo, 0, len(m.order))
	for _, id := range m.order {
		res = append(res, m.channels[id])
	}
	return res
}

// HealthyChannels は、登録順の健全なチャネルのスナップショットです。
func (m *Manager) HealthyChannels() []*ChannelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]*ChannelInfo, 0, len(m.order))
	for _, id := range m.order {
		if c := m.channels[id]; c.IsHealthy() {
			res = append(res, c)
		}
	}
	return res
}

// Channel は、idのチャネルを返却します。
func (m *Manager) Channel(id ChannelID) (*ChannelInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[id]
	return c, ok
}

// Primary は、プライマリチャネルを返却します。
func (m *Manager) Primary() (*ChannelInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if c := m.channels[id]; c.IsPrimary() {
			return c, true
		}
	}
	return nil, false
}

// AddChannel は、チャネルを表へ追加します。
func (m *Manager) AddChannel(c *ChannelInfo) error {
	return m.addChannel(c, false)
}

// addChannel は、exclusivePrimaryの場合、プライマリチャネルが既にあれば追加しません。
func (m *Manager) addChannel(c *ChannelInfo, exclusivePrimary bool) error {
	if c.State() == ChannelStateFailed {
		return fmt.Errorf("add channel %s: %w", c.ID(), errors.ErrChannelFailed)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrAlreadyShutdown
	}
	if exclusivePrimary {
		for _, other := range m.channels {
			if other.IsPrimary() {
				m.mu.Unlock()
				return fmt.Errorf("primary channel %s is already registered", other.ID())
			}
		}
	}
	if _, ok := m.channels[c.ID()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("channel %s is already registered", c.ID())
	}
	if limit := m.channelLimit(); len(m.channels) >= limit {
		m.mu.Unlock()
		return fmt.Errorf("add channel %s (max %d): %w", c.ID(), limit, errors.ErrChannelLimitReached)
	}
	m.channels[c.ID()] = c
	m.order = append(m.order, c.ID())
	m.mu.Unlock()

	m.logger.Infof(log.WithTrackChannelID(m.ctx, string(c.ID())), "Added channel %v -> %v", c.LocalInterface(), c.RemoteInterface())
	m.emit(ChannelEvent{Type: ChannelEventAdded, Channel: c})
	m.refreshMetrics()
	return nil
}

// RemoveChannel は、チャネルを表から取り除きトランスポートを閉じます。
//
// プライマリチャネルを取り除いた場合は、残りの健全なチャネルのうちスコアが最も高いものをプライマリにします。
func (m *Manager) RemoveChannel(c *ChannelInfo) {
	m.mu.Lock()
	if _, ok := m.channels[c.ID()]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.channels, c.ID())
	m.order = slices.DeleteFunc(m.order, func(id ChannelID) bool { return id == c.ID() })
	var promoted *ChannelInfo
	if c.IsPrimary() {
		c.SetPrimary(false)
		promoted = m.electPrimaryLocked()
	}
	m.mu.Unlock()
	m.lb.forget(c.ID())

	if c.IsHealthy() {
		c.SetState(ChannelStateDisconnected)
	}
	ctx := log.WithTrackChannelID(m.ctx, string(c.ID()))
	if tr := c.Transport(); tr != nil {
		if err := tr.Close(); err != nil {
			m.logger.Warnf(ctx, "Failed to close transport: %v", err)
		}
	}
	m.logger.Infof(ctx, "Removed channel")
	if promoted != nil {
		m.logger.Infof(log.WithTrackChannelID(m.ctx, string(promoted.ID())), "Promoted to primary channel")
	}
	m.emit(ChannelEvent{Type: ChannelEventRemoved, Channel: c})
	m.refreshMetrics()
}

func (m *Manager) electPrimaryLocked() *ChannelInfo {
	var (
		best      *ChannelInfo
		bestScore int64
	)
	for _, id := range m.order {
		c := m.channels[id]
		if !c.IsHealthy() {
			continue
		}
		if s := c.Score(); best == nil || s > bestScore {
			best, bestScore = c, s
		}
	}
	if best != nil {
		best.SetPrimary(true)
	}
	return best
}

// CreateTransport は、インターフェースの組に対するトランスポートを生成し接続します。
func (m *Manager) CreateTransport(ctx context.Context, local, remote *nic.Info) (transport.Transport, error) {
	tr, err := m.factory.CreateTransport(ctx, local, remote)
	if err != nil {
		return nil, fmt.Errorf("create transport %v -> %v: %w", local, remote, err)
	}
	if err := tr.Connect(ctx); err != nil {
		tr.Close()
		return nil, fmt.Errorf("connect %v -> %v: %w", local, remote, err)
	}
	return tr, nil
}

// PerformChannelBinding は、trをセッションへバインドします。
func (m *Manager) PerformChannelBinding(ctx context.Context, tr transport.Transport) (*session.Binding, error) {
	return session.BindChannel(ctx, m.sess, m.binder, tr, m.cfg.BindingPolicy)
}

func newBoundChannel(tr transport.Transport, local, remote *nic.Info, binding *session.Binding, weights ScoreWeights) *ChannelInfo {
	opts := []ChannelOption{WithScoreWeights(weights)}
	if binding != nil {
		opts = append(opts, WithSigningKey(binding.SigningKey))
	}
	c := NewChannelInfo(NewChannelID(), tr, local, remote, opts...)
	c.SetState(ChannelStateEstablished)
	return c
}

// EstablishChannel は、インターフェースの組で新しいチャネルを確立し表へ追加します。
// 接続とバインドは AttemptTimeout 以内に完了しなければなりません。
func (m *Manager) EstablishChannel(ctx context.Context, local, remote *nic.Info) (*ChannelInfo, error) {
	actx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	defer cancel()

	tr, err := m.CreateTransport(actx, local, remote)
	if err != nil {
		return nil, err
	}
	binding, err := m.PerformChannelBinding(actx, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	c := newBoundChannel(tr, local, remote, binding, m.cfg.Scoring)
	if err := m.AddChannel(c); err != nil {
		tr.Close()
		return nil, err
	}
	return c, nil
}

// SetLocalInterfaces は、ローカルインターフェースの一覧を置き換えます。
func (m *Manager) SetLocalInterfaces(infos []*nic.Info) error {
	m.discoverLocal.Store(false)
	return m.nics.UpdateLocal(infos)
}

// SetRemoteInterfaces は、サーバーから通知されたインターフェースの一覧を置き換えます。
func (m *Manager) SetRemoteInterfaces(infos []*nic.Info) error {
	return m.nics.UpdateRemote(infos)
}

// SetRemoteInterfaceRecords は、FSCTL_QUERY_NETWORK_INTERFACE_INFO の応答をデコードしリモートインターフェースとします。
//
// 不正なレコードは取り除かれ、残りのレコードは反映されます。不正なレコードがあった場合はそのエラーを返却します。
func (m *Manager) SetRemoteInterfaceRecords(buf []byte) error {
	infos, decodeErr := nic.DecodeList(buf)
	if decodeErr != nil {
		m.logger.Warnf(m.ctx, "Skipped malformed interface records: %v", decodeErr)
	}
	if err := m.nics.UpdateRemote(infos); err != nil {
		return errors.Join(decodeErr, err)
	}
	return decodeErr
}

// DiscoverLocalInterfaces は、ホストのインターフェースを検出しローカルインターフェースとします。
// 以降は DiscoveryInterval ごとに再検出します。
func (m *Manager) DiscoverLocalInterfaces() error {
	if err := m.nics.RefreshLocal(); err != nil {
		return err
	}
	m.discoverLocal.Store(true)
	return nil
}

func (m *Manager) LocalInterfaces() []*nic.Info {
	return m.nics.Local()
}

func (m *Manager) RemoteInterfaces() []*nic.Info {
	return m.nics.Remote()
}

// Pairings は、現在のインターフェースの一覧から確立するべき組を返却します。
func (m *Manager) Pairings() []Pairing {
	snap := m.nics.Snapshot()
	return PlanPairings(snap.Local, snap.Remote, m.channelLimit())
}

func (m *Manager) missingPairings() []Pairing {
	inUse := make(map[pairingKey]struct{})
	for _, c := range m.Channels() {
		inUse[channelPairingKey(c)] = struct{}{}
	}
	var res []Pairing
	for _, p := range m.Pairings() {
		if _, ok := inUse[p.key()]; !ok {
			res = append(res, p)
		}
	}
	return res
}

// checkBindable は、追加チャネルを確立できない場合のエラーを返却します。
// BindingPreferred でセッションが対応していない場合は (false, nil) です。
func (m *Manager) checkBindable(ctx context.Context) (bool, error) {
	if !m.cfg.Enabled || m.cfg.BindingPolicy == session.BindingDisabled {
		return false, errors.ErrMultiChannelDisabled
	}
	if err := session.CheckSupported(m.sess); err != nil {
		if m.cfg.BindingPolicy == session.BindingRequired {
			return false, err
		}
		m.logger.Infof(ctx, "Staying single-channel: %v", err)
		return false, nil
	}
	return true, nil
}

// EstablishChannels は、まだチャネルのないインターフェースの組でチャネルを並行に確立します。
//
// 確立はベストエフォートで、失敗した組のエラーをまとめて返却します。成功したチャネルは表に残ります。
func (m *Manager) EstablishChannels(ctx context.Context) error {
	ok, err := m.checkBindable(ctx)
	if !ok {
		return err
	}
	m.started.Store(true)
	return m.establishMissing(ctx)
}

func (m *Manager) establishMissing(ctx context.Context) error {
	m.establishMu.Lock()
	defer m.establishMu.Unlock()

	missing := m.missingPairings()
	free := m.channelLimit() - len(m.Channels())
	if free <= 0 || len(missing) == 0 {
		return nil
	}
	if len(missing) > free {
		missing = missing[:free]
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, p := range missing {
		g.Go(func() error {
			c, err := m.EstablishChannel(ctx, p.Local, p.Remote)
			if err != nil {
				m.logger.Warnf(ctx, "Failed to establish channel %v: %v", p, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			m.logger.Debugf(log.WithTrackChannelID(ctx, string(c.ID())), "Established channel %v", p)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// EstablishReplacementChannel は、利用可能なインターフェースの組で新しいチャネルを確立します。
//
// 使用中でない組を優先し、最大 ReplacementAttempts 回試行します。
func (m *Manager) EstablishReplacementChannel(ctx context.Context) (*ChannelInfo, error) {
	if ok, err := m.checkBindable(ctx); !ok {
		if err == nil {
			err = errors.ErrBindingNotSupported
		}
		return nil, err
	}
	candidates := append(m.missingPairings(), m.Pairings()...)
	if len(candidates) == 0 {
		return nil, errors.ErrNoInterfacePairing
	}

	var (
		res     *ChannelInfo
		lastErr error
		i       int
	)
	r := retry.Retry{
		MaxAttempt:      m.cfg.ReplacementAttempts,
		BaseInterval:    m.cfg.RetryBaseInterval,
		MaxBaseInterval: m.cfg.RetryMaxInterval,
	}
	r.DoContext(ctx, func() bool {
		p := candidates[i%len(candidates)]
		i++
		c, err := m.EstablishChannel(ctx, p.Local, p.Remote)
		if err != nil {
			lastErr = err
			m.logger.Warnf(ctx, "Replacement attempt %d over %v failed: %v", i, p, err)
			return errors.Is(err, errors.ErrChannelLimitReached) || errors.Is(err, errors.ErrAlreadyShutdown)
		}
		res = c
		return true
	})
	if res != nil {
		return res, nil
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, fmt.Errorf("establish replacement channel: %w", lastErr)
}

// AdjustChannelCount は、インターフェースの一覧に合わせてチャネル数を調整します。
//
// 不足している組のチャネルを確立し、組の数を超えたチャネルは取り除きます。取り除くのは処理中オペレーションのない
// チャネルで、現在の組に含まれないもの、スコアが低いものの順です。プライマリチャネルは取り除きません。
func (m *Manager) AdjustChannelCount(ctx context.Context) error {
	if ok, err := m.checkBindable(ctx); !ok {
		return err
	}
	err := m.establishMissing(ctx)

	pairings := m.Pairings()
	planned := make(map[pairingKey]struct{}, len(pairings))
	for _, p := range pairings {
		planned[p.key()] = struct{}{}
	}
	channels := m.HealthyChannels()
	excess := len(channels) - max(len(pairings), 1)
	if excess <= 0 {
		return err
	}
	candidates := slices.DeleteFunc(channels, func(c *ChannelInfo) bool {
		return c.IsPrimary() || c.RequestsPending() > 0
	})
	inPlan := func(c *ChannelInfo) bool {
		_, ok := planned[channelPairingKey(c)]
		return ok
	}
	slices.SortStableFunc(candidates, func(a, b *ChannelInfo) int {
		if pa, pb := inPlan(a), inPlan(b); pa != pb {
			if pa {
				return 1
			}
			return -1
		}
		return cmp.Compare(a.Score(), b.Score())
	})
	for _, c := range candidates {
		if excess == 0 {
			break
		}
		// 選択後に割り当てられたオペレーションがあれば残す
		if !c.markDisconnectedIfIdle() {
			continue
		}
		m.logger.Infof(log.WithTrackChannelID(ctx, string(c.ID())), "Removing excess channel")
		m.RemoveChannel(c)
		excess--
	}
	return err
}

// SelectChannel は、reqの送信先チャネルを選択します。
func (m *Manager) SelectChannel(req Request) (*ChannelInfo, error) {
	return m.lb.SelectChannel(req)
}

// Send は、reqを処理中オペレーションとしてチャネルへ割り当て、payloadを送信します。
//
// 送信に失敗したチャネルはフェイルオーバーへ渡され、reqが再割り当てされたチャネルで送信し直します。
// 成功した場合は送信したチャネルを返却します。応答を受信したら Complete を呼び出してください。
func (m *Manager) Send(ctx context.Context, req Request, payload []byte) (*ChannelInfo, error) {
	ctx = log.WithTrackOperationID(ctx)
	c, err := m.lb.Assign(req)
	if err != nil {
		return nil, err
	}
	maxAttempts := m.channelLimit() + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			c.RemovePendingOperation(req)
			return nil, err
		}
		c.IncrementRequestsSent()
		werr := c.Transport().Write(payload)
		if werr == nil {
			c.AddBytesSent(uint64(len(payload)))
			return c, nil
		}
		c.IncrementErrors()
		m.logger.Warnf(log.WithTrackChannelID(ctx, string(c.ID())), "Failed to send: %v", werr)
		m.failover.HandleFailure(c, werr)

		next := m.findPending(req)
		if next == nil {
			return nil, errors.Join(werr, errors.ErrNoAvailableChannel)
		}
		if attempt >= maxAttempts {
			next.RemovePendingOperation(req)
			return nil, fmt.Errorf("gave up after %d attempts: %w", attempt, werr)
		}
		c = next
	}
}

// Complete は、reqの応答を受信したことを記録し処理中オペレーションから取り除きます。
// reqがフェイルオーバーで他のチャネルへ移っている場合はそのチャネルから取り除きます。
func (m *Manager) Complete(c *ChannelInfo, req Request, received int) bool {
	if !c.RemovePendingOperation(req) {
		if c = m.findPending(req); c == nil {
			return false
		}
		c.RemovePendingOperation(req)
	}
	c.IncrementRequestsReceived()
	c.AddBytesReceived(uint64(max(received, 0)))
	return true
}

func (m *Manager) findPending(req Request) *ChannelInfo {
	for _, c := range m.HealthyChannels() {
		if c.HasPendingOperation(req) {
			return c
		}
	}
	return nil
}

// CheckHealth は、全チャネルのヘルスチェックを1回行います。
func (m *Manager) CheckHealth(ctx context.Context) {
	for _, c := range m.Channels() {
		cctx := log.WithTrackChannelID(ctx, string(c.ID()))
		switch c.State() {
		case ChannelStateFailed:
			m.logger.Errorf(cctx, "Removing failed channel left in the table")
			m.RemoveChannel(c)
			continue
		case ChannelStateDisconnected:
			continue
		}
		if r, ok := c.Transport().(transport.RTTReporter); ok {
			if rtt, rttvar, ok := r.RTT(); ok {
				m.metrics.observeRTT(rtt)
				m.logger.Debugf(cctx, "RTT %v (var %v)", rtt, rttvar)
			}
		}
		if rate := c.ErrorRate(); rate > m.cfg.HighErrorRate {
			m.logger.Warnf(cctx, "High error rate %.3f (errors: %d, requests: %d)", rate, c.Errors(), c.RequestsSent())
		}
		if m.cfg.KeepAliver == nil || c.IdleTime() < m.cfg.IdleTimeout {
			continue
		}
		kctx, cancel := context.WithTimeout(cctx, m.cfg.AttemptTimeout)
		err := m.cfg.KeepAliver.KeepAlive(kctx, c.Transport())
		cancel()
		if err != nil {
			c.IncrementErrors()
			m.failover.HandleFailure(c, fmt.Errorf("keep-alive: %w", err))
			continue
		}
		c.UpdateActivity()
	}
	m.refreshMetrics()
}

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.CheckHealth(m.ctx)
		}
	}
}

func (m *Manager) discoveryLoop(changes <-chan nic.Snapshot) {
	defer m.wg.Done()
	var tickC <-chan time.Time
	if m.cfg.DiscoveryInterval > 0 {
		ticker := time.NewTicker(m.cfg.DiscoveryInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-tickC:
			if m.discoverLocal.Load() {
				if err := m.nics.RefreshLocal(); err != nil {
					m.logger.Warnf(m.ctx, "Failed to rediscover local interfaces: %v", err)
				}
			}
		case snap, ok := <-changes:
			if !ok {
				return
			}
			m.logger.Debugf(m.ctx, "Interfaces changed (version: %d, local: %d, remote: %d)", snap.Version, len(snap.Local), len(snap.Remote))
			if !m.started.Load() {
				continue
			}
			if err := m.AdjustChannelCount(m.ctx); err != nil {
				m.logger.Warnf(m.ctx, "Failed to adjust channels: %v", err)
			}
		}
	}
}

// Subscribe は、チャネルイベントを受信するチャネルを返却します。Managerを閉じると閉じられます。
// 受信が遅れた場合、イベントは破棄されます。
func (m *Manager) Subscribe() <-chan ChannelEvent {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	sub := make(chan ChannelEvent, subscriberQueueSize)
	if m.ctx.Err() != nil {
		close(sub)
		return sub
	}
	m.subscribers = append(m.subscribers, sub)
	return sub
}

func (m *Manager) emit(ev ChannelEvent) {
	select {
	case <-m.ctx.Done():
	case m.eventCh <- ev:
	default:
		m.logger.Warnf(m.ctx, "Channel event queue is full, dropping %v", ev)
	}
}

func (m *Manager) eventLoop() {
	defer m.wg.Done()
	for ev := range ch.ReadOrDone(m.ctx, m.eventCh) {
		m.subscribersMu.Lock()
		subs := slices.Clone(m.subscribers)
		m.subscribersMu.Unlock()
		for _, sub := range subs {
			if !ch.TrySend(ev, sub) {
				m.logger.Warnf(m.ctx, "Failed to deliver channel event %v", ev)
			}
		}
	}
}

func (m *Manager) refreshMetrics() {
	if m.metrics == nil {
		return
	}
	counts := make(map[ChannelState]int)
	for _, c := range m.Channels() {
		counts[c.State()]++
	}
	m.metrics.setChannelCounts(counts)
}

// Close は、バックグラウンド処理とフェイルオーバーを停止し、全てのチャネルを閉じます。複数回呼び出しても安全です。
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.subscribersMu.Lock()
		m.cancel()
		m.subscribersMu.Unlock()

		m.failover.Shutdown()
		m.wg.Wait()
		m.nics.Close()

		m.mu.Lock()
		m.closed = true
		channels := make([]*ChannelInfo, 0, len(m.order))
		for _, id := range m.order {
			channels = append(channels, m.channels[id])
		}
		clear(m.channels)
		m.order = nil
		m.mu.Unlock()

		for _, c := range channels {
			c.SetState(ChannelStateDisconnected)
			if tr := c.Transport(); tr != nil {
				tr.Close()
			}
		}
		m.refreshMetrics()

		m.subscribersMu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.subscribersMu.Unlock()
		m.logger.Infof(context.Background(), "Closed multi-channel manager (channels: %d)", len(channels))
	})
	return nil
}
