package multichannel_test

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	smb "github.com/aptpod/smb-go"
	"github.com/aptpod/smb-go/errors"
	. "github.com/aptpod/smb-go/multichannel"
	"github.com/aptpod/smb-go/session"
	"github.com/aptpod/smb-go/session/sessionmock"
	"github.com/aptpod/smb-go/transport"
	"github.com/aptpod/smb-go/transport/nic"
	"github.com/aptpod/smb-go/transport/transportmock"
)

var (
	testSessionKey, _ = hex.DecodeString("7CD451825D0450D235424E44BA6E78CC")
	testSigningKey, _ = hex.DecodeString("0B7E9C5CAC36C0F6EA9AB275298CEDCE")
)

type managerFixture struct {
	manager   *Manager
	scheduler *manualScheduler
	metrics   *Metrics

	mu      sync.Mutex
	servers []transport.Transport
}

func newManagerFixture(t *testing.T, dialect smb.Dialect, opts ...Option) *managerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	sess := sessionmock.NewMockSession(ctrl)
	sess.EXPECT().SessionID().Return(uint64(0x1234)).AnyTimes()
	sess.EXPECT().SessionKey().Return(testSessionKey).AnyTimes()
	sess.EXPECT().Dialect().Return(dialect).AnyTimes()
	sess.EXPECT().PreauthIntegrityHash().Return([64]byte{}).AnyTimes()
	sess.EXPECT().MultiChannelCapable().Return(true).AnyTimes()

	binder := sessionmock.NewMockBinder(ctrl)
	binder.EXPECT().Bind(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	fx := &managerFixture{
		scheduler: &manualScheduler{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
	}
	factory := &transport.PipeFactory{
		Accept: func(local, remote *nic.Info, server transport.Transport) {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.servers = append(fx.servers, server)
		},
	}
	base := []Option{
		WithScheduler(fx.scheduler),
		WithMetrics(fx.metrics),
		WithDiscoveryInterval(0),
		WithRetry(3, time.Millisecond, 10*time.Millisecond),
	}
	m, err := NewManager(sess, binder, factory, append(base, opts...)...)
	require.NoError(t, err)
	fx.manager = m
	t.Cleanup(func() {
		require.NoError(t, m.Close())
	})
	return fx
}

func (fx *managerFixture) serverCount() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return len(fx.servers)
}

// drain は、サーバー側で受信したメッセージを読み捨てます。
func drain(tr transport.Transport) {
	go func() {
		for {
			if _, err := tr.Read(); err != nil {
				return
			}
		}
	}()
}

var (
	local1  = newInfo("10.0.0.1", 1, 10_000_000_000, nic.CapabilityRSS)
	local2  = newInfo("10.0.0.2", 2, 1_000_000_000, 0)
	remote1 = newInfo("10.0.1.1", 1, 10_000_000_000, nic.CapabilityRSS)
	remote2 = newInfo("10.0.1.2", 2, 1_000_000_000, 0)
)

func registerPrimary(t *testing.T, m *Manager) (*ChannelInfo, transport.Transport) {
	t.Helper()
	cli, srv := transport.Pipe()
	primary, err := m.RegisterPrimary(cli, local1, remote1)
	require.NoError(t, err)
	return primary, srv
}

func TestNewManager(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("必須の引数", func(t *testing.T) {
		_, err := NewManager(nil, nil, nil)
		assert.Error(t, err)
	})

	t.Run("不正な設定", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		_, err := NewManager(sessionmock.NewMockSession(ctrl), sessionmock.NewMockBinder(ctrl), &transport.PipeFactory{}, WithMaxChannels(100))
		assert.Error(t, err)
	})

	t.Run("Closeは複数回呼び出せる", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0300)
		require.NoError(t, fx.manager.Close())
		require.NoError(t, fx.manager.Close())
	})
}

func TestManager_RegisterPrimary(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)
	m := fx.manager

	primary, _ := registerPrimary(t, m)
	assert.True(t, primary.IsPrimary())
	assert.Equal(t, ChannelStateEstablished, primary.State())
	assert.Equal(t, []*ChannelInfo{primary}, m.Channels())
	got, ok := m.Primary()
	require.True(t, ok)
	assert.Same(t, primary, got)

	cli, _ := transport.Pipe()
	_, err := m.RegisterPrimary(cli, local2, remote2)
	assert.Error(t, err)
}

func TestManager_RegisterPrimaryConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)
	m := fx.manager

	const n = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		registered []*ChannelInfo
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cli, _ := transport.Pipe()
			<-start
			c, err := m.RegisterPrimary(cli, local1, remote1)
			if err != nil {
				cli.Close()
				return
			}
			mu.Lock()
			registered = append(registered, c)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, registered, 1)
	assert.Equal(t, registered, m.Channels())
	got, ok := m.Primary()
	require.True(t, ok)
	assert.Same(t, registered[0], got)
}

func TestManager_AddChannel(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300, WithMaxChannels(2))
	m := fx.manager

	a := newChannel(t, ChannelStateEstablished)
	require.NoError(t, m.AddChannel(a))

	t.Run("同じIDは登録できない", func(t *testing.T) {
		assert.Error(t, m.AddChannel(a))
	})

	t.Run("Failedのチャネルは登録できない", func(t *testing.T) {
		assert.ErrorIs(t, m.AddChannel(newChannel(t, ChannelStateFailed)), errors.ErrChannelFailed)
	})

	require.NoError(t, m.AddChannel(newChannel(t, ChannelStateEstablished)))

	t.Run("上限を超えられない", func(t *testing.T) {
		assert.ErrorIs(t, m.AddChannel(newChannel(t, ChannelStateEstablished)), errors.ErrChannelLimitReached)
	})

	assert.Len(t, m.Channels(), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(fx.metrics.Channels.WithLabelValues("Established")))

	t.Run("無効な場合はプライマリのみ", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0300, WithEnabled(false))
		registerPrimary(t, fx.manager)
		assert.ErrorIs(t, fx.manager.AddChannel(newChannel(t, ChannelStateEstablished)), errors.ErrChannelLimitReached)
	})
}

func TestManager_RemoveChannel(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)
	m := fx.manager
	events := m.Subscribe()

	primary, _ := registerPrimary(t, m)
	slow := NewChannelInfo(NewChannelID(), nil, local2, remote2)
	slow.SetState(ChannelStateEstablished)
	fast := NewChannelInfo(NewChannelID(), nil, local1, remote1)
	fast.SetState(ChannelStateEstablished)
	require.NoError(t, m.AddChannel(slow))
	require.NoError(t, m.AddChannel(fast))

	m.RemoveChannel(primary)
	m.RemoveChannel(primary)

	assert.Equal(t, []*ChannelInfo{slow, fast}, m.Channels())
	assert.Equal(t, ChannelStateDisconnected, primary.State())
	assert.False(t, primary.IsPrimary())
	assert.ErrorIs(t, primary.Transport().Write([]byte("x")), transport.ErrAlreadyClosed)

	t.Run("スコアが最も高いチャネルがプライマリになる", func(t *testing.T) {
		assert.True(t, fast.IsPrimary())
		assert.False(t, slow.IsPrimary())
	})

	t.Run("イベント", func(t *testing.T) {
		var got []ChannelEventType
		for len(got) < 4 {
			select {
			case ev := <-events:
				got = append(got, ev.Type)
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting events, got %v", got)
			}
		}
		assert.Equal(t, []ChannelEventType{ChannelEventAdded, ChannelEventAdded, ChannelEventAdded, ChannelEventRemoved}, got)
	})
}

func TestManager_RemoveChannelForgetsSelections(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300, WithStrategy(StrategyRoundRobin))
	m := fx.manager

	primary, _ := registerPrimary(t, m)
	secondary := NewChannelInfo(NewChannelID(), nil, local2, remote2)
	secondary.SetState(ChannelStateEstablished)
	require.NoError(t, m.AddChannel(secondary))

	for i := range 4 {
		_, err := m.SelectChannel(&testRequest{key: uint64(i)})
		require.NoError(t, err)
	}
	stats := m.LoadBalancer().Stats()
	require.Equal(t, map[ChannelID]uint64{primary.ID(): 2, secondary.ID(): 2}, stats.SelectionCounts)

	m.RemoveChannel(secondary)

	stats = m.LoadBalancer().Stats()
	assert.Equal(t, map[ChannelID]uint64{primary.ID(): 2}, stats.SelectionCounts)
	assert.Equal(t, uint64(4), stats.TotalSelections)
}

func TestManager_FailureAfterRemove(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0311)
	m := fx.manager
	events := m.Subscribe()

	primary, _ := registerPrimary(t, m)
	m.RemoveChannel(primary)
	require.Equal(t, ChannelStateDisconnected, primary.State())

	m.Failover().HandleFailure(primary, transport.EOF)

	assert.Equal(t, ChannelStateFailed, primary.State())
	assert.Empty(t, m.Channels())
	assert.Empty(t, fx.scheduler.Pending())
	_, ok := m.Failover().State(primary.ID())
	assert.False(t, ok)
	assert.Zero(t, testutil.ToFloat64(fx.metrics.Failovers))

	t.Run("障害イベントは通知されない", func(t *testing.T) {
		// 後続の追加イベントまでに障害イベントが届かないことを確認する
		next, _ := registerPrimary(t, m)
		var got []ChannelEventType
		for {
			select {
			case ev := <-events:
				got = append(got, ev.Type)
				if ev.Type == ChannelEventAdded && ev.Channel == next {
					assert.Equal(t, []ChannelEventType{ChannelEventAdded, ChannelEventRemoved, ChannelEventAdded}, got)
					return
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting events, got %v", got)
			}
		}
	})
}

func TestManager_EstablishChannels(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("不足している組のチャネルを確立する", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0300)
		m := fx.manager
		primary, _ := registerPrimary(t, m)
		require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local2, local1}))
		require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))
		assert.Equal(t, []*nic.Info{local1, local2}, m.LocalInterfaces())

		require.NoError(t, m.EstablishChannels(context.Background()))

		channels := m.Channels()
		require.Len(t, channels, 2)
		assert.Same(t, primary, channels[0])
		added := channels[1]
		assert.Same(t, local2, added.LocalInterface())
		assert.Same(t, remote2, added.RemoteInterface())
		assert.Equal(t, ChannelStateEstablished, added.State())
		assert.Equal(t, testSigningKey, added.SigningKey())
		assert.Equal(t, 1, fx.serverCount())

		t.Run("確立済みの組は確立しない", func(t *testing.T) {
			require.NoError(t, m.EstablishChannels(context.Background()))
			assert.Len(t, m.Channels(), 2)
			assert.Equal(t, 1, fx.serverCount())
		})
	})

	t.Run("対応していないダイアレクトではプライマリのみ", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0210)
		m := fx.manager
		registerPrimary(t, m)
		require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1, local2}))
		require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))

		assert.False(t, m.IsMultiChannelEnabled())
		require.NoError(t, m.EstablishChannels(context.Background()))
		assert.Len(t, m.Channels(), 1)
	})

	t.Run("バインディング必須の場合はエラー", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0210, WithBindingPolicy(session.BindingRequired))
		assert.ErrorIs(t, fx.manager.EstablishChannels(context.Background()), errors.ErrBindingNotSupported)
	})

	t.Run("無効化されている", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0311, WithEnabled(false))
		assert.ErrorIs(t, fx.manager.EstablishChannels(context.Background()), errors.ErrMultiChannelDisabled)
	})

	t.Run("最大チャネル数まで", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0302, WithMaxChannels(2))
		m := fx.manager
		require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1, local2}))
		require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))
		assert.Len(t, m.Pairings(), 2)

		require.NoError(t, m.EstablishChannels(context.Background()))
		assert.Len(t, m.Channels(), 2)
	})
}

func TestManager_SetRemoteInterfaceRecords(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)

	buf := nic.EncodeList([]*nic.Info{remote1, remote2})
	// 1つ目のレコードのアドレスファミリーを壊す
	buf[24] = 0xff

	err := fx.manager.SetRemoteInterfaceRecords(buf)
	assert.ErrorIs(t, err, errors.ErrMalformedInterfaceInfo)
	remotes := fx.manager.RemoteInterfaces()
	require.Len(t, remotes, 1)
	assert.True(t, remote2.Equal(remotes[0]))
}

func TestManager_Send(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300, WithStrategy(StrategyLeastLoaded))
	m := fx.manager

	primary, primarySrv := registerPrimary(t, m)
	cli, srv := transport.Pipe()
	secondary := NewChannelInfo(NewChannelID(), cli, local2, remote2)
	secondary.SetState(ChannelStateEstablished)
	require.NoError(t, m.AddChannel(secondary))
	drain(srv)

	t.Run("送信に成功", func(t *testing.T) {
		drain(primarySrv)
		req := &testRequest{key: 1}
		ch, err := m.Send(context.Background(), req, []byte("hello"))
		require.NoError(t, err)
		assert.Same(t, primary, ch)
		assert.True(t, primary.HasPendingOperation(req))
		assert.Equal(t, uint64(5), primary.BytesSent())

		assert.True(t, m.Complete(ch, req, 3))
		assert.Zero(t, primary.RequestsPending())
		assert.Equal(t, uint64(1), primary.RequestsReceived())
		assert.Equal(t, uint64(3), primary.BytesReceived())
	})

	t.Run("送信に失敗すると他のチャネルで送り直す", func(t *testing.T) {
		require.NoError(t, primarySrv.Close())
		req := &testRequest{key: 2}
		ch, err := m.Send(context.Background(), req, []byte("hello"))
		require.NoError(t, err)
		assert.Same(t, secondary, ch)

		assert.Equal(t, ChannelStateFailed, primary.State())
		assert.Equal(t, uint64(1), primary.Errors())
		assert.Equal(t, []*ChannelInfo{secondary}, m.Channels())
		assert.True(t, secondary.IsPrimary())
		assert.Equal(t, []Request{req}, secondary.PendingOperations())

		// 応答は元のチャネルで受け取っても移動先から取り除かれる
		assert.True(t, m.Complete(primary, req, 0))
		assert.Zero(t, secondary.RequestsPending())
	})

	t.Run("健全なチャネルがない", func(t *testing.T) {
		require.NoError(t, srv.Close())
		_, err := m.Send(context.Background(), &testRequest{key: 3}, []byte("hello"))
		assert.ErrorIs(t, err, errors.ErrNoAvailableChannel)
		assert.Empty(t, m.HealthyChannels())
	})
}

// racingTransport は、Writeで別のgoroutineから同じチャネルの障害処理を始めさせ、releaseが閉じられるまでCloseを止めます。
type racingTransport struct {
	transport.Transport
	onWrite func() error
	release chan struct{}
}

func (tr *racingTransport) Write([]byte) error { return tr.onWrite() }

func (tr *racingTransport) Close() error {
	<-tr.release
	return tr.Transport.Close()
}

func TestManager_SendConcurrentFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300, WithStrategy(StrategyLeastLoaded))
	m := fx.manager

	cli, srv := transport.Pipe()
	defer srv.Close()
	racing := &racingTransport{Transport: cli, release: make(chan struct{})}
	primary, err := m.RegisterPrimary(racing, local1, remote1)
	require.NoError(t, err)

	cli2, srv2 := transport.Pipe()
	defer srv2.Close()
	secondary := NewChannelInfo(NewChannelID(), cli2, local2, remote2)
	secondary.SetState(ChannelStateEstablished)
	require.NoError(t, m.AddChannel(secondary))
	drain(srv2)

	var wg sync.WaitGroup
	racing.onWrite = func() error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Failover().HandleFailure(primary, transport.EOF)
		}()
		// 別のgoroutineがFailedへ遷移させてから失敗を返す
		assert.Eventually(t, func() bool {
			return primary.State() == ChannelStateFailed
		}, time.Second, time.Millisecond)
		return transport.EOF
	}

	req := &testRequest{key: 1}
	ch, err := m.Send(context.Background(), req, []byte("hello"))
	require.NoError(t, err)
	assert.Same(t, secondary, ch)
	assert.Equal(t, []Request{req}, secondary.PendingOperations())
	assert.Zero(t, primary.RequestsPending())

	close(racing.release)
	wg.Wait()
	assert.Equal(t, []*ChannelInfo{secondary}, m.Channels())
	assert.True(t, m.Complete(ch, req, 0))
}

func TestManager_FailoverEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0311)
	m := fx.manager
	events := m.Subscribe()

	primary, _ := registerPrimary(t, m)
	m.Failover().HandleFailure(primary, transport.EOF)
	assert.Empty(t, m.Channels())
	require.Equal(t, 1, fx.scheduler.RunDue())

	var recovered ChannelEvent
	var got []ChannelEventType
	for recovered.Type != ChannelEventRecovered {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
			if ev.Type == ChannelEventRecovered {
				recovered = ev
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting events, got %v", got)
		}
	}
	assert.Equal(t, []ChannelEventType{ChannelEventAdded, ChannelEventFailed, ChannelEventRemoved, ChannelEventAdded, ChannelEventRecovered}, got)
	assert.Same(t, primary, recovered.Previous)
	assert.Equal(t, []*ChannelInfo{recovered.Channel}, m.Channels())
	assert.Same(t, local1, recovered.Channel.LocalInterface())
	assert.Same(t, remote1, recovered.Channel.RemoteInterface())
}

func TestManager_EstablishReplacementChannel(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("使用中でない組を優先する", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0300)
		m := fx.manager
		registerPrimary(t, m)
		require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1}))
		require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))

		ch, err := m.EstablishReplacementChannel(context.Background())
		require.NoError(t, err)
		assert.Same(t, local1, ch.LocalInterface())
		assert.Same(t, remote2, ch.RemoteInterface())
		assert.Len(t, m.Channels(), 2)
	})

	t.Run("インターフェースがない", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0300)
		_, err := fx.manager.EstablishReplacementChannel(context.Background())
		assert.ErrorIs(t, err, errors.ErrNoInterfacePairing)
	})

	t.Run("上限に達している", func(t *testing.T) {
		fx := newManagerFixture(t, smb.Dialect0300, WithMaxChannels(1))
		m := fx.manager
		registerPrimary(t, m)
		require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1}))
		require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))

		_, err := m.EstablishReplacementChannel(context.Background())
		assert.ErrorIs(t, err, errors.ErrChannelLimitReached)
		assert.Equal(t, 1, fx.serverCount())
	})
}

type keepAliverFunc func(ctx context.Context, tr transport.Transport) error

func (f keepAliverFunc) KeepAlive(ctx context.Context, tr transport.Transport) error {
	return f(ctx, tr)
}

func TestManager_CheckHealth(t *testing.T) {
	defer goleak.VerifyNone(t)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	SetNow(t, func() time.Time { return clock })

	broken, _ := transport.Pipe()
	var mu sync.Mutex
	var probed []transport.Transport
	fx := newManagerFixture(t, smb.Dialect0300,
		WithIdleTimeout(time.Minute),
		WithKeepAliver(keepAliverFunc(func(ctx context.Context, tr transport.Transport) error {
			mu.Lock()
			defer mu.Unlock()
			probed = append(probed, tr)
			if tr == broken {
				return transport.EOF
			}
			return nil
		})),
	)
	m := fx.manager

	primary, _ := registerPrimary(t, m)
	stale := NewChannelInfo(NewChannelID(), broken, local2, remote2)
	stale.SetState(ChannelStateEstablished)
	require.NoError(t, m.AddChannel(stale))

	t.Run("無通信時間が短い場合はキープアライブしない", func(t *testing.T) {
		m.CheckHealth(context.Background())
		mu.Lock()
		defer mu.Unlock()
		assert.Empty(t, probed)
	})

	clock = clock.Add(2 * time.Minute)
	m.CheckHealth(context.Background())

	mu.Lock()
	assert.Len(t, probed, 2)
	mu.Unlock()
	assert.Equal(t, ChannelStateFailed, stale.State())
	assert.Equal(t, []*ChannelInfo{primary}, m.Channels())
	assert.Zero(t, primary.IdleTime())
}

func TestManager_CreateTransport(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctrl := gomock.NewController(t)
	factory := transportmock.NewMockFactory(ctrl)
	m, err := NewManager(sessionmock.NewMockSession(ctrl), sessionmock.NewMockBinder(ctrl), factory,
		WithScheduler(&manualScheduler{}),
		WithDiscoveryInterval(0),
	)
	require.NoError(t, err)
	defer m.Close()

	t.Run("接続済みのトランスポートを返却する", func(t *testing.T) {
		tr := transportmock.NewMockTransport(ctrl)
		gomock.InOrder(
			factory.EXPECT().CreateTransport(gomock.Any(), local1, remote1).Return(tr, nil),
			tr.EXPECT().Connect(gomock.Any()).Return(nil),
		)
		got, err := m.CreateTransport(context.Background(), local1, remote1)
		require.NoError(t, err)
		assert.Same(t, tr, got)
	})
	t.Run("接続に失敗した場合は閉じる", func(t *testing.T) {
		tr := transportmock.NewMockTransport(ctrl)
		gomock.InOrder(
			factory.EXPECT().CreateTransport(gomock.Any(), local1, remote2).Return(tr, nil),
			tr.EXPECT().Connect(gomock.Any()).Return(transport.ErrAlreadyClosed),
			tr.EXPECT().Close().Return(nil),
		)
		_, err := m.CreateTransport(context.Background(), local1, remote2)
		assert.ErrorIs(t, err, transport.ErrAlreadyClosed)
	})
	t.Run("生成に失敗", func(t *testing.T) {
		factory.EXPECT().CreateTransport(gomock.Any(), local2, remote2).Return(nil, errors.ErrNoInterfacePairing)
		_, err := m.CreateTransport(context.Background(), local2, remote2)
		assert.ErrorIs(t, err, errors.ErrNoInterfacePairing)
	})
}

type rttTransport struct {
	transport.Transport
	rtt time.Duration
}

func (t *rttTransport) RTT() (time.Duration, time.Duration, bool) {
	return t.rtt, t.rtt / 2, true
}

func TestManager_CheckHealthRTT(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)
	m := fx.manager

	cli, _ := transport.Pipe()
	_, err := m.RegisterPrimary(&rttTransport{Transport: cli, rtt: 2 * time.Millisecond}, local1, remote1)
	require.NoError(t, err)

	m.CheckHealth(context.Background())
	m.CheckHealth(context.Background())

	var metric dto.Metric
	require.NoError(t, fx.metrics.ChannelRTT.Write(&metric))
	assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.004, metric.GetHistogram().GetSampleSum(), 1e-9)
}

func TestManager_AdjustChannelCount(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)
	m := fx.manager
	registerPrimary(t, m)
	require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1, local2}))
	require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))
	require.NoError(t, m.EstablishChannels(context.Background()))
	require.Len(t, m.Channels(), 2)

	// インターフェースが減ると余分なチャネルを取り除く
	require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1}))
	require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1}))
	assert.Eventually(t, func() bool {
		return len(m.Channels()) == 1
	}, time.Second, 10*time.Millisecond)
	primary, ok := m.Primary()
	require.True(t, ok)
	assert.Equal(t, []*ChannelInfo{primary}, m.Channels())

	// 増えると確立する
	require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1, local2}))
	require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))
	assert.Eventually(t, func() bool {
		channels := m.Channels()
		return len(channels) == 2 && channels[1].RemoteInterface() == remote2
	}, time.Second, 10*time.Millisecond)
}

func TestManager_AdjustChannelCountKeepsBusyChannel(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)
	m := fx.manager
	primary, _ := registerPrimary(t, m)
	require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1, local2}))
	require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1, remote2}))
	require.NoError(t, m.EstablishChannels(context.Background()))
	channels := m.Channels()
	require.Len(t, channels, 2)
	secondary := channels[1]

	req := &testRequest{key: 1}
	require.NoError(t, secondary.AddPendingOperation(req))

	require.NoError(t, m.SetRemoteInterfaces([]*nic.Info{remote1}))
	require.NoError(t, m.SetLocalInterfaces([]*nic.Info{local1}))
	require.NoError(t, m.AdjustChannelCount(context.Background()))
	assert.Equal(t, []*ChannelInfo{primary, secondary}, m.Channels())
	assert.Equal(t, ChannelStateActive, secondary.State())
	assert.Equal(t, []Request{req}, secondary.PendingOperations())

	t.Run("完了すると取り除かれる", func(t *testing.T) {
		assert.True(t, m.Complete(secondary, req, 0))
		require.NoError(t, m.AdjustChannelCount(context.Background()))
		assert.Equal(t, []*ChannelInfo{primary}, m.Channels())
		assert.Equal(t, ChannelStateDisconnected, secondary.State())
	})
}

func TestManager_Close(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newManagerFixture(t, smb.Dialect0300)
	m := fx.manager
	events := m.Subscribe()
	primary, _ := registerPrimary(t, m)

	require.NoError(t, m.Close())

	assert.Empty(t, m.Channels())
	assert.Equal(t, ChannelStateDisconnected, primary.State())
	assert.ErrorIs(t, m.AddChannel(newChannel(t, ChannelStateEstablished)), errors.ErrAlreadyShutdown)

	// 購読チャネルは閉じられる
	for range events {
	}
	_, ok := <-m.Subscribe()
	assert.False(t, ok)
}
