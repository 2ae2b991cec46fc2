package multichannel_test

import (
	"context"
	"net/netip"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aptpod/smb-go/errors"
	. "github.com/aptpod/smb-go/multichannel"
	"github.com/aptpod/smb-go/session"
	"github.com/aptpod/smb-go/transport"
	"github.com/aptpod/smb-go/transport/nic"
)

type testRequest struct {
	key    uint64
	length int64
}

func (r *testRequest) AffinityKey() uint64   { return r.key }
func (r *testRequest) TransferLength() int64 { return r.length }

type metadataRequest struct {
	key uint64
}

func (r *metadataRequest) AffinityKey() uint64 { return r.key }

func newInfo(addr string, index uint32, speed uint64, capability nic.Capability) *nic.Info {
	return nic.NewInfo(netip.MustParseAddr(addr), index, speed, capability)
}

func newChannel(t *testing.T, state ChannelState, opts ...ChannelOption) *ChannelInfo {
	t.Helper()
	c := NewChannelInfo(NewChannelID(), nil, newInfo("10.0.0.1", 1, 1_000_000_000, 0), newInfo("10.0.1.1", 1, 1_000_000_000, 0), opts...)
	switch state {
	case ChannelStateDisconnected:
	case ChannelStateFailed:
		c.SetState(ChannelStateEstablished)
		_, ok := MarkFailed(c)
		require.True(t, ok)
	default:
		c.SetState(state)
	}
	return c
}

// fakeManager は、テスト用のChannelManagerです。
type fakeManager struct {
	mu       sync.Mutex
	channels []*ChannelInfo
	removed  []ChannelID
	lb       *LoadBalancer

	createTransport func(ctx context.Context, local, remote *nic.Info) (transport.Transport, error)
	bind            func(ctx context.Context, tr transport.Transport) (*session.Binding, error)
	replace         func(ctx context.Context) (*ChannelInfo, error)
	replaceCalls    int
	maxChannels     int
}

func newFakeManager(t *testing.T, opts ...Option) *fakeManager {
	t.Helper()
	m := &fakeManager{
		createTransport: func(ctx context.Context, local, remote *nic.Info) (transport.Transport, error) {
			cli, _ := transport.Pipe()
			return cli, nil
		},
		bind: func(ctx context.Context, tr transport.Transport) (*session.Binding, error) {
			return &session.Binding{SessionID: 1, SigningKey: []byte("key")}, nil
		},
		replace: func(ctx context.Context) (*ChannelInfo, error) {
			return nil, errors.ErrNoInterfacePairing
		},
	}
	lb, err := NewLoadBalancer(m, opts...)
	require.NoError(t, err)
	m.lb = lb
	return m
}

func (m *fakeManager) Channels() []*ChannelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.channels)
}

func (m *fakeManager) HealthyChannels() []*ChannelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*ChannelInfo
	for _, c := range m.channels {
		if c.IsHealthy() {
			res = append(res, c)
		}
	}
	return res
}

func (m *fakeManager) AddChannel(c *ChannelInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxChannels > 0 && len(m.channels) >= m.maxChannels {
		return errors.ErrChannelLimitReached
	}
	m.channels = append(m.channels, c)
	return nil
}

func (m *fakeManager) RemoveChannel(c *ChannelInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := slices.Index(m.channels, c)
	if idx < 0 {
		return
	}
	m.channels = slices.Delete(m.channels, idx, idx+1)
	m.removed = append(m.removed, c.ID())
}

func (m *fakeManager) removedIDs() []ChannelID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.removed)
}

func (m *fakeManager) CreateTransport(ctx context.Context, local, remote *nic.Info) (transport.Transport, error) {
	return m.createTransport(ctx, local, remote)
}

func (m *fakeManager) PerformChannelBinding(ctx context.Context, tr transport.Transport) (*session.Binding, error) {
	return m.bind(ctx, tr)
}

func (m *fakeManager) EstablishReplacementChannel(ctx context.Context) (*ChannelInfo, error) {
	m.mu.Lock()
	m.replaceCalls++
	m.mu.Unlock()
	return m.replace(ctx)
}

func (m *fakeManager) replacementCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceCalls
}

func (m *fakeManager) LoadBalancer() *LoadBalancer {
	return m.lb
}

// manualScheduler は、RunDueを呼び出すまでタスクを実行しないSchedulerです。
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	s        *manualScheduler
	delay    time.Duration
	fn       func()
	canceled bool
	done     bool
}

func (t *manualTask) Cancel() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done || t.canceled {
		return false
	}
	t.canceled = true
	return true
}

func (s *manualScheduler) Schedule(delay time.Duration, fn func()) CancelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{s: s, delay: delay, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

// Pending は、未実行かつ取り消されていないタスクの遅延時間です。
func (s *manualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []time.Duration
	for _, task := range s.tasks {
		if !task.done && !task.canceled {
			res = append(res, task.delay)
		}
	}
	return res
}

// RunDue は、現在キューにあるタスクを実行します。実行中に追加されたタスクは実行しません。
func (s *manualScheduler) RunDue() int {
	s.mu.Lock()
	tasks := slices.Clone(s.tasks)
	s.tasks = nil
	s.mu.Unlock()
	var n int
	for _, task := range tasks {
		s.mu.Lock()
		skip := task.canceled || task.done
		task.done = true
		s.mu.Unlock()
		if skip {
			continue
		}
		task.fn()
		n++
	}
	return n
}
