package nic

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/log"
)

// Snapshot is an immutable view of the known local and remote interfaces.
type Snapshot struct {
	Version uint64
	Local   []*Info
	Remote  []*Info
}

// Manager tracks the usable local and remote interfaces and notifies
// subscribers whenever either list changes.
type Manager struct {
	snapshot      atomic.Pointer[Snapshot]
	updateMu      sync.Mutex
	subscribers   []chan Snapshot
	subscribersMu sync.Mutex
	changeEventCh chan Snapshot
	logger        log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func OpenManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		changeEventCh: make(chan Snapshot, 8),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	m.snapshot.Store(&Snapshot{})
	go m.start()
	return m
}

func (m *Manager) Close() {
	select {
	case <-m.ctx.Done():
		return
	default:
	}
	m.cancel()
	<-m.done
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
}

func (m *Manager) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

func (m *Manager) Local() []*Info {
	return m.snapshot.Load().Local
}

func (m *Manager) Remote() []*Info {
	return m.snapshot.Load().Remote
}

// UpdateLocal replaces the local interface list. Unusable and duplicate
// interfaces are dropped and the rest sorted by score.
func (m *Manager) UpdateLocal(infos []*Info) error {
	return m.update(func(s *Snapshot) bool {
		next := normalize(infos)
		if sameInfos(s.Local, next) {
			return false
		}
		s.Local = next
		return true
	})
}

// UpdateRemote replaces the remote interface list.
func (m *Manager) UpdateRemote(infos []*Info) error {
	return m.update(func(s *Snapshot) bool {
		next := normalize(infos)
		if sameInfos(s.Remote, next) {
			return false
		}
		s.Remote = next
		return true
	})
}

// RefreshLocal rediscovers the host interfaces.
func (m *Manager) RefreshLocal() error {
	infos, err := DiscoverLocal()
	if err != nil {
		return err
	}
	return m.UpdateLocal(infos)
}

func (m *Manager) update(apply func(s *Snapshot) bool) error {
	select {
	case <-m.ctx.Done():
		return errors.ErrAlreadyShutdown
	default:
	}

	m.updateMu.Lock()
	next := *m.snapshot.Load()
	if !apply(&next) {
		m.updateMu.Unlock()
		return nil
	}
	next.Version++
	m.snapshot.Store(&next)
	m.updateMu.Unlock()

	select {
	case m.changeEventCh <- next:
	case <-m.ctx.Done():
		return errors.ErrAlreadyShutdown
	default:
		m.logger.Warnf(m.ctx, "Interface change queue is full, dropping notification of version %d", next.Version)
	}
	return nil
}

func (m *Manager) subscribe() chan Snapshot {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	ch := make(chan Snapshot, 1)
	if m.ctx.Err() != nil {
		close(ch)
		return ch
	}
	m.subscribers = append(m.subscribers, ch)
	return ch
}

func (m *Manager) unsubscribe(ch chan Snapshot) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	m.subscribers = slices.DeleteFunc(m.subscribers, func(v chan Snapshot) bool {
		return v == ch
	})
}

// Subscribe returns a channel receiving every interface list change. The
// channel is closed when the manager is closed.
func (m *Manager) Subscribe() <-chan Snapshot {
	ch := m.subscribe()
	resCh := make(chan Snapshot, 1)
	go func() {
		defer close(resCh)
		defer m.unsubscribe(ch)
		for snap := range ch {
			select {
			case <-m.ctx.Done():
				return
			case resCh <- snap:
			}
		}
	}()
	return resCh
}

func (m *Manager) start() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case snap := <-m.changeEventCh:
			m.subscribersMu.Lock()
			subs := slices.Clone(m.subscribers)
			m.subscribersMu.Unlock()
			for _, ch := range subs {
				select {
				case <-m.ctx.Done():
				case ch <- snap:
				default:
					m.logger.Warnf(m.ctx, "Failed to send interface change event version %d", snap.Version)
				}
			}
		}
	}
}

func normalize(infos []*Info) []*Info {
	res := FilterUsable(infos)
	SortByScore(res)
	return res
}

func sameInfos(a, b []*Info) bool {
	return slices.EqualFunc(a, b, func(x, y *Info) bool {
		return x.Equal(y) && x.linkSpeed == y.linkSpeed && x.capability == y.capability
	})
}
