package multichannel

import (
	"context"
	"sync"

	"github.com/aptpod/smb-go/errors"
	"github.com/aptpod/smb-go/log"
	"github.com/aptpod/smb-go/transport/nic"
)

// Failover は、チャネルの障害を処理し、同じインターフェースの組での復旧や代替チャネルの確立を行います。
type Failover struct {
	manager ChannelManager
	cfg     *Config
	logger  log.Logger
	metrics *Metrics

	// notify は、障害と復旧を通知します。Managerから生成された場合のみ設定されます。
	notify func(ChannelEvent)

	mu           sync.Mutex
	tasks        map[ChannelID]*recoveryTask
	replacements map[uint64]CancelHandle
	replaceSeq   uint64
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type recoveryTask struct {
	state  *FailoverState
	failed *ChannelInfo
	local  *nic.Info
	remote *nic.Info
	handle CancelHandle
}

// NewFailover は、managerのチャネルに対する Failover を返却します。
func NewFailover(manager ChannelManager, opts ...Option) (*Failover, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newFailover(manager, cfg, nil), nil
}

func newFailover(manager ChannelManager, cfg *Config, notify func(ChannelEvent)) *Failover {
	ctx, cancel := context.WithCancel(context.Background())
	return &Failover{
		manager:      manager,
		cfg:          cfg,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		notify:       notify,
		tasks:        make(map[ChannelID]*recoveryTask),
		replacements: make(map[uint64]CancelHandle),
		ctx:          ctx,
		cancel:       cancel,
	}
}

/*
HandleFailure は、チャネルの障害を処理します。ネットワークI/Oを待たずに返却します。

 1. チャネルをFailedへ遷移させ、処理中オペレーションを取り出します。
 2. 取り出したオペレーションを他の健全なチャネルへ再割り当てします。割り当て先がない場合は破棄します。
 3. チャネルをManagerの表から取り除きます。
 4. 復旧試行をスケジュールします。試行回数を使い切った場合は代替チャネルの確立をスケジュールします。

同じチャネルに対して並行に呼び出された場合、Failedへ遷移させた1つの呼び出しのみが処理を行い、
他の呼び出しは2の完了を待ってから返却します。
RemoveChannelなどで既にDisconnectedになっていたチャネルは、再割り当てと表からの削除のみを行い、復旧しません。
*/
func (f *Failover) HandleFailure(ch *ChannelInfo, cause error) {
	ctx := log.WithTrackChannelID(f.ctx, string(ch.ID()))

	drained, prev := ch.markFailed()
	if prev == ChannelStateFailed {
		settled := ch.failureSettled()
		if settled == nil {
			f.manager.RemoveChannel(ch)
			return
		}
		select {
		case <-settled:
		case <-f.ctx.Done():
		}
		return
	}

	if !prev.IsHealthy() {
		f.logger.Debugf(ctx, "Ignored failure of a %s channel: %v", prev, cause)
		f.redistribute(ctx, drained)
		ch.settleFailure()
		f.manager.RemoveChannel(ch)
		return
	}

	f.metrics.recordFailover()
	f.logger.Warnf(ctx, "Channel failed: %v", cause)
	f.emit(ChannelEvent{Type: ChannelEventFailed, Channel: ch, Err: cause})

	f.redistribute(ctx, drained)
	ch.settleFailure()
	f.manager.RemoveChannel(ch)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	task := &recoveryTask{
		state:  NewFailoverState(ch.ID(), now(), f.cfg.MaxRetries, f.cfg.RetryBaseInterval, f.cfg.RetryMaxInterval),
		failed: ch,
		local:  ch.LocalInterface(),
		remote: ch.RemoteInterface(),
	}
	f.tasks[ch.ID()] = task
	f.scheduleLocked(ctx, task)
}

func (f *Failover) redistribute(ctx context.Context, ops []Request) {
	if len(ops) == 0 {
		return
	}
	lb := f.manager.LoadBalancer()
	var reassigned, dropped int
	for _, op := range ops {
		if _, err := lb.Assign(op); err != nil {
			dropped++
			f.metrics.recordRedistributed("dropped")
			f.logger.Warnf(ctx, "Dropped pending operation: %v", err)
			continue
		}
		reassigned++
		f.metrics.recordRedistributed("reassigned")
	}
	f.logger.Infof(ctx, "Redistributed pending operations (reassigned: %d, dropped: %d)", reassigned, dropped)
}

func (f *Failover) scheduleLocked(ctx context.Context, task *recoveryTask) {
	if !task.state.ShouldRetry() {
		delete(f.tasks, task.state.ChannelID())
		f.metrics.recordRecovery("exhausted")
		f.logger.Warnf(ctx, "Recovery retries exhausted after %d attempts, establishing a replacement channel", task.state.RetryCount())
		f.scheduleReplacementLocked()
		return
	}
	delay := task.state.NextRetryTime().Sub(now())
	f.logger.Debugf(ctx, "Scheduled recovery attempt %d in %v", task.state.RetryCount()+1, delay)
	task.handle = f.cfg.Scheduler.Schedule(delay, func() {
		f.attemptRecovery(ctx, task)
	})
}

func (f *Failover) scheduleReplacementLocked() {
	f.replaceSeq++
	seq := f.replaceSeq
	f.replacements[seq] = f.cfg.Scheduler.Schedule(0, func() {
		f.runReplacement(seq)
	})
}

func (f *Failover) attemptRecovery(ctx context.Context, task *recoveryTask) {
	id := task.state.ChannelID()

	f.mu.Lock()
	if f.closed || f.tasks[id] != task {
		f.mu.Unlock()
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()
	defer f.wg.Done()

	actx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	recovered, err := f.recover(actx, task)
	cancel()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if err == nil {
		delete(f.tasks, id)
		f.mu.Unlock()
		f.metrics.recordRecovery("success")
		f.logger.Infof(ctx, "Recovered channel as %s", recovered.ID())
		f.emit(ChannelEvent{Type: ChannelEventRecovered, Channel: recovered, Previous: task.failed})
		return
	}
	defer f.mu.Unlock()

	f.metrics.recordRecovery("failure")
	if errors.Is(err, errors.ErrChannelLimitReached) || errors.Is(err, errors.ErrAlreadyShutdown) {
		delete(f.tasks, id)
		f.logger.Infof(ctx, "Abandoned recovery: %v", err)
		return
	}
	f.logger.Warnf(ctx, "Recovery attempt %d failed: %v", task.state.RetryCount()+1, err)
	task.state.IncrementRetry()
	f.scheduleLocked(ctx, task)
}

func (f *Failover) recover(ctx context.Context, task *recoveryTask) (*ChannelInfo, error) {
	tr, err := f.manager.CreateTransport(ctx, task.local, task.remote)
	if err != nil {
		return nil, err
	}
	binding, err := f.manager.PerformChannelBinding(ctx, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	ch := newBoundChannel(tr, task.local, task.remote, binding, f.cfg.Scoring)
	if err := f.manager.AddChannel(ch); err != nil {
		tr.Close()
		return nil, err
	}
	return ch, nil
}

func (f *Failover) runReplacement(seq uint64) {
	f.mu.Lock()
	if _, ok := f.replacements[seq]; !ok || f.closed {
		f.mu.Unlock()
		return
	}
	delete(f.replacements, seq)
	f.wg.Add(1)
	f.mu.Unlock()
	defer f.wg.Done()

	ch, err := f.manager.EstablishReplacementChannel(f.ctx)
	if err != nil {
		f.metrics.recordReplacement("failure")
		f.logger.Warnf(f.ctx, "Failed to establish a replacement channel, continuing with remaining channels: %v", err)
		return
	}
	f.metrics.recordReplacement("success")
	f.logger.Infof(log.WithTrackChannelID(f.ctx, string(ch.ID())), "Established a replacement channel")
}

// State は、復旧中のチャネルの状態のコピーを返却します。
func (f *Failover) State(id ChannelID) (FailoverState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return FailoverState{}, false
	}
	return *task.state, true
}

// Shutdown は、スケジュール済みの復旧試行を全て取り消し、実行中の試行の終了を待ちます。複数回呼び出しても安全です。
func (f *Failover) Shutdown() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for id, task := range f.tasks {
		if task.handle != nil {
			task.handle.Cancel()
		}
		delete(f.tasks, id)
	}
	for seq, h := range f.replacements {
		h.Cancel()
		delete(f.replacements, seq)
	}
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()
}

func (f *Failover) emit(ev ChannelEvent) {
	if f.notify != nil {
		f.notify(ev)
	}
}
