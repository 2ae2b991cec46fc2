package multichannel

import (
	"sync"
	"time"
)

// CancelHandle は、スケジュール済みタスクを取り消すハンドルです。
type CancelHandle interface {
	// Cancel は、未実行のタスクを取り消します。実行前に取り消せた場合はtrueを返却します。
	Cancel() bool
}

// Scheduler は、遅延実行タスクを登録します。fnはScheduleの呼び出し元とは別に実行されなければなりません。
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelHandle
}

// SchedulerFunc は、関数をSchedulerとして扱うためのアダプターです。
type SchedulerFunc func(delay time.Duration, fn func()) CancelHandle

func (f SchedulerFunc) Schedule(delay time.Duration, fn func()) CancelHandle {
	return f(delay, fn)
}

type timerScheduler struct{}

// NewTimerScheduler は、time.AfterFuncによるSchedulerを返却します。
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Schedule(delay time.Duration, fn func()) CancelHandle {
	return &timerHandle{t: time.AfterFunc(max(delay, 0), fn)}
}

type timerHandle struct {
	once sync.Once
	t    *time.Timer
	ok   bool
}

func (h *timerHandle) Cancel() bool {
	h.once.Do(func() {
		h.ok = h.t.Stop()
	})
	return h.ok
}
