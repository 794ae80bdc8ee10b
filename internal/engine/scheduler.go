package engine

import "time"

// Scheduler arms per-question deadlines. Each Arm schedules exactly one
// future invocation of fire, tagged with the (key, index) it was armed for.
// Implementations must run fire on its own goroutine, never inline.
type Scheduler interface {
	Arm(key SessionKey, index int, d time.Duration, fire func()) Handle
}

// Handle is one armed deadline. Cancel is an idempotent no-op on handles
// that already fired or were already cancelled; it reports whether the
// firing was prevented.
type Handle interface {
	Cancel() bool
}

// TimerScheduler is the production Scheduler, one time.AfterFunc per armed
// deadline.
type TimerScheduler struct{}

// NewTimerScheduler returns a Scheduler backed by the runtime timer wheel.
func NewTimerScheduler() *TimerScheduler { return &TimerScheduler{} }

func (*TimerScheduler) Arm(_ SessionKey, _ int, d time.Duration, fire func()) Handle {
	return timerHandle{t: time.AfterFunc(d, fire)}
}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Cancel() bool { return h.t.Stop() }
