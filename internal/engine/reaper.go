package engine

import (
	"context"
	"time"
)

// RunReaper periodically force-expires interviews with no activity for the
// configured idle window. It is a backstop against lost or never-armed
// deadline timers; under normal operation the per-question timers fire long
// before the idle window elapses. Blocks until ctx is done.
func (e *Engine) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReapInterval)
	defer ticker.Stop()
	e.logger.Debug("reaper started", "interval", e.cfg.ReapInterval, "idle_timeout", e.cfg.IdleTimeout)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reapIdle()
		}
	}
}

func (e *Engine) reapIdle() {
	now := e.now()
	var outs []terminal

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	for _, key := range e.sessions.Keys() {
		sess, ok := e.sessions.Get(key)
		if !ok {
			continue
		}
		iv := sess.iv
		// A fully answered interview is being scored; its completion
		// goroutine owns the terminal transition.
		if !sess.pending && iv.Answered() {
			continue
		}
		idle := now.Sub(iv.LastSeen)
		if idle <= e.cfg.IdleTimeout {
			continue
		}
		e.logger.Warn("reaping idle interview",
			"requester", iv.Requester, "player", iv.Player, "index", iv.Index, "idle", idle)
		outs = append(outs, e.expireLocked(key, sess, iv.Index))
		e.wg.Add(1)
	}
	e.mu.Unlock()

	for _, out := range outs {
		e.finishTerminal(out)
		e.wg.Done()
	}
}

// RunCooldownSweeper periodically drops expired cooldowns from memory and
// storage, keeping the persisted set from growing without bound. Reads
// already treat expired entries as absent; the sweep is purely hygiene.
// Blocks until ctx is done.
func (e *Engine) RunCooldownSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepCooldowns(ctx)
		}
	}
}

func (e *Engine) sweepCooldowns(ctx context.Context) {
	expired := e.cooldowns.Sweep(e.now())
	for _, cd := range expired {
		if err := e.store.DeleteCooldown(ctx, cd.Requester, cd.Player); err != nil {
			e.logger.Warn("sweep cooldown delete failed",
				"requester", cd.Requester, "player", cd.Player, "error", err)
		}
	}
	if len(expired) > 0 {
		e.logger.Debug("swept expired cooldowns", "count", len(expired))
	}
}
