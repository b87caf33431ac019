package baikon

import (
	"context"
	"sort"
	"time"
)

// StartScheduler launches the background loop that fires timer triggers.
// The loop checks registered timers once per second. Starting twice is a
// no-op.
func (e *Engine) StartScheduler() {
	e.schedMu.Lock()
	if e.running {
		e.schedMu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stop := e.stopCh
	e.schedMu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.runDueTimers(context.Background(), time.Now())
			}
		}
	}()
	e.logger.Info("scheduler started")
}

// StopScheduler signals the scheduler loop to exit. In-flight timer flows
// are not interrupted.
func (e *Engine) StopScheduler() {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if !e.running {
		return
	}
	close(e.stopCh)
	e.running = false
	e.logger.Info("scheduler stopped")
}

// runDueTimers fires every timer whose interval has elapsed since its last
// run. Each firing gets a fresh context with no continuity to earlier
// sessions. A failed flow keeps its last run timestamp, so it retries on
// the next check; the failure is logged and never stops the loop.
func (e *Engine) runDueTimers(ctx context.Context, now time.Time) {
	e.mu.RLock()
	var due []*timerEntry
	for _, t := range e.timers {
		if now.Sub(t.lastRun) >= t.interval {
			due = append(due, t)
		}
	}
	e.mu.RUnlock()

	// Map iteration order is random; fire in a stable order.
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].key, due[j].key
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Flow != b.Flow {
			return a.Flow < b.Flow
		}
		return a.Pattern < b.Pattern
	})

	for _, t := range due {
		fc := e.CreateContext("", "")
		_, err := e.runFlow(ctx, t.module, t.flow, t.trigger, fc)
		if err != nil {
			e.logger.Error("timer flow failed",
				"module", t.key.Module, "flow", t.key.Flow, "error", err)
			continue
		}
		e.mu.Lock()
		// Forward only, in case of clock adjustment.
		if now.After(t.lastRun) {
			t.lastRun = now
		}
		e.mu.Unlock()
	}
}
