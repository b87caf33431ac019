package baikon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Andrewo9797/baikon/dsl"
)

// Middleware wraps flow execution with before, after, and error hooks.
type Middleware interface {
	// Before runs ahead of the flow body in declared order. Returning
	// false stops the flow: no actions run, and neither After nor
	// OnError hooks fire.
	Before(fc *Context, flow *dsl.Flow) bool

	// After runs once the flow body succeeds, in reverse declared
	// order, and may transform the accumulated outputs.
	After(fc *Context, flow *dsl.Flow, outputs []string) []string

	// OnError is consulted in declared order when the flow body fails.
	// Returning true marks the error handled and suppresses it.
	OnError(fc *Context, err error) bool
}

// RegisterMiddleware makes a middleware available to flows under the given
// name. Registering over an existing name replaces it.
func (e *Engine) RegisterMiddleware(name string, mw Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middleware[name] = mw
}

// runFlow executes a flow through its middleware pipeline. A flow with
// inline actions runs them as a script; otherwise the trigger's call
// target is dispatched. Unknown middleware names are skipped.
func (e *Engine) runFlow(ctx context.Context, module *dsl.Module, flow *dsl.Flow, trigger *dsl.Trigger, fc *Context) ([]string, error) {
	names, mws := e.resolveMiddleware(flow.Middleware)

	for i, mw := range mws {
		if !mw.Before(fc, flow) {
			e.logger.Info("flow stopped by middleware",
				"flow", flow.Name, "middleware", names[i])
			return nil, nil
		}
	}

	outputs, err := e.runFlowBody(ctx, module, flow, trigger, fc)
	if err != nil {
		for _, mw := range mws {
			if mw.OnError(fc, err) {
				return nil, nil
			}
		}
		return nil, err
	}

	for i := len(mws) - 1; i >= 0; i-- {
		outputs = mws[i].After(fc, flow, outputs)
	}
	return outputs, nil
}

func (e *Engine) runFlowBody(ctx context.Context, module *dsl.Module, flow *dsl.Flow, trigger *dsl.Trigger, fc *Context) ([]string, error) {
	if len(flow.Actions) > 0 {
		return e.executeActions(ctx, flow.Actions, module, fc)
	}
	if trigger != nil && trigger.Target != "" {
		fn, ok := module.Functions[trigger.Target]
		if !ok {
			e.logger.Warn("trigger target not found",
				"module", module.Name, "flow", flow.Name, "function", trigger.Target)
			return nil, nil
		}
		out, err := e.callFunction(ctx, module, fn, "", fc)
		if err != nil {
			return nil, err
		}
		if out == "" {
			return nil, nil
		}
		return []string{out}, nil
	}
	return nil, nil
}

func (e *Engine) resolveMiddleware(names []string) ([]string, []Middleware) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var resolved []string
	var mws []Middleware
	for _, name := range names {
		mw, ok := e.middleware[name]
		if !ok {
			e.logger.Warn("unknown middleware", "middleware", name)
			continue
		}
		resolved = append(resolved, name)
		mws = append(mws, mw)
	}
	return resolved, mws
}

// loggingMiddleware records flow entry and exit.
type loggingMiddleware struct {
	logger *slog.Logger
}

func (m *loggingMiddleware) Before(fc *Context, flow *dsl.Flow) bool {
	m.logger.Info("executing flow", "flow", flow.Name, "user", fc.UserID)
	return true
}

func (m *loggingMiddleware) After(fc *Context, flow *dsl.Flow, outputs []string) []string {
	m.logger.Info("flow completed", "flow", flow.Name, "outputs", len(outputs))
	return outputs
}

func (m *loggingMiddleware) OnError(fc *Context, err error) bool {
	return false
}

// rateLimitMiddleware enforces a per-user request ceiling over a sliding
// one-minute window. A module's middleware block can override the limit.
type rateLimitMiddleware struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string][]time.Time
	logger   *slog.Logger
	now      func() time.Time
}

func newRateLimitMiddleware(limit int, logger *slog.Logger) *rateLimitMiddleware {
	return &rateLimitMiddleware{
		limit:    limit,
		window:   time.Minute,
		requests: make(map[string][]time.Time),
		logger:   logger,
		now:      time.Now,
	}
}

func (m *rateLimitMiddleware) SetLimit(limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 {
		m.limit = limit
	}
}

func (m *rateLimitMiddleware) Before(fc *Context, flow *dsl.Flow) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	recent := m.requests[fc.UserID][:0]
	for _, t := range m.requests[fc.UserID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= m.limit {
		m.requests[fc.UserID] = recent
		m.logger.Warn("rate limit exceeded", "user", fc.UserID, "flow", flow.Name)
		return false
	}
	m.requests[fc.UserID] = append(recent, now)
	return true
}

func (m *rateLimitMiddleware) After(fc *Context, flow *dsl.Flow, outputs []string) []string {
	return outputs
}

func (m *rateLimitMiddleware) OnError(fc *Context, err error) bool {
	return false
}
