package baikon

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Andrewo9797/baikon/dsl"
)

// recordingMiddleware logs hook invocations into a shared trace.
type recordingMiddleware struct {
	name    string
	trace   *[]string
	stop    bool
	handles bool
}

func (m *recordingMiddleware) Before(fc *Context, flow *dsl.Flow) bool {
	*m.trace = append(*m.trace, "before:"+m.name)
	return !m.stop
}

func (m *recordingMiddleware) After(fc *Context, flow *dsl.Flow, outputs []string) []string {
	*m.trace = append(*m.trace, "after:"+m.name)
	return outputs
}

func (m *recordingMiddleware) OnError(fc *Context, err error) bool {
	*m.trace = append(*m.trace, "error:"+m.name)
	return m.handles
}

const pipelineScript = `
flow piped:
    use outer, inner
    when user says "go" -> call work

function work:
    say "done"
`

const failingScript = `
flow piped:
    use outer, inner
    when user says "go" -> call work

function work:
    if x equals "x" then explode
`

func TestMiddlewareOrdering(t *testing.T) {
	var trace []string
	e := newTestEngine()
	e.RegisterMiddleware("outer", &recordingMiddleware{name: "outer", trace: &trace})
	e.RegisterMiddleware("inner", &recordingMiddleware{name: "inner", trace: &trace})
	mustLoad(t, e, pipelineScript, "demo")

	got := e.ProcessInput(context.Background(), "go", e.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"done"}) {
		t.Fatalf("ProcessInput() = %v, want [done]", got)
	}
	// Before hooks run in declared order, After hooks in reverse.
	want := []string{"before:outer", "before:inner", "after:inner", "after:outer"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestMiddlewareStopShortCircuits(t *testing.T) {
	var trace []string
	e := newTestEngine()
	e.RegisterMiddleware("outer", &recordingMiddleware{name: "outer", trace: &trace, stop: true})
	e.RegisterMiddleware("inner", &recordingMiddleware{name: "inner", trace: &trace})
	mustLoad(t, e, pipelineScript, "demo")

	got := e.ProcessInput(context.Background(), "go", e.CreateContext("", ""))
	if len(got) != 0 {
		t.Errorf("ProcessInput() = %v, want none when stopped", got)
	}
	want := []string{"before:outer"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestMiddlewareErrorHandled(t *testing.T) {
	var trace []string
	e := newTestEngine()
	e.RegisterMiddleware("outer", &recordingMiddleware{name: "outer", trace: &trace, handles: true})
	e.RegisterMiddleware("inner", &recordingMiddleware{name: "inner", trace: &trace})
	mustLoad(t, e, failingScript, "demo")

	got := e.ProcessInput(context.Background(), "go", e.CreateContext("", ""))
	if len(got) != 0 {
		t.Errorf("ProcessInput() = %v, want none when error handled", got)
	}
	// The first handler wins; inner's OnError never runs and no After fires.
	want := []string{"before:outer", "before:inner", "error:outer"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestMiddlewareErrorUnhandled(t *testing.T) {
	var trace []string
	e := newTestEngine()
	e.RegisterMiddleware("outer", &recordingMiddleware{name: "outer", trace: &trace})
	e.RegisterMiddleware("inner", &recordingMiddleware{name: "inner", trace: &trace})
	mustLoad(t, e, failingScript, "demo")

	got := e.ProcessInput(context.Background(), "go", e.CreateContext("", ""))
	if len(got) != 1 || !strings.HasPrefix(got[0], "Error: ") {
		t.Fatalf("ProcessInput() = %v, want inline error", got)
	}
	want := []string{"before:outer", "before:inner", "error:outer", "error:inner"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestUnknownMiddlewareSkipped(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow piped:
    use does_not_exist
    when user says "go" -> call work

function work:
    say "done"
`, "demo")

	got := e.ProcessInput(context.Background(), "go", e.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"done"}) {
		t.Errorf("ProcessInput() = %v, want [done]", got)
	}
}

func TestActionErrorWrapsCause(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow piped:
    when user says "go" -> call work

function work:
    if x equals "x" then explode
`, "demo")

	flow := mustFlow(t, e, "demo", "piped")
	_, err := e.runFlow(context.Background(), mustModule(t, e, "demo"),
		flow, &flow.Triggers[0], e.CreateContext("", ""))
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("error = %v, want *ActionError", err)
	}
	if actionErr.Action != dsl.ActionIf {
		t.Errorf("Action = %q, want %q", actionErr.Action, dsl.ActionIf)
	}
}

func mustModule(t *testing.T, e *Engine, name string) *dsl.Module {
	t.Helper()
	m, ok := e.Module(name)
	if !ok {
		t.Fatalf("module %q not loaded", name)
	}
	return m
}

func mustFlow(t *testing.T, e *Engine, moduleName, flowName string) *dsl.Flow {
	t.Helper()
	f, ok := mustModule(t, e, moduleName).Flows[flowName]
	if !ok {
		t.Fatalf("flow %q not found", flowName)
	}
	return f
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Now()
	rl := newRateLimitMiddleware(2, testLogger())
	rl.now = func() time.Time { return now }

	fc := NewContext("user-1", "")
	flow := &dsl.Flow{Name: "f"}

	if !rl.Before(fc, flow) || !rl.Before(fc, flow) {
		t.Fatal("first two requests should pass")
	}
	if rl.Before(fc, flow) {
		t.Error("third request within the window should be limited")
	}

	// Another user has an independent window.
	other := NewContext("user-2", "")
	if !rl.Before(other, flow) {
		t.Error("other users should not be limited")
	}

	// After the window slides, requests pass again.
	now = now.Add(61 * time.Second)
	if !rl.Before(fc, flow) {
		t.Error("request after the window should pass")
	}
}

func TestRateLimitModuleOverride(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
middleware rate_limit:
    limit: 1

flow limited:
    use rate_limit
    when user says "go" -> call work

function work:
    say "ok"
`, "demo")

	fc := e.CreateContext("user-1", "")
	first := e.ProcessInput(context.Background(), "go", fc)
	second := e.ProcessInput(context.Background(), "go", fc)
	if !reflect.DeepEqual(first, []string{"ok"}) {
		t.Errorf("first = %v, want [ok]", first)
	}
	if len(second) != 0 {
		t.Errorf("second = %v, want none past the limit", second)
	}
}

func TestFlowInlineActionsRun(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow inline:
    when user says "inline" -> call respond
    say "inline action"

function respond:
    say "from function"
`, "demo")

	// A flow carrying its own action lines is an inline script; the
	// trigger target only matters for flows without direct actions.
	got := e.ProcessInput(context.Background(), "inline", e.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"inline action"}) {
		t.Errorf("ProcessInput() = %v, want [inline action]", got)
	}
}

func TestFlowWithoutActionsDispatchesTarget(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow dispatching:
    when user says "go" -> call respond

function respond:
    say "from function"
`, "demo")

	got := e.ProcessInput(context.Background(), "go", e.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"from function"}) {
		t.Errorf("ProcessInput() = %v, want [from function]", got)
	}
}
