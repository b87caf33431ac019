package baikon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Andrewo9797/baikon/httpapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(opts ...Option) *Engine {
	return New(append([]Option{WithLogger(testLogger())}, opts...)...)
}

func mustLoad(t *testing.T, e *Engine, src, name string) {
	t.Helper()
	if err := e.LoadModuleSource(src, name); err != nil {
		t.Fatalf("LoadModuleSource(%q) returned error: %v", name, err)
	}
}

type apiCall struct {
	Method string
	URL    string
	Body   any
}

// fakeClient records requests and serves canned responses keyed by URL.
type fakeClient struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]*httpapi.Response
	err       error
}

func (f *fakeClient) Do(ctx context.Context, method, url string, body any, timeout time.Duration) (*httpapi.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, URL: url, Body: body})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	return &httpapi.Response{StatusCode: 200, Body: map[string]any{}}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memStore is an in-memory VariableStore.
type memStore struct {
	mu   sync.Mutex
	vars map[string]map[string]any
}

func newMemStore() *memStore {
	return &memStore{vars: make(map[string]map[string]any)}
}

func (s *memStore) SaveVariable(module, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vars[module] == nil {
		s.vars[module] = make(map[string]any)
	}
	s.vars[module][name] = value
	return nil
}

func (s *memStore) LoadVariables(module string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any)
	for k, v := range s.vars[module] {
		out[k] = v
	}
	return out, nil
}

func TestProcessInputSimple(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow greeting:
    when user says "hello" -> call greet

function greet:
    say "Hi there!"
`, "demo")

	got := e.ProcessInput(context.Background(), "hello", e.CreateContext("", ""))
	want := []string{"Hi there!"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ProcessInput() = %v, want %v", got, want)
	}
}

func TestProcessInputNoMatch(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow greeting:
    when user says "hello" -> call greet

function greet:
    say "Hi!"
`, "demo")

	if got := e.ProcessInput(context.Background(), "what is this", nil); len(got) != 0 {
		t.Errorf("ProcessInput() = %v, want none", got)
	}
}

func TestProcessInputCounter(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
var count: int = 0

flow counting:
    when user says "count" -> call bump

function bump:
    set count = count + 1
    say "count={count}"
`, "demo")

	fc := e.CreateContext("", "")
	first := e.ProcessInput(context.Background(), "count", fc)
	second := e.ProcessInput(context.Background(), "count", fc)
	if !reflect.DeepEqual(first, []string{"count=1"}) {
		t.Errorf("first = %v, want [count=1]", first)
	}
	if !reflect.DeepEqual(second, []string{"count=2"}) {
		t.Errorf("second = %v, want [count=2]", second)
	}
}

func TestProcessInputInlineError(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow broken:
    when user says "go" -> call run_it

function run_it:
    say "before"
    if x equals "x" then fly away
`, "demo")

	got := e.ProcessInput(context.Background(), "go", e.CreateContext("", ""))
	if len(got) != 1 {
		t.Fatalf("ProcessInput() = %v, want one inline error", got)
	}
	if got[0][:7] != "Error: " {
		t.Errorf("response = %q, want Error: prefix", got[0])
	}
}

func TestLoadFailureKeepsPreviousVersion(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
flow greeting:
    when user says "hello" -> call greet

function greet:
    say "old"
`, "demo")

	err := e.LoadModuleSource(`
flow greeting:
    when nonsense happens -> call greet
`, "demo")
	var loadErr *ModuleLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("LoadModuleSource() error = %v, want *ModuleLoadError", err)
	}

	got := e.ProcessInput(context.Background(), "hello", e.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"old"}) {
		t.Errorf("ProcessInput() after failed reload = %v, want [old]", got)
	}
}

func TestReloadReplacesModule(t *testing.T) {
	e := newTestEngine()
	src := `
flow greeting:
    when user says "hello" -> call greet

function greet:
    say "v1"
`
	mustLoad(t, e, src, "demo")
	mustLoad(t, e, src, "demo")

	if mods := e.ListModules(); len(mods) != 1 {
		t.Fatalf("ListModules() = %v, want one entry", mods)
	}
	got := e.ProcessInput(context.Background(), "hello", e.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"v1"}) {
		t.Errorf("ProcessInput() = %v, want single [v1]", got)
	}

	mustLoad(t, e, `
flow greeting:
    when user says "hello" -> call greet

function greet:
    say "v2"
`, "demo")
	got = e.ProcessInput(context.Background(), "hello", e.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"v2"}) {
		t.Errorf("ProcessInput() after reload = %v, want [v2]", got)
	}
}

func TestCreateContextFirstModuleWins(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `var greeting = "first"`, "alpha")
	mustLoad(t, e, `var greeting = "second"`, "beta")

	fc := e.CreateContext("", "")
	if fc.Variables["greeting"] != "first" {
		t.Errorf("greeting = %v, want %q", fc.Variables["greeting"], "first")
	}
}

func TestCreateContextIdentity(t *testing.T) {
	e := newTestEngine()
	fc := e.CreateContext("user-1", "")
	if fc.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", fc.UserID, "user-1")
	}
	if fc.SessionID == "" || fc.RequestID == "" {
		t.Error("SessionID and RequestID should be generated")
	}
	anon := e.CreateContext("", "")
	if anon.UserID != "anonymous" {
		t.Errorf("UserID = %q, want %q", anon.UserID, "anonymous")
	}
}

func TestPersistentVariables(t *testing.T) {
	store := newMemStore()
	src := `
var persistent visits: int = 0

flow visiting:
    when user says "visit" -> call bump

function bump:
    set visits = visits + 1
    say "visits={visits}"
`

	e := newTestEngine(WithStore(store))
	mustLoad(t, e, src, "demo")
	fc := e.CreateContext("", "")
	e.ProcessInput(context.Background(), "visit", fc)
	e.ProcessInput(context.Background(), "visit", fc)

	// A new engine with the same store picks up the saved value.
	e2 := newTestEngine(WithStore(store))
	mustLoad(t, e2, src, "demo")
	got := e2.ProcessInput(context.Background(), "visit", e2.CreateContext("", ""))
	if !reflect.DeepEqual(got, []string{"visits=3"}) {
		t.Errorf("ProcessInput() = %v, want [visits=3]", got)
	}
}

func TestCallFunctionDirect(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
function shout(word):
    say "{word}!"
`, "demo")

	out, err := e.CallFunction(context.Background(), "demo", "shout", "hey", nil)
	if err != nil {
		t.Fatalf("CallFunction() returned error: %v", err)
	}
	if out != "hey!" {
		t.Errorf("CallFunction() = %q, want %q", out, "hey!")
	}

	if _, err := e.CallFunction(context.Background(), "nope", "shout", "", nil); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("error = %v, want ErrModuleNotFound", err)
	}
	if _, err := e.CallFunction(context.Background(), "demo", "whisper", "", nil); !errors.Is(err, ErrFunctionNotFound) {
		t.Errorf("error = %v, want ErrFunctionNotFound", err)
	}
}

func TestGetModuleInfo(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `
version: 3.1
import helpers

var mood = "calm"

flow main:
    when always -> call note

function note:
    say "noted"
`, "demo")

	info, ok := e.GetModuleInfo("demo")
	if !ok {
		t.Fatal("GetModuleInfo() did not find module")
	}
	if info.Version != "3.1" {
		t.Errorf("Version = %q, want %q", info.Version, "3.1")
	}
	if !reflect.DeepEqual(info.Flows, []string{"main"}) {
		t.Errorf("Flows = %v", info.Flows)
	}
	if !reflect.DeepEqual(info.Functions, []string{"note"}) {
		t.Errorf("Functions = %v", info.Functions)
	}
	if !reflect.DeepEqual(info.Variables, []string{"mood"}) {
		t.Errorf("Variables = %v", info.Variables)
	}
	if !reflect.DeepEqual(info.Imports, []string{"helpers"}) {
		t.Errorf("Imports = %v", info.Imports)
	}

	if _, ok := e.GetModuleInfo("missing"); ok {
		t.Error("GetModuleInfo() should report missing module")
	}
}

func TestListModulesKeepsLoadOrder(t *testing.T) {
	e := newTestEngine()
	mustLoad(t, e, `var a = "1"`, "zeta")
	mustLoad(t, e, `var b = "2"`, "alpha")
	mustLoad(t, e, `var a = "3"`, "zeta")

	want := []string{"zeta", "alpha"}
	if got := e.ListModules(); !reflect.DeepEqual(got, want) {
		t.Errorf("ListModules() = %v, want %v", got, want)
	}
}
