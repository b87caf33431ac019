package baikon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Andrewo9797/baikon/dsl"
	"github.com/Andrewo9797/baikon/httpapi"
)

// APIClient is the narrow HTTP contract consumed by the api and get
// actions. httpapi.Client is the default implementation.
type APIClient interface {
	Do(ctx context.Context, method, url string, body any, timeout time.Duration) (*httpapi.Response, error)
}

// TimerKey identifies one timer registration.
type TimerKey struct {
	Module  string
	Flow    string
	Pattern string
}

type timerEntry struct {
	key      TimerKey
	interval time.Duration
	lastRun  time.Time
	module   *dsl.Module
	flow     *dsl.Flow
	trigger  *dsl.Trigger
}

type eventHandler struct {
	module  *dsl.Module
	flow    *dsl.Flow
	trigger *dsl.Trigger
}

// Engine loads flow-script modules and routes conversation input through
// their triggers, flows and functions. All exported methods are safe for
// concurrent use; individual Contexts are not.
type Engine struct {
	config Config
	logger *slog.Logger
	client APIClient
	store  VariableStore

	mu          sync.RWMutex
	modules     map[string]*dsl.Module
	moduleOrder []string
	middleware  map[string]Middleware
	rateLimit   *rateLimitMiddleware
	timers      map[TimerKey]*timerEntry
	events      map[string][]eventHandler

	schedMu sync.Mutex
	stopCh  chan struct{}
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAPIClient replaces the outbound HTTP client.
func WithAPIClient(client APIClient) Option {
	return func(e *Engine) { e.client = client }
}

// WithStore attaches a durable store for persistent variables.
func WithStore(store VariableStore) Option {
	return func(e *Engine) { e.store = store }
}

// New creates an engine with the logging and rate_limit middleware
// pre-registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		config:     DefaultConfig(),
		logger:     slog.Default(),
		modules:    make(map[string]*dsl.Module),
		middleware: make(map[string]Middleware),
		timers:     make(map[TimerKey]*timerEntry),
		events:     make(map[string][]eventHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = httpapi.New()
	}
	e.rateLimit = newRateLimitMiddleware(e.config.RateLimit, e.logger)
	e.middleware["logging"] = &loggingMiddleware{logger: e.logger}
	e.middleware["rate_limit"] = e.rateLimit
	return e
}

// LoadModule parses and registers a flow-script file. The optional name
// overrides the default, the file's base name without extension. On parse
// failure nothing is registered and any previously loaded version stays
// active.
func (e *Engine) LoadModule(path, name string) error {
	module, err := dsl.NewParser().ParseFile(path)
	if err != nil {
		loadErr := &ModuleLoadError{Source: path, Err: err}
		e.logger.Error("module load failed", "path", path, "error", err)
		return loadErr
	}
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	module.Name = name
	e.register(module)
	return nil
}

// LoadModuleSource registers a module parsed from source text.
func (e *Engine) LoadModuleSource(src, name string) error {
	module, err := dsl.NewParser().Parse(src, name)
	if err != nil {
		loadErr := &ModuleLoadError{Source: name, Err: err}
		e.logger.Error("module load failed", "module", name, "error", err)
		return loadErr
	}
	e.register(module)
	return nil
}

// register installs a parsed module, replacing any previous version under
// the same name while keeping its position in load order. Timer and event
// registrations for the old version are dropped and rebuilt.
func (e *Engine) register(module *dsl.Module) {
	e.mu.Lock()

	if _, existed := e.modules[module.Name]; !existed {
		e.moduleOrder = append(e.moduleOrder, module.Name)
	}
	e.modules[module.Name] = module

	for key := range e.timers {
		if key.Module == module.Name {
			delete(e.timers, key)
		}
	}
	for event, handlers := range e.events {
		kept := handlers[:0]
		for _, h := range handlers {
			if h.module.Name != module.Name {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(e.events, event)
		} else {
			e.events[event] = kept
		}
	}

	now := time.Now()
	for _, flow := range module.FlowsInOrder() {
		for i := range flow.Triggers {
			t := &flow.Triggers[i]
			switch t.Type {
			case dsl.TriggerTimer:
				interval, ok := dsl.ParseDuration(t.Pattern)
				if !ok {
					e.logger.Warn("invalid timer interval",
						"module", module.Name, "flow", flow.Name, "interval", t.Pattern)
					continue
				}
				key := TimerKey{Module: module.Name, Flow: flow.Name, Pattern: t.Pattern}
				e.timers[key] = &timerEntry{
					key:      key,
					interval: interval,
					lastRun:  now,
					module:   module,
					flow:     flow,
					trigger:  t,
				}
			case dsl.TriggerEvent:
				e.events[t.Pattern] = append(e.events[t.Pattern], eventHandler{
					module:  module,
					flow:    flow,
					trigger: t,
				})
			}
		}
	}

	if settings, ok := module.Middleware["rate_limit"]; ok {
		if limit, ok := settings["limit"].(int); ok {
			e.rateLimit.SetLimit(limit)
		}
	}

	e.mu.Unlock()
	e.logger.Info("module loaded",
		"module", module.Name,
		"flows", len(module.Flows),
		"functions", len(module.Functions),
		"variables", len(module.Variables))
}

// CreateContext builds a fresh session context seeded with every loaded
// module's variable defaults. On name collisions the first-loaded module
// wins. Stored values for persistent variables override the defaults.
func (e *Engine) CreateContext(userID, sessionID string) *Context {
	fc := NewContext(userID, sessionID)

	e.mu.RLock()
	order := make([]string, len(e.moduleOrder))
	copy(order, e.moduleOrder)
	mods := make([]*dsl.Module, 0, len(order))
	for _, name := range order {
		mods = append(mods, e.modules[name])
	}
	e.mu.RUnlock()

	for _, module := range mods {
		for _, v := range module.VariablesInOrder() {
			if _, exists := fc.Variables[v.Name]; !exists {
				fc.Variables[v.Name] = v.Value
			}
		}
	}

	if e.store != nil {
		for _, module := range mods {
			stored, err := e.store.LoadVariables(module.Name)
			if err != nil {
				e.logger.Warn("load stored variables failed", "module", module.Name, "error", err)
				continue
			}
			for _, v := range module.VariablesInOrder() {
				if !v.Persistent {
					continue
				}
				if value, ok := stored[v.Name]; ok {
					fc.Variables[v.Name] = value
				}
			}
		}
	}
	return fc
}

// ProcessInput matches input against every loaded module and runs all
// matching flows in priority order, collecting their outputs. A failed
// flow contributes an inline error line instead of aborting the rest.
func (e *Engine) ProcessInput(ctx context.Context, input string, fc *Context) []string {
	if fc == nil {
		fc = e.CreateContext("", "")
	}
	input = strings.TrimSpace(input)

	var responses []string
	for _, m := range e.Match(input, fc) {
		outputs, err := e.runFlow(ctx, m.Module, m.Flow, m.Trigger, fc)
		if err != nil {
			e.logger.Error("flow failed",
				"module", m.Module.Name, "flow", m.Flow.Name, "error", err)
			responses = append(responses, "Error: "+err.Error())
			continue
		}
		responses = append(responses, outputs...)
	}
	return responses
}

// CallFunction invokes a named function directly, outside any flow.
func (e *Engine) CallFunction(ctx context.Context, moduleName, fnName, params string, fc *Context) (string, error) {
	e.mu.RLock()
	module, ok := e.modules[moduleName]
	e.mu.RUnlock()
	if !ok {
		return "", ErrModuleNotFound
	}
	fn, ok := module.Functions[fnName]
	if !ok {
		return "", ErrFunctionNotFound
	}
	if fc == nil {
		fc = e.CreateContext("", "")
	}
	return e.callFunction(ctx, module, fn, params, fc)
}

// Emit dispatches an event from the host application into the loaded
// modules' event handlers.
func (e *Engine) Emit(ctx context.Context, event, data string, fc *Context) error {
	if fc == nil {
		fc = e.CreateContext("", "")
	}
	return e.emitEvent(ctx, event, data, fc)
}

// ModuleInfo summarizes a loaded module for inspection.
type ModuleInfo struct {
	Name      string
	Version   string
	Flows     []string
	Functions []string
	Variables []string
	Imports   []string
}

// GetModuleInfo reports on one loaded module.
func (e *Engine) GetModuleInfo(name string) (*ModuleInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	module, ok := e.modules[name]
	if !ok {
		return nil, false
	}
	return &ModuleInfo{
		Name:      module.Name,
		Version:   module.Version,
		Flows:     module.FlowNames(),
		Functions: module.FunctionNames(),
		Variables: module.VariableNames(),
		Imports:   append([]string(nil), module.Imports...),
	}, true
}

// ListModules returns loaded module names in load order.
func (e *Engine) ListModules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.moduleOrder...)
}

// Module returns a loaded module by name.
func (e *Engine) Module(name string) (*dsl.Module, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	module, ok := e.modules[name]
	return module, ok
}
