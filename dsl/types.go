package dsl

import "time"

// TriggerType identifies what kind of stimulus a trigger reacts to.
type TriggerType string

const (
	TriggerUserSays       TriggerType = "user_says"
	TriggerVariableEquals TriggerType = "variable_equals"
	TriggerAPIResponse    TriggerType = "api_response"
	TriggerTimer          TriggerType = "timer"
	TriggerEvent          TriggerType = "event"
	TriggerAlways         TriggerType = "always"
)

// ActionType identifies one executable step kind.
type ActionType string

const (
	ActionSay    ActionType = "say"
	ActionSet    ActionType = "set"
	ActionCall   ActionType = "call"
	ActionAPI    ActionType = "api"
	ActionEmit   ActionType = "emit"
	ActionWait   ActionType = "wait"
	ActionIf     ActionType = "if"
	ActionLoop   ActionType = "loop"
	ActionGet    ActionType = "get"
	ActionImport ActionType = "import"
)

// ConditionType identifies a guard comparison.
type ConditionType string

const (
	CondEquals      ConditionType = "equals"
	CondContains    ConditionType = "contains"
	CondGreaterThan ConditionType = "greater_than"
	CondLessThan    ConditionType = "less_than"
)

// Condition is a single guard clause comparing a context variable against a
// literal value. Conditions attached to a trigger or action form a
// conjunction: all must hold.
type Condition struct {
	Type     ConditionType
	Variable string
	Value    string
}

// Trigger selects a flow (via its target function) when matched.
// The pattern grammar depends on Type: quoted text for user_says, a variable
// name for variable_equals, a duration for timer, an event name for event,
// a URL fragment for api_response, empty for always.
type Trigger struct {
	Type       TriggerType
	Pattern    string
	Conditions []Condition
	Priority   int
	Target     string // function to call when the trigger fires
}

// Action is one executable step. Params keys depend on Type:
//
//	say:    message
//	set:    variable, value
//	call:   function, params
//	api:    method, url, data
//	emit:   event, data
//	wait:   duration
//	if:     condition, action
//	loop:   count, action
//	get:    variable, url
//	import: module
type Action struct {
	Type       ActionType
	Params     map[string]string
	Conditions []Condition // trailing "if" guard, may be empty
}

// Param is a declared function parameter. The type tag is informational.
type Param struct {
	Name string
	Type string
}

// Function is a named, ordered action list with positional parameters.
// Returns and Async are informational only.
type Function struct {
	Name    string
	Params  []Param
	Actions []Action
	Returns string
	Async   bool
}

// Variable is a module-level variable declaration. Value is the default that
// seeds each new context. Persistent marks the variable for write-through to
// a configured durable store.
type Variable struct {
	Name       string
	Value      any
	Type       string
	Persistent bool
}

// Flow is a named group of triggers and/or inline actions. Middleware names
// are applied in declared order. Timeout and Retry are declared but not
// enforced by the engine.
type Flow struct {
	Name       string
	Triggers   []Trigger
	Actions    []Action
	Middleware []string
	Timeout    time.Duration
	Retry      int
}

// Module is one parsed flow-script: flows, functions, variables, imports and
// free-form configuration. Insertion order of flows, functions and variables
// is preserved for deterministic iteration.
type Module struct {
	Name    string
	Version string

	Flows     map[string]*Flow
	Functions map[string]*Function
	Variables map[string]*Variable
	Imports   []string
	Config    map[string]any

	// Middleware holds "middleware <name>:" block settings keyed by name.
	Middleware map[string]map[string]any

	flowOrder       []string
	functionOrder   []string
	variableOrder   []string
	middlewareOrder []string
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:       name,
		Flows:      make(map[string]*Flow),
		Functions:  make(map[string]*Function),
		Variables:  make(map[string]*Variable),
		Config:     make(map[string]any),
		Middleware: make(map[string]map[string]any),
	}
}

// AddFlow registers a flow, replacing any previous flow with the same name
// while keeping its original position.
func (m *Module) AddFlow(f *Flow) {
	if _, ok := m.Flows[f.Name]; !ok {
		m.flowOrder = append(m.flowOrder, f.Name)
	}
	m.Flows[f.Name] = f
}

// AddFunction registers a function, replacing any previous definition.
func (m *Module) AddFunction(f *Function) {
	if _, ok := m.Functions[f.Name]; !ok {
		m.functionOrder = append(m.functionOrder, f.Name)
	}
	m.Functions[f.Name] = f
}

// AddVariable registers a variable declaration, replacing any previous one.
func (m *Module) AddVariable(v *Variable) {
	if _, ok := m.Variables[v.Name]; !ok {
		m.variableOrder = append(m.variableOrder, v.Name)
	}
	m.Variables[v.Name] = v
}

// AddMiddlewareConfig registers a middleware settings block.
func (m *Module) AddMiddlewareConfig(name string, settings map[string]any) {
	if _, ok := m.Middleware[name]; !ok {
		m.middlewareOrder = append(m.middlewareOrder, name)
	}
	m.Middleware[name] = settings
}

// FlowNames returns flow names in declaration order.
func (m *Module) FlowNames() []string {
	return append([]string(nil), m.flowOrder...)
}

// FunctionNames returns function names in declaration order.
func (m *Module) FunctionNames() []string {
	return append([]string(nil), m.functionOrder...)
}

// VariableNames returns variable names in declaration order.
func (m *Module) VariableNames() []string {
	return append([]string(nil), m.variableOrder...)
}

// MiddlewareNames returns middleware block names in declaration order.
func (m *Module) MiddlewareNames() []string {
	return append([]string(nil), m.middlewareOrder...)
}

// FlowsInOrder returns flows in declaration order.
func (m *Module) FlowsInOrder() []*Flow {
	out := make([]*Flow, 0, len(m.flowOrder))
	for _, name := range m.flowOrder {
		out = append(out, m.Flows[name])
	}
	return out
}

// FunctionsInOrder returns functions in declaration order.
func (m *Module) FunctionsInOrder() []*Function {
	out := make([]*Function, 0, len(m.functionOrder))
	for _, name := range m.functionOrder {
		out = append(out, m.Functions[name])
	}
	return out
}

// VariablesInOrder returns variable declarations in declaration order.
func (m *Module) VariablesInOrder() []*Variable {
	out := make([]*Variable, 0, len(m.variableOrder))
	for _, name := range m.variableOrder {
		out = append(out, m.Variables[name])
	}
	return out
}
