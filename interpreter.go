package baikon

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Andrewo9797/baikon/dsl"
)

// maxEmitDepth bounds recursive dispatch so scripts whose handlers
// re-trigger themselves, by emitting the events they handle or by
// fetching URLs that match their own api_response pattern, degrade
// instead of looping.
const maxEmitDepth = 8

func (e *Engine) executeActions(ctx context.Context, actions []dsl.Action, module *dsl.Module, fc *Context) ([]string, error) {
	var outputs []string
	for i := range actions {
		out, err := e.executeAction(ctx, &actions[i], module, fc)
		if err != nil {
			return nil, err
		}
		if out != "" {
			outputs = append(outputs, out)
		}
	}
	return outputs, nil
}

func (e *Engine) executeAction(ctx context.Context, a *dsl.Action, module *dsl.Module, fc *Context) (string, error) {
	if !evalConditions(a.Conditions, fc.Variables) {
		return "", nil
	}

	switch a.Type {
	case dsl.ActionSay:
		return fc.Substitute(a.Params["message"]), nil

	case dsl.ActionSet:
		e.executeSet(a, module, fc)
		return "", nil

	case dsl.ActionCall:
		name := a.Params["function"]
		fn, ok := module.Functions[name]
		if !ok {
			e.logger.Warn("function not found", "module", module.Name, "function", name)
			return "", nil
		}
		return e.callFunction(ctx, module, fn, a.Params["params"], fc)

	case dsl.ActionAPI:
		return e.executeAPICall(ctx, a.Params["method"], a.Params["url"], a.Params["data"], fc), nil

	case dsl.ActionGet:
		return e.executeGet(ctx, a.Params["variable"], a.Params["url"], fc), nil

	case dsl.ActionEmit:
		return "", e.emitEvent(ctx, a.Params["event"], a.Params["data"], fc)

	case dsl.ActionWait:
		if d, ok := dsl.ParseDuration(a.Params["duration"]); ok {
			sleepCtx(ctx, d)
		}
		return "", nil

	case dsl.ActionIf:
		cond := fc.Substitute(a.Params["condition"])
		if !evalConditionString(cond) {
			return "", nil
		}
		nested, err := dsl.ParseAction(a.Params["action"])
		if err != nil {
			return "", &ActionError{Action: dsl.ActionIf, Err: err}
		}
		return e.executeAction(ctx, nested, module, fc)

	case dsl.ActionLoop:
		return e.executeLoop(ctx, a, module, fc)

	case dsl.ActionImport:
		e.importDefaults(a.Params["module"], fc)
		return "", nil
	}

	e.logger.Warn("unknown action type", "type", string(a.Type))
	return "", nil
}

// executeSet resolves the value in order: copy of an existing variable,
// arithmetic result, then literal text. Assignments to variables declared
// persistent write through to the store.
func (e *Engine) executeSet(a *dsl.Action, module *dsl.Module, fc *Context) {
	name := a.Params["variable"]
	raw := a.Params["value"]

	var value any = raw
	if existing, ok := fc.Variables[raw]; ok {
		value = existing
	} else if hasArithOperator(raw) {
		if result, err := evalArith(raw, fc.Variables); err == nil {
			value = numberValue(result)
		}
	}
	fc.Variables[name] = value

	if decl, ok := module.Variables[name]; ok && decl.Persistent && e.store != nil {
		if err := e.store.SaveVariable(module.Name, name, value); err != nil {
			e.logger.Warn("persist variable failed",
				"module", module.Name, "variable", name, "error", err)
		}
	}
}

// callFunction binds comma-separated arguments positionally into the
// session context and runs the function body, joining its outputs with
// newlines. Extra parameters beyond the declared list are dropped.
func (e *Engine) callFunction(ctx context.Context, module *dsl.Module, fn *dsl.Function, params string, fc *Context) (string, error) {
	if params != "" {
		args := strings.Split(params, ",")
		for i, p := range fn.Params {
			if i >= len(args) {
				break
			}
			fc.Variables[p.Name] = stripQuotes(args[i])
		}
	}
	outputs, err := e.executeActions(ctx, fn.Actions, module, fc)
	if err != nil {
		return "", err
	}
	return strings.Join(outputs, "\n"), nil
}

// executeAPICall performs an HTTP request for the api action. Failures
// never abort the flow: they degrade to inline text so the conversation
// keeps going.
func (e *Engine) executeAPICall(ctx context.Context, method, url, data string, fc *Context) string {
	url = fc.Substitute(url)
	method = strings.ToUpper(method)

	var body any
	switch method {
	case "GET":
	case "POST":
		if data != "" {
			if err := json.Unmarshal([]byte(fc.Substitute(data)), &body); err != nil {
				return fmt.Sprintf("API call failed: invalid request data: %v", err)
			}
		}
	default:
		e.logger.Warn("unsupported HTTP method", "method", method)
		return ""
	}

	resp, err := e.client.Do(ctx, method, url, body, e.apiTimeout())
	if err != nil {
		e.logger.Error("api call failed", "method", method, "url", url, "error", err)
		return fmt.Sprintf("API call failed: %v", err)
	}

	fc.APIResponses[url] = resp.Body
	e.dispatchAPIResponse(ctx, url, fc)
	return fmt.Sprintf("API call successful: %d", resp.StatusCode)
}

// executeGet fetches a URL and binds the decoded body to a variable.
// Failures degrade to inline text like api and leave the variable
// untouched.
func (e *Engine) executeGet(ctx context.Context, name, url string, fc *Context) string {
	url = fc.Substitute(url)
	resp, err := e.client.Do(ctx, "GET", url, nil, e.apiTimeout())
	if err != nil {
		e.logger.Error("get failed", "url", url, "error", err)
		return fmt.Sprintf("API call failed: %v", err)
	}
	fc.APIResponses[url] = resp.Body
	fc.Variables[name] = resp.Body
	e.dispatchAPIResponse(ctx, url, fc)
	return ""
}

// dispatchAPIResponse fires every api_response trigger whose pattern
// appears in the requested URL. Handler failures log without propagating
// into the flow that made the request. Dispatch depth is bounded so a
// handler whose api call matches its own pattern cannot recurse forever.
func (e *Engine) dispatchAPIResponse(ctx context.Context, url string, fc *Context) {
	if fc.apiDepth >= maxEmitDepth {
		e.logger.Error("api response dispatch aborted",
			"url", url, "error", &ActionError{
				Action: dsl.ActionAPI,
				Err:    fmt.Errorf("%w: url %q", ErrAPIDepthExceeded, url),
			})
		return
	}

	e.mu.RLock()
	var matches []Match
	for _, name := range e.moduleOrder {
		module := e.modules[name]
		for _, flow := range module.FlowsInOrder() {
			for i := range flow.Triggers {
				t := &flow.Triggers[i]
				if t.Type != dsl.TriggerAPIResponse {
					continue
				}
				if !strings.Contains(url, t.Pattern) {
					continue
				}
				if !evalConditions(t.Conditions, fc.Variables) {
					continue
				}
				matches = append(matches, Match{Module: module, Flow: flow, Trigger: t})
			}
		}
	}
	e.mu.RUnlock()

	fc.apiDepth++
	defer func() { fc.apiDepth-- }()

	for _, m := range matches {
		if _, err := e.runFlow(ctx, m.Module, m.Flow, m.Trigger, fc); err != nil {
			e.logger.Error("api response handler failed",
				"url", url, "flow", m.Flow.Name, "error", err)
		}
	}
}

// emitEvent runs every handler registered for the event in module load
// order, sharing the emitting session's context. The payload is exposed
// as event_<name>_data before handlers run.
func (e *Engine) emitEvent(ctx context.Context, name, data string, fc *Context) error {
	if fc.emitDepth >= maxEmitDepth {
		return &ActionError{
			Action: dsl.ActionEmit,
			Err:    fmt.Errorf("%w: event %q", ErrEmitDepthExceeded, name),
		}
	}

	e.mu.RLock()
	handlers := make([]eventHandler, len(e.events[name]))
	copy(handlers, e.events[name])
	e.mu.RUnlock()

	fc.Variables["event_"+name+"_data"] = fc.Substitute(data)

	fc.emitDepth++
	defer func() { fc.emitDepth-- }()

	for _, h := range handlers {
		if _, err := e.runFlow(ctx, h.module, h.flow, h.trigger, fc); err != nil {
			e.logger.Error("event handler failed",
				"event", name, "flow", h.flow.Name, "error", err)
		}
	}
	return nil
}

// executeLoop re-parses and runs the body once per iteration with
// loop_index bound, so substitutions see the current index.
func (e *Engine) executeLoop(ctx context.Context, a *dsl.Action, module *dsl.Module, fc *Context) (string, error) {
	count, err := strconv.Atoi(a.Params["count"])
	if err != nil || count <= 0 {
		return "", nil
	}

	var outputs []string
	for i := 0; i < count; i++ {
		fc.Variables["loop_index"] = i
		nested, err := dsl.ParseAction(a.Params["action"])
		if err != nil {
			return "", &ActionError{Action: dsl.ActionLoop, Err: err}
		}
		out, err := e.executeAction(ctx, nested, module, fc)
		if err != nil {
			return "", err
		}
		if out != "" {
			outputs = append(outputs, out)
		}
	}
	return strings.Join(outputs, "\n"), nil
}

// importDefaults seeds unset variables from another loaded module's
// declarations. Existing bindings are never overwritten.
func (e *Engine) importDefaults(name string, fc *Context) {
	e.mu.RLock()
	module, ok := e.modules[name]
	e.mu.RUnlock()
	if !ok {
		e.logger.Warn("import skipped, module not loaded", "module", name)
		return
	}
	for _, v := range module.VariablesInOrder() {
		if _, exists := fc.Variables[v.Name]; !exists {
			fc.Variables[v.Name] = v.Value
		}
	}
}

func (e *Engine) apiTimeout() time.Duration {
	return time.Duration(e.config.APITimeout) * time.Second
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
