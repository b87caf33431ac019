package dsl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Serialize renders a module back to canonical flow-script text. Parsing the
// output yields a structurally identical module, so export/import round-trips.
func Serialize(m *Module) string {
	var b strings.Builder

	if m.Version != "" {
		fmt.Fprintf(&b, "version: %s\n\n", m.Version)
	}
	if len(m.Imports) > 0 {
		fmt.Fprintf(&b, "import %s\n\n", strings.Join(m.Imports, ", "))
	}

	for _, v := range m.VariablesInOrder() {
		b.WriteString("var ")
		if v.Persistent {
			b.WriteString("persistent ")
		}
		b.WriteString(v.Name)
		if v.Type != "" {
			b.WriteString(": " + v.Type)
		}
		fmt.Fprintf(&b, " = %s\n", formatLiteral(v.Value))
	}
	if len(m.Variables) > 0 {
		b.WriteString("\n")
	}

	if len(m.Config) > 0 {
		b.WriteString("config:\n")
		for _, key := range sortedKeys(m.Config) {
			fmt.Fprintf(&b, "    %s: %s\n", key, formatLiteral(m.Config[key]))
		}
		b.WriteString("\n")
	}

	for _, name := range m.MiddlewareNames() {
		fmt.Fprintf(&b, "middleware %s:\n", name)
		settings := m.Middleware[name]
		for _, key := range sortedKeys(settings) {
			fmt.Fprintf(&b, "    %s: %s\n", key, formatLiteral(settings[key]))
		}
		b.WriteString("\n")
	}

	for _, f := range m.FlowsInOrder() {
		fmt.Fprintf(&b, "flow %s:\n", f.Name)
		if len(f.Middleware) > 0 {
			fmt.Fprintf(&b, "    use %s\n", strings.Join(f.Middleware, ", "))
		}
		if f.Timeout > 0 {
			fmt.Fprintf(&b, "    timeout %ds\n", int(f.Timeout.Seconds()))
		}
		if f.Retry > 0 {
			fmt.Fprintf(&b, "    retry %d\n", f.Retry)
		}
		for i := range f.Triggers {
			fmt.Fprintf(&b, "    %s\n", serializeTrigger(&f.Triggers[i]))
		}
		for i := range f.Actions {
			fmt.Fprintf(&b, "    %s\n", serializeAction(&f.Actions[i]))
		}
		b.WriteString("\n")
	}

	for _, fn := range m.FunctionsInOrder() {
		b.WriteString("function ")
		if fn.Async {
			b.WriteString("async ")
		}
		b.WriteString(fn.Name)
		if len(fn.Params) > 0 {
			parts := make([]string, len(fn.Params))
			for i, p := range fn.Params {
				if p.Type != "" {
					parts[i] = p.Name + ": " + p.Type
				} else {
					parts[i] = p.Name
				}
			}
			fmt.Fprintf(&b, "(%s)", strings.Join(parts, ", "))
		}
		if fn.Returns != "" {
			fmt.Fprintf(&b, " -> %s", fn.Returns)
		}
		b.WriteString(":\n")
		for i := range fn.Actions {
			fmt.Fprintf(&b, "    %s\n", serializeAction(&fn.Actions[i]))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func serializeTrigger(t *Trigger) string {
	var b strings.Builder
	b.WriteString("when ")

	conds := t.Conditions
	switch t.Type {
	case TriggerUserSays:
		fmt.Fprintf(&b, "user says %q", t.Pattern)
	case TriggerVariableEquals:
		value := ""
		if len(conds) > 0 {
			value = conds[0].Value
			conds = conds[1:]
		}
		fmt.Fprintf(&b, "var %s equals %q", t.Pattern, value)
	case TriggerAPIResponse:
		fmt.Fprintf(&b, "api %s returns", t.Pattern)
	case TriggerTimer:
		fmt.Fprintf(&b, "timer %s", t.Pattern)
	case TriggerEvent:
		fmt.Fprintf(&b, "event %s", t.Pattern)
	case TriggerAlways:
		b.WriteString("always")
	}

	if len(conds) > 0 {
		b.WriteString(" if " + serializeConditions(conds))
	}
	if t.Priority != 0 {
		fmt.Fprintf(&b, " priority %d", t.Priority)
	}
	fmt.Fprintf(&b, " -> call %s", t.Target)
	return b.String()
}

func serializeAction(a *Action) string {
	var b strings.Builder

	switch a.Type {
	case ActionSay:
		fmt.Fprintf(&b, "say %q", a.Params["message"])
	case ActionSet:
		value := a.Params["value"]
		if value == "" {
			value = `""`
		}
		fmt.Fprintf(&b, "set %s = %s", a.Params["variable"], value)
	case ActionCall:
		b.WriteString("call " + a.Params["function"])
		if a.Params["params"] != "" {
			fmt.Fprintf(&b, "(%s)", a.Params["params"])
		}
	case ActionAPI:
		fmt.Fprintf(&b, "api %s %s", a.Params["method"], a.Params["url"])
		if a.Params["data"] != "" {
			b.WriteString(" with " + a.Params["data"])
		}
	case ActionEmit:
		b.WriteString("emit " + a.Params["event"])
		if a.Params["data"] != "" {
			b.WriteString(" with " + a.Params["data"])
		}
	case ActionWait:
		b.WriteString("wait " + a.Params["duration"])
	case ActionIf:
		fmt.Fprintf(&b, "if %s then %s", a.Params["condition"], a.Params["action"])
	case ActionLoop:
		fmt.Fprintf(&b, "loop %s times: %s", a.Params["count"], a.Params["action"])
	case ActionGet:
		fmt.Fprintf(&b, "get %s from %s", a.Params["variable"], a.Params["url"])
	case ActionImport:
		b.WriteString("import " + a.Params["module"])
	}

	if len(a.Conditions) > 0 {
		b.WriteString(" if " + serializeConditions(a.Conditions))
	}
	return b.String()
}

func serializeConditions(conds []Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = fmt.Sprintf("%s %s %q", c.Variable, c.Type, c.Value)
	}
	return strings.Join(parts, " and ")
}

// formatLiteral renders a value so coerceLiteral reads it back unchanged.
func formatLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return `""`
	case string:
		data, _ := json.Marshal(val)
		return string(data)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return `""`
		}
		return string(data)
	}
}

// Config mappings have no declaration-order guarantee; sort for
// deterministic output.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
