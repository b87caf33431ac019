package baikon

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Andrewo9797/baikon/dsl"
)

// Match is one (module, flow, trigger) candidate for an input.
type Match struct {
	Module  *dsl.Module
	Flow    *dsl.Flow
	Trigger *dsl.Trigger
}

// Match returns every trigger matching the input across all loaded
// modules, ordered by priority descending. Ties keep module load order
// and flow declaration order, so matching is deterministic.
func (e *Engine) Match(input string, fc *Context) []Match {
	e.mu.RLock()
	var matches []Match
	for _, name := range e.moduleOrder {
		module := e.modules[name]
		for _, flow := range module.FlowsInOrder() {
			for i := range flow.Triggers {
				trigger := &flow.Triggers[i]
				if matchTrigger(input, trigger, fc) {
					matches = append(matches, Match{Module: module, Flow: flow, Trigger: trigger})
				}
			}
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Trigger.Priority > matches[j].Trigger.Priority
	})
	return matches
}

func matchTrigger(input string, t *dsl.Trigger, fc *Context) bool {
	if !evalConditions(t.Conditions, fc.Variables) {
		return false
	}
	switch t.Type {
	case dsl.TriggerUserSays:
		return matchUserSays(t.Pattern, input, fc)
	case dsl.TriggerVariableEquals:
		// The equality itself lives in the synthesized first condition,
		// already checked above.
		return len(t.Conditions) > 0
	case dsl.TriggerAlways:
		return true
	}
	// Timer, event, and api_response triggers fire through the
	// scheduler and emission paths, never from user input.
	return false
}

// matchUserSays tries exact match, exact match after variable
// substitution, /regex/ search, then wildcard forms, all
// case-insensitively.
func matchUserSays(pattern, input string, fc *Context) bool {
	p := strings.ToLower(pattern)
	in := strings.ToLower(input)

	if in == p {
		return true
	}
	if sub := strings.ToLower(fc.Substitute(pattern)); in == sub {
		return true
	}
	if len(pattern) > 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile("(?i)" + pattern[1:len(pattern)-1])
		return err == nil && re.MatchString(input)
	}
	switch {
	case len(p) >= 2 && strings.HasPrefix(p, "*") && strings.HasSuffix(p, "*"):
		return strings.Contains(in, p[1:len(p)-1])
	case strings.HasPrefix(p, "*"):
		return strings.HasSuffix(in, p[1:])
	case strings.HasSuffix(p, "*"):
		return strings.HasPrefix(in, p[:len(p)-1])
	}
	return false
}

func evalConditions(conds []dsl.Condition, vars map[string]any) bool {
	for _, c := range conds {
		if !evalCondition(c, vars) {
			return false
		}
	}
	return true
}

// evalCondition compares the named variable's formatted value against the
// condition's literal. Missing variables format to the empty string.
func evalCondition(c dsl.Condition, vars map[string]any) bool {
	actual := FormatValue(vars[c.Variable])
	switch c.Type {
	case dsl.CondEquals:
		return actual == c.Value
	case dsl.CondContains:
		return strings.Contains(actual, c.Value)
	case dsl.CondGreaterThan:
		a, errA := strconv.ParseFloat(actual, 64)
		b, errB := strconv.ParseFloat(c.Value, 64)
		return errA == nil && errB == nil && a > b
	case dsl.CondLessThan:
		a, errA := strconv.ParseFloat(actual, 64)
		b, errB := strconv.ParseFloat(c.Value, 64)
		return errA == nil && errB == nil && a < b
	}
	return true
}

// evalConditionString evaluates an inline if condition after variable
// substitution, supporting equals and contains. Anything else is
// permissive.
func evalConditionString(cond string) bool {
	if left, right, ok := strings.Cut(cond, " equals "); ok {
		return stripQuotes(left) == stripQuotes(right)
	}
	if left, right, ok := strings.Cut(cond, " contains "); ok {
		return strings.Contains(stripQuotes(left), stripQuotes(right))
	}
	return true
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
