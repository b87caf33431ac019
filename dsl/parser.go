package dsl

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a malformed construct inside a recognized block.
// Line is 1-based.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
}

// Parser parses .flow scripts.
type Parser struct{}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile parses a .flow file.
func (p *Parser) ParseFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.Parse(string(data), path)
}

type blockKind int

const (
	blockNone blockKind = iota
	blockIgnored
	blockConfig
	blockFlow
	blockFunction
	blockMiddleware
)

var (
	reVarDecl = regexp.MustCompile(`^var\s+(persistent\s+)?(\w+)(?:\s*:\s*(\w+))?(?:\s*=\s*(.+))?$`)
	reFuncSig = regexp.MustCompile(`^(async\s+)?(\w+)\s*(?:\((.*)\))?\s*(?:->\s*(.+))?$`)
)

// Parse parses flow-script source into a Module. Lines are matched against
// the trigger/action grammar only inside recognized blocks; unrecognized
// top-level lines are skipped so newer scripts still load on older engines.
func (p *Parser) Parse(src, name string) (*Module, error) {
	m := NewModule(name)

	kind := blockNone
	var curFlow *Flow
	var curFunc *Function
	var curMW map[string]any
	headerDone := false

	lines := strings.Split(src, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		raw = strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		indented := raw[0] == ' ' || raw[0] == '\t'
		if !indented {
			if strings.HasSuffix(trimmed, ":") && p.startBlock(m, trimmed, lineNo, &kind, &curFlow, &curFunc, &curMW, &headerDone) {
				continue
			}
			if strings.HasSuffix(trimmed, ":") && !isHeaderLine(trimmed) {
				// Unknown block header: skip its body too.
				kind = blockIgnored
				continue
			}
			if !headerDone {
				p.parseHeaderLine(m, trimmed)
			}
			// Anything else at the top level is ignored for forward
			// compatibility.
			continue
		}

		switch kind {
		case blockConfig:
			if key, val, ok := splitKeyValue(trimmed); ok {
				m.Config[key] = val
			}
		case blockMiddleware:
			key, val, ok := splitKeyValue(trimmed)
			if !ok {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid middleware setting: %q", trimmed)}
			}
			curMW[key] = val
		case blockFlow:
			if err := p.parseFlowLine(curFlow, trimmed, lineNo); err != nil {
				return nil, err
			}
		case blockFunction:
			act, err := ParseAction(trimmed)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: err.Error()}
			}
			curFunc.Actions = append(curFunc.Actions, *act)
		}
	}

	return m, nil
}

// startBlock handles a non-indented "<keyword> ...:" line. It returns true
// when the line opened a recognized block.
func (p *Parser) startBlock(m *Module, trimmed string, lineNo int, kind *blockKind, curFlow **Flow, curFunc **Function, curMW *map[string]any, headerDone *bool) bool {
	body := strings.TrimSuffix(trimmed, ":")

	switch {
	case body == "config":
		*kind = blockConfig
		return true

	case strings.HasPrefix(body, "flow "):
		name := strings.TrimSpace(body[len("flow "):])
		f := &Flow{Name: name}
		m.AddFlow(f)
		*curFlow = f
		*kind = blockFlow
		*headerDone = true
		return true

	case strings.HasPrefix(body, "function "):
		fn, ok := parseFunctionSignature(strings.TrimSpace(body[len("function "):]))
		if !ok {
			return false
		}
		m.AddFunction(fn)
		*curFunc = fn
		*kind = blockFunction
		*headerDone = true
		return true

	case strings.HasPrefix(body, "middleware "):
		name := strings.TrimSpace(body[len("middleware "):])
		settings := make(map[string]any)
		m.AddMiddlewareConfig(name, settings)
		*curMW = settings
		*kind = blockMiddleware
		*headerDone = true
		return true
	}

	return false
}

func isHeaderLine(trimmed string) bool {
	body := strings.TrimSuffix(trimmed, ":")
	return body == "config" ||
		strings.HasPrefix(body, "flow ") ||
		strings.HasPrefix(body, "function ") ||
		strings.HasPrefix(body, "middleware ")
}

// parseHeaderLine handles version, import and var declarations before the
// first block. Malformed lines are skipped.
func (p *Parser) parseHeaderLine(m *Module, line string) {
	switch {
	case strings.HasPrefix(line, "version:"):
		m.Version = strings.TrimSpace(line[len("version:"):])

	case strings.HasPrefix(line, "import "):
		for _, imp := range strings.Split(line[len("import "):], ",") {
			if imp = strings.TrimSpace(imp); imp != "" {
				m.Imports = append(m.Imports, imp)
			}
		}

	case strings.HasPrefix(line, "var "):
		match := reVarDecl.FindStringSubmatch(line)
		if match == nil {
			return
		}
		v := &Variable{
			Name:       match[2],
			Type:       match[3],
			Persistent: match[1] != "",
		}
		if v.Type == "" {
			v.Type = "string"
		}
		if match[4] != "" {
			v.Value = parseVarDefault(strings.TrimSpace(match[4]))
		} else {
			v.Value = zeroValueFor(v.Type)
		}
		m.AddVariable(v)
	}
}

// parseFlowLine handles one indented line of a flow body.
func (p *Parser) parseFlowLine(f *Flow, line string, lineNo int) error {
	switch {
	case strings.HasPrefix(line, "when "):
		trig, err := parseTrigger(line[len("when "):])
		if err != nil {
			return &ParseError{Line: lineNo, Msg: err.Error()}
		}
		f.Triggers = append(f.Triggers, *trig)
		return nil

	case strings.HasPrefix(line, "use "):
		for _, name := range strings.Split(line[len("use "):], ",") {
			if name = strings.TrimSpace(name); name != "" {
				f.Middleware = append(f.Middleware, name)
			}
		}
		return nil

	case strings.HasPrefix(line, "timeout "):
		d, ok := ParseDuration(strings.TrimSpace(line[len("timeout "):]))
		if !ok {
			return &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid timeout: %q", line)}
		}
		f.Timeout = d
		return nil

	case strings.HasPrefix(line, "retry "):
		n, err := strconv.Atoi(strings.TrimSpace(line[len("retry "):]))
		if err != nil {
			return &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid retry count: %q", line)}
		}
		f.Retry = n
		return nil
	}

	act, err := ParseAction(line)
	if err != nil {
		return &ParseError{Line: lineNo, Msg: err.Error()}
	}
	f.Actions = append(f.Actions, *act)
	return nil
}

// Trigger grammar.
var (
	reTrigPriority  = regexp.MustCompile(`\s+priority\s+(\d+)$`)
	reTrigTarget    = regexp.MustCompile(`^call\s+(\w+)$`)
	reTrigUserSays  = regexp.MustCompile(`^user says "([^"]*)"(?:\s+if\s+(.+))?$`)
	reTrigVarEquals = regexp.MustCompile(`^var (\w+) equals "([^"]*)"(?:\s+if\s+(.+))?$`)
	reTrigAPI       = regexp.MustCompile(`^api (\S+) returns(?:\s+if\s+(.+))?$`)
	reTrigTimer     = regexp.MustCompile(`^timer (\d+[smh]?)(?:\s+if\s+(.+))?$`)
	reTrigEvent     = regexp.MustCompile(`^event (\S+)(?:\s+if\s+(.+))?$`)
	reTrigAlways    = regexp.MustCompile(`^always(?:\s+if\s+(.+))?$`)
)

// parseTrigger parses everything after the "when " keyword.
func parseTrigger(s string) (*Trigger, error) {
	idx := strings.Index(s, "->")
	if idx < 0 {
		return nil, fmt.Errorf("trigger missing '->' target: %q", s)
	}
	left := strings.TrimSpace(s[:idx])
	right := strings.TrimSpace(s[idx+2:])

	target := reTrigTarget.FindStringSubmatch(right)
	if target == nil {
		return nil, fmt.Errorf("invalid trigger target: %q", right)
	}

	trig := &Trigger{Target: target[1]}

	if m := reTrigPriority.FindStringSubmatch(left); m != nil {
		trig.Priority, _ = strconv.Atoi(m[1])
		left = strings.TrimSpace(left[:len(left)-len(m[0])])
	}

	attachConds := func(s string) error {
		if s == "" {
			return nil
		}
		conds, err := parseConditionList(s)
		if err != nil {
			return err
		}
		trig.Conditions = append(trig.Conditions, conds...)
		return nil
	}

	switch {
	case reTrigUserSays.MatchString(left):
		m := reTrigUserSays.FindStringSubmatch(left)
		trig.Type = TriggerUserSays
		trig.Pattern = m[1]
		return trig, attachConds(m[2])

	case reTrigVarEquals.MatchString(left):
		m := reTrigVarEquals.FindStringSubmatch(left)
		trig.Type = TriggerVariableEquals
		trig.Pattern = m[1]
		trig.Conditions = []Condition{{Type: CondEquals, Variable: m[1], Value: m[2]}}
		return trig, attachConds(m[3])

	case reTrigAPI.MatchString(left):
		m := reTrigAPI.FindStringSubmatch(left)
		trig.Type = TriggerAPIResponse
		trig.Pattern = m[1]
		return trig, attachConds(m[2])

	case reTrigTimer.MatchString(left):
		m := reTrigTimer.FindStringSubmatch(left)
		trig.Type = TriggerTimer
		trig.Pattern = m[1]
		return trig, attachConds(m[2])

	case reTrigEvent.MatchString(left):
		m := reTrigEvent.FindStringSubmatch(left)
		trig.Type = TriggerEvent
		trig.Pattern = m[1]
		return trig, attachConds(m[2])

	case reTrigAlways.MatchString(left):
		m := reTrigAlways.FindStringSubmatch(left)
		trig.Type = TriggerAlways
		return trig, attachConds(m[1])
	}

	return nil, fmt.Errorf("unknown trigger: %q", left)
}

// Condition grammar.
var reCondition = regexp.MustCompile(`^(\w+)\s+(equals|contains|greater_than|less_than)\s+"([^"]*)"$`)

// parseConditionList parses an "and"-joined conjunction of condition clauses.
func parseConditionList(s string) ([]Condition, error) {
	var conds []Condition
	for _, clause := range strings.Split(s, " and ") {
		clause = strings.TrimSpace(clause)
		m := reCondition.FindStringSubmatch(clause)
		if m == nil {
			return nil, fmt.Errorf("invalid condition: %q", clause)
		}
		conds = append(conds, Condition{
			Type:     ConditionType(m[2]),
			Variable: m[1],
			Value:    m[3],
		})
	}
	return conds, nil
}

// Action grammar.
var (
	reActIf     = regexp.MustCompile(`^if\s+(.+?)\s+then\s+(.+)$`)
	reActSay    = regexp.MustCompile(`^say\s+"(.*)"$`)
	reActSet    = regexp.MustCompile(`^set\s+(\w+)\s*=\s*(.+)$`)
	reActCall   = regexp.MustCompile(`^call\s+(\w+)\s*(?:\((.*)\))?$`)
	reActAPI    = regexp.MustCompile(`(?i)^api\s+(get|post|put|delete)\s+(\S+)(?:\s+with\s+(.+))?$`)
	reActEmit   = regexp.MustCompile(`^emit\s+(\S+)(?:\s+with\s+(.+))?$`)
	reActWait   = regexp.MustCompile(`^wait\s+(\d+[smh]?)$`)
	reActLoop   = regexp.MustCompile(`^loop\s+(\d+)\s+times:\s*(.+)$`)
	reActGet    = regexp.MustCompile(`^get\s+(\w+)\s+from\s+(\S+)$`)
	reActImport = regexp.MustCompile(`^import\s+(\w+)$`)
)

// ParseAction parses a single action line. It is also used at runtime to
// parse the nested action text of "if" and "loop" actions.
func ParseAction(line string) (*Action, error) {
	line = strings.TrimSpace(line)

	if m := reActIf.FindStringSubmatch(line); m != nil {
		return &Action{
			Type:   ActionIf,
			Params: map[string]string{"condition": m[1], "action": m[2]},
		}, nil
	}

	// A trailing "if <cond>" clause guards the action. The clause only
	// counts when it parses as a condition list, so an "if" inside quoted
	// text stays part of the action.
	var guard []Condition
	if idx := strings.LastIndex(line, " if "); idx > 0 {
		if conds, err := parseConditionList(line[idx+4:]); err == nil {
			guard = conds
			line = strings.TrimSpace(line[:idx])
		}
	}

	act := &Action{Params: map[string]string{}, Conditions: guard}

	switch {
	case reActSay.MatchString(line):
		m := reActSay.FindStringSubmatch(line)
		act.Type = ActionSay
		act.Params["message"] = m[1]

	case reActSet.MatchString(line):
		m := reActSet.FindStringSubmatch(line)
		act.Type = ActionSet
		act.Params["variable"] = m[1]
		act.Params["value"] = unquote(strings.TrimSpace(m[2]))

	case reActCall.MatchString(line):
		m := reActCall.FindStringSubmatch(line)
		act.Type = ActionCall
		act.Params["function"] = m[1]
		act.Params["params"] = m[2]

	case reActAPI.MatchString(line):
		m := reActAPI.FindStringSubmatch(line)
		act.Type = ActionAPI
		act.Params["method"] = strings.ToLower(m[1])
		act.Params["url"] = m[2]
		act.Params["data"] = m[3]

	case reActEmit.MatchString(line):
		m := reActEmit.FindStringSubmatch(line)
		act.Type = ActionEmit
		act.Params["event"] = m[1]
		act.Params["data"] = m[2]

	case reActWait.MatchString(line):
		m := reActWait.FindStringSubmatch(line)
		act.Type = ActionWait
		act.Params["duration"] = m[1]

	case reActLoop.MatchString(line):
		m := reActLoop.FindStringSubmatch(line)
		act.Type = ActionLoop
		act.Params["count"] = m[1]
		act.Params["action"] = m[2]

	case reActGet.MatchString(line):
		m := reActGet.FindStringSubmatch(line)
		act.Type = ActionGet
		act.Params["variable"] = m[1]
		act.Params["url"] = m[2]

	case reActImport.MatchString(line):
		m := reActImport.FindStringSubmatch(line)
		act.Type = ActionImport
		act.Params["module"] = m[1]

	default:
		return nil, fmt.Errorf("unknown action: %q", line)
	}

	return act, nil
}

// parseFunctionSignature parses "name", "async name(p1: type, p2) -> ret".
func parseFunctionSignature(sig string) (*Function, bool) {
	m := reFuncSig.FindStringSubmatch(sig)
	if m == nil {
		return nil, false
	}
	fn := &Function{
		Name:    m[2],
		Async:   m[1] != "",
		Returns: strings.TrimSpace(m[4]),
	}
	if m[3] != "" {
		for _, part := range strings.Split(m[3], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			p := Param{Name: part}
			if name, typ, ok := strings.Cut(part, ":"); ok {
				p.Name = strings.TrimSpace(name)
				p.Type = strings.TrimSpace(typ)
			}
			fn.Params = append(fn.Params, p)
		}
	}
	return fn, true
}

// ParseDuration parses a flow-script duration: digits with an optional
// s/m/h suffix. Bare digits are seconds.
func ParseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	unit := time.Second
	switch s[len(s)-1] {
	case 's':
		s = s[:len(s)-1]
	case 'm':
		unit = time.Minute
		s = s[:len(s)-1]
	case 'h':
		unit = time.Hour
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// splitKeyValue parses an indented "key: value" line with best-effort
// literal coercion.
func splitKeyValue(line string) (string, any, bool) {
	key, val, ok := strings.Cut(line, ":")
	if !ok {
		return "", nil, false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil, false
	}
	return key, coerceLiteral(strings.TrimSpace(val)), true
}

// coerceLiteral turns config text into a typed value: JSON-looking values
// are decoded as JSON, true/false become booleans, digit strings become
// integers, everything else stays a string.
func coerceLiteral(s string) any {
	if s == "" {
		return ""
	}
	if s[0] == '{' || s[0] == '[' || s[0] == '"' {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

// parseVarDefault coerces a variable declaration default. Quoted defaults
// stay strings even when the content looks numeric; escaped quotes inside
// them decode the way Serialize writes them.
func parseVarDefault(s string) any {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var v string
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
		return s[1 : len(s)-1]
	}
	return coerceLiteral(s)
}

func zeroValueFor(typ string) any {
	switch typ {
	case "int":
		return 0
	case "json":
		return map[string]any{}
	default:
		return ""
	}
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
