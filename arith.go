package baikon

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// evalArith evaluates a basic arithmetic expression over +, -, *, / and
// parentheses. Identifiers resolve against vars and must hold numeric
// values. No other syntax is accepted.
func evalArith(expr string, vars map[string]any) (float64, error) {
	toks, err := tokenizeArith(expr)
	if err != nil {
		return 0, err
	}
	p := &arithParser{toks: toks, vars: vars}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, fmt.Errorf("unexpected token %q", p.toks[p.pos])
	}
	return result, nil
}

// hasArithOperator reports whether raw looks like an arithmetic expression
// worth evaluating. A bare minus is excluded so values like dates and UUIDs
// stay literal; subtraction needs spaces around the operator.
func hasArithOperator(raw string) bool {
	return strings.ContainsAny(raw, "+*/") || strings.Contains(raw, " - ")
}

// numberValue collapses integral results back to int so counters set by
// arithmetic stay whole numbers.
func numberValue(f float64) any {
	if f == float64(int(f)) {
		return int(f)
	}
	return f
}

func tokenizeArith(expr string) ([]string, error) {
	var toks []string
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case strings.ContainsRune("+-*/()", r):
			toks = append(toks, string(r))
			i++
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			toks = append(toks, string(runes[i:j]))
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			toks = append(toks, string(runes[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("invalid character %q in expression", r)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

type arithParser struct {
	toks []string
	pos  int
	vars map[string]any
}

func (p *arithParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *arithParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case "+":
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case "-":
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *arithParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case "*":
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			left *= right
		case "/":
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *arithParser) parseFactor() (float64, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return 0, fmt.Errorf("unexpected end of expression")
	case tok == "(":
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ")" {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	case tok == "-":
		p.pos++
		val, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -val, nil
	case unicode.IsDigit(rune(tok[0])) || tok[0] == '.':
		p.pos++
		val, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", tok)
		}
		return val, nil
	case unicode.IsLetter(rune(tok[0])) || tok[0] == '_':
		p.pos++
		return p.resolve(tok)
	default:
		return 0, fmt.Errorf("unexpected token %q", tok)
	}
}

func (p *arithParser) resolve(name string) (float64, error) {
	v, ok := p.vars[name]
	if !ok {
		return 0, fmt.Errorf("unknown variable %q", name)
	}
	switch val := v.(type) {
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("variable %q is not numeric", name)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("variable %q is not numeric", name)
	}
}
