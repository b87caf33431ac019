package baikon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Context carries the mutable state of one conversation session: the
// variable bindings, cached API responses, and identity of the session.
// A Context is not safe for concurrent use; the engine serializes access
// within a single ProcessInput call.
type Context struct {
	Variables    map[string]any
	APIResponses map[string]any
	UserID       string
	SessionID    string
	RequestID    string
	CreatedAt    time.Time

	emitDepth int
	apiDepth  int
}

// NewContext returns an empty session context. Empty user and session IDs
// get anonymous defaults; the request ID is always freshly generated.
func NewContext(userID, sessionID string) *Context {
	if userID == "" {
		userID = "anonymous"
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Context{
		Variables:    make(map[string]any),
		APIResponses: make(map[string]any),
		UserID:       userID,
		SessionID:    sessionID,
		RequestID:    uuid.NewString(),
		CreatedAt:    time.Now(),
	}
}

// Substitute replaces every {name} placeholder in text with the formatted
// value of the named variable. Placeholders for unset variables are left
// as literal text.
func (c *Context) Substitute(text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	for name, value := range c.Variables {
		placeholder := "{" + name + "}"
		if strings.Contains(text, placeholder) {
			text = strings.ReplaceAll(text, placeholder, FormatValue(value))
		}
	}
	return text
}

// FormatValue renders a variable value for substitution and comparison.
// Floats with no fractional part collapse to their integer form, and
// composite values render as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
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
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
