package baikon

import (
	"errors"
	"fmt"

	"github.com/Andrewo9797/baikon/dsl"
)

var (
	// ErrModuleNotFound is returned when a named module is not loaded.
	ErrModuleNotFound = errors.New("module not found")

	// ErrFunctionNotFound is returned when a called function does not
	// exist in its module.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrEmitDepthExceeded is returned when recursive event emission
	// exceeds the engine's depth limit.
	ErrEmitDepthExceeded = errors.New("event emission depth exceeded")

	// ErrAPIDepthExceeded is returned when api_response handlers issue
	// api calls that re-trigger themselves past the depth limit.
	ErrAPIDepthExceeded = errors.New("api response depth exceeded")
)

// ModuleLoadError reports a failed module load. A module that fails to load
// is never partially registered.
type ModuleLoadError struct {
	Source string
	Err    error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("load module %s: %v", e.Source, e.Err)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }

// ActionError reports a failure while interpreting a single action.
type ActionError struct {
	Action dsl.ActionType
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
