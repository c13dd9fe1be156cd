package research

import (
	"errors"
	"fmt"
)

// Error taxonomy for a research run. Tool errors never escalate past their
// finding; stage errors from the planner and executor are fatal to the run;
// stage errors from the verifier and synthesizer fail open.

// ConfigurationError indicates invalid wiring (unregistered tool, missing
// credential). It is raised before any stage runs.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Detail
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ToolError is a per-tool, non-fatal failure recorded into the owning finding.
type ToolError struct {
	Tool  string
	Cause error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Cause)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// StageError means a stage exhausted its language-model retries.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// SchemaError means model output failed structural validation. One repair
// re-prompt is attempted before it escalates to a StageError.
type SchemaError struct {
	Field  string
	Detail string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema error in %s: %s", e.Field, e.Detail)
	}
	return "schema error: " + e.Detail
}
