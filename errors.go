package seisgo

import (
	"errors"
	"fmt"
)

var (
	// ErrNonFinite is returned when an evaluation produces a NaN or Inf in
	// the misfit or gradient, typically from a CFL-unstable time step.
	ErrNonFinite = errors.New("non-finite value in misfit or gradient")
)

// ConfigError indicates an invalid or inconsistent evaluator configuration.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ConfigError struct {
	Field  string
	Reason string
	cause  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.cause }

// EngineError wraps a failure from the modeling engine with the shot it
// occurred on.
//
// The original underlying error can be accessed via errors.Unwrap.
type EngineError struct {
	Op    string
	Shot  int
	cause error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s failed on shot %d: %v", e.Op, e.Shot, e.cause)
}

func (e *EngineError) Unwrap() error { return e.cause }
