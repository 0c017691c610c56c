package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the registry, supervisor and session router.
// Callers match with errors.Is.
var (
	ErrQuotaExceeded  = errors.New("maximum servers per tenant exceeded")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyRunning = errors.New("already running")
	ErrConfig         = errors.New("configuration error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnknownTool    = errors.New("unknown tool")
	ErrProcessFailure = errors.New("process failure")
	ErrInternal       = errors.New("internal error")
)

// ConfigError reports an unknown server type or a missing required variable
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfig) true
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// ProcessError reports a worker that failed to spawn or exited during startup
type ProcessError struct {
	ServerId string
	ExitCode int    // -1 when the process never ran or was killed by a signal
	Signal   string // empty unless terminated by a signal
	Err      error
}

func (e *ProcessError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("process %s failed: %v", e.ServerId, e.Err)
	case e.Signal != "":
		return fmt.Sprintf("process %s terminated by signal %s", e.ServerId, e.Signal)
	default:
		return fmt.Sprintf("process %s exited with code %d", e.ServerId, e.ExitCode)
	}
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProcessFailure) true
func (e *ProcessError) Is(target error) bool { return target == ErrProcessFailure }
