package dynamo

import (
	"errors"
	"fmt"
)

// Error taxonomy for simulation sessions.
var (
	// ErrConfiguration indicates invalid startup parameters or a failed
	// pre-flight read. Only this class escapes Session.Start.
	ErrConfiguration = errors.New("dynamo: configuration error")

	// ErrReadFailure indicates a tag read that did not report success.
	ErrReadFailure = errors.New("dynamo: tag read failed")

	// ErrWriteFailure indicates a tag write that did not report success.
	ErrWriteFailure = errors.New("dynamo: tag write failed")

	// ErrNumeric indicates the integration produced a non-finite value or
	// could not make progress.
	ErrNumeric = errors.New("dynamo: numeric failure")

	// ErrStop indicates resources could not be released cleanly.
	ErrStop = errors.New("dynamo: stop failed")

	// ErrInvalidState indicates a state vector with NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")
)

// TagKind distinguishes read and write failures on a tag.
type TagKind int

const (
	TagRead TagKind = iota
	TagWrite
)

func (k TagKind) String() string {
	if k == TagWrite {
		return "write"
	}
	return "read"
}

// TagError carries the status reported by the tag I/O collaborator. Its
// message is the bare status so that observers display what the controller
// said ("Offline", "Timeout", ...).
type TagError struct {
	Kind   TagKind
	Tag    string
	Status string
}

func (e *TagError) Error() string {
	return e.Status
}

func (e *TagError) Is(target error) bool {
	switch target {
	case ErrReadFailure:
		return e.Kind == TagRead
	case ErrWriteFailure:
		return e.Kind == TagWrite
	}
	return false
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %s", e.Reason)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigError) Unwrap() error { return e.Err }

// TickError wraps a failure with the scan it happened on.
type TickError struct {
	Scan    int
	Wrapped error
}

func (e *TickError) Error() string {
	return e.Wrapped.Error()
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}

// SimError describes a numeric failure inside an integration step.
type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}

func (e SimError) Is(target error) bool { return target == ErrNumeric }
