package statum

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the state machine
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Transition name is unknown to the machine
	ErrCodeTransitionNotFound
	// Persisted state name is not present in the loaded states
	ErrCodeNoCurrentState
	// No state is tagged initial
	ErrCodeNoInitialState
	// A rule could not be resolved or constructed
	ErrCodeGuardCreation
	// A rule failed while being evaluated
	ErrCodeGuardEvaluation
	// A command could not be resolved or constructed
	ErrCodeActionCreation
	// A command or closure failed while being executed
	ErrCodeActionExecution
	// Context belongs to a different machine
	ErrCodeContextMismatch
	// Foreign failure during the guard phase
	ErrCodeCanFailed
	// Foreign failure during exit, transition or entry
	ErrCodeTransitionFailed
	// Failure during a single run step
	ErrCodeRunFailed
	// Failure while running to completion
	ErrCodeRunToCompletionFailed
	// Reading or writing the persisted state failed
	ErrCodePersistence
	// Machine configuration is invalid
	ErrCodeInvalidConfiguration
)

var codeNames = map[ErrorCode]string{
	ErrCodeNone:                  "none",
	ErrCodeTransitionNotFound:    "transition_not_found",
	ErrCodeNoCurrentState:        "no_current_state",
	ErrCodeNoInitialState:        "no_initial_state",
	ErrCodeGuardCreation:         "guard_creation",
	ErrCodeGuardEvaluation:       "guard_evaluation",
	ErrCodeActionCreation:        "action_creation",
	ErrCodeActionExecution:       "action_execution",
	ErrCodeContextMismatch:       "context_mismatch",
	ErrCodeCanFailed:             "can_failed",
	ErrCodeTransitionFailed:      "transition_failed",
	ErrCodeRunFailed:             "run_failed",
	ErrCodeRunToCompletionFailed: "run_to_completion_failed",
	ErrCodePersistence:           "persistence",
	ErrCodeInvalidConfiguration:  "invalid_configuration",
}

// String returns a stable, label friendly name for the code
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Error is the single error type the engine returns. Foreign errors are
// wrapped in it and stay reachable through Unwrap.
type Error struct {
	Code       ErrorCode
	Transition string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Transition != "" {
		msg = fmt.Sprintf("transition '%s': %s", e.Transition, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("statum [%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("statum [%s] %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Transition == "" && t.Err == nil && t.Code == e.Code
}

// Sentinels usable with errors.Is
var (
	ErrTransitionNotFound    = &Error{Code: ErrCodeTransitionNotFound}
	ErrNoCurrentState        = &Error{Code: ErrCodeNoCurrentState}
	ErrNoInitialState        = &Error{Code: ErrCodeNoInitialState}
	ErrGuardCreation         = &Error{Code: ErrCodeGuardCreation}
	ErrGuardEvaluation       = &Error{Code: ErrCodeGuardEvaluation}
	ErrActionCreation        = &Error{Code: ErrCodeActionCreation}
	ErrActionExecution       = &Error{Code: ErrCodeActionExecution}
	ErrContextMismatch       = &Error{Code: ErrCodeContextMismatch}
	ErrCanFailed             = &Error{Code: ErrCodeCanFailed}
	ErrTransitionFailed      = &Error{Code: ErrCodeTransitionFailed}
	ErrRunFailed             = &Error{Code: ErrCodeRunFailed}
	ErrRunToCompletionFailed = &Error{Code: ErrCodeRunToCompletionFailed}
	ErrPersistence           = &Error{Code: ErrCodePersistence}
	ErrInvalidConfiguration  = &Error{Code: ErrCodeInvalidConfiguration}
)

var (
	errNotResolved = errors.New("not resolved against a registry")
	errNilContext  = errors.New("context cannot be nil")
)

// ErrNotPersisted is returned by adapters when an entity has no stored state.
var ErrNotPersisted = errors.New("statum: entity state not persisted")

// HistoryError reports a state that was written while its history record
// was not. The state write stands.
type HistoryError struct {
	State string
	Err   error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("state '%s' written, history not recorded: %v", e.State, e.Err)
}

func (e *HistoryError) Unwrap() error {
	return e.Err
}

// NewTransitionNotFoundError creates an error for an unknown transition name
func NewTransitionNotFoundError(name string) *Error {
	return &Error{
		Code:    ErrCodeTransitionNotFound,
		Message: fmt.Sprintf("transition not found for '%s'", name),
	}
}

// NewNoCurrentStateError creates an error for a persisted state that is not loaded
func NewNoCurrentStateError(machine, state string) *Error {
	return &Error{
		Code: ErrCodeNoCurrentState,
		Message: fmt.Sprintf("machine '%s': current state not found for state with name '%s', are the transitions/states loaded and configured correctly?",
			machine, state),
	}
}

// NewNoInitialStateError creates an error for a machine without an initial state
func NewNoInitialStateError(machine string) *Error {
	return &Error{
		Code:    ErrCodeNoInitialState,
		Message: fmt.Sprintf("machine '%s': no initial state found, bad configuration", machine),
	}
}

// NewGuardCreationError creates an error for a rule that could not be built
func NewGuardCreationError(transition, rule string, err error) *Error {
	return &Error{
		Code:       ErrCodeGuardCreation,
		Transition: transition,
		Message:    fmt.Sprintf("failed rule creation for '%s'", rule),
		Err:        err,
	}
}

// NewGuardEvaluationError creates an error for a rule that failed to apply
func NewGuardEvaluationError(transition string, err error) *Error {
	return &Error{
		Code:       ErrCodeGuardEvaluation,
		Transition: transition,
		Message:    "rule evaluation failed",
		Err:        err,
	}
}

// NewActionCreationError creates an error for a command that could not be built
func NewActionCreationError(transition, command string, err error) *Error {
	return &Error{
		Code:       ErrCodeActionCreation,
		Transition: transition,
		Message:    fmt.Sprintf("failed command creation for '%s'", command),
		Err:        err,
	}
}

// NewActionExecutionError creates an error for a command that failed to execute
func NewActionExecutionError(transition string, err error) *Error {
	return &Error{
		Code:       ErrCodeActionExecution,
		Transition: transition,
		Message:    "command execution failed",
		Err:        err,
	}
}

// NewContextMismatchError creates an error for rebinding to another machine
func NewContextMismatchError(current, next string) *Error {
	return &Error{
		Code:    ErrCodeContextMismatch,
		Message: fmt.Sprintf("trying to set context for a different machine, currently '%s' and new '%s'", current, next),
	}
}

// NewPersistenceError creates an error for a failed state read or write
func NewPersistenceError(operation string, err error) *Error {
	return &Error{
		Code:    ErrCodePersistence,
		Message: fmt.Sprintf("%s failed", operation),
		Err:     err,
	}
}

// NewConfigurationError creates an error for configuration issues
func NewConfigurationError(component, issue string) *Error {
	return &Error{
		Code:    ErrCodeInvalidConfiguration,
		Message: fmt.Sprintf("configuration error in %s: %s", component, issue),
	}
}

// wrapError returns engine errors unchanged and wraps anything else with code.
func wrapError(err error, code ErrorCode, transition string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{
		Code:       code,
		Transition: transition,
		Message:    err.Error(),
		Err:        err,
	}
}

// IsTransitionNotFound checks if an error is caused by an unknown transition
func IsTransitionNotFound(err error) bool {
	return errors.Is(err, ErrTransitionNotFound)
}

// IsNoCurrentState checks if an error is caused by an unresolvable current state
func IsNoCurrentState(err error) bool {
	return errors.Is(err, ErrNoCurrentState)
}

// IsNoInitialState checks if an error is caused by a missing initial state
func IsNoInitialState(err error) bool {
	return errors.Is(err, ErrNoInitialState)
}

// IsGuardError checks if an error originates from rule creation or evaluation
func IsGuardError(err error) bool {
	return errors.Is(err, ErrGuardCreation) || errors.Is(err, ErrGuardEvaluation)
}

// IsActionError checks if an error originates from command creation or execution
func IsActionError(err error) bool {
	return errors.Is(err, ErrActionCreation) || errors.Is(err, ErrActionExecution)
}

// IsContextMismatch checks if an error is caused by rebinding to another machine
func IsContextMismatch(err error) bool {
	return errors.Is(err, ErrContextMismatch)
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// GetErrorCode returns the code of the outermost engine error
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeNone
}
