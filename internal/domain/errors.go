package domain

import "fmt"

// Error types for consistent error handling across the CRM service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrAIGateway is returned by every gateway task on transport, parse or
// schema failure. Callers substitute their fallback instead of surfacing it.
type ErrAIGateway struct {
	Task string
	Err  error
}

func (e *ErrAIGateway) Error() string {
	return fmt.Sprintf("ai gateway [%s]: %v", e.Task, e.Err)
}

func (e *ErrAIGateway) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrImportFile aborts an import before anything is committed.
type ErrImportFile struct {
	File   string
	Reason string
}

func (e *ErrImportFile) Error() string {
	if e.File == "" {
		return fmt.Sprintf("import file rejected: %s", e.Reason)
	}
	return fmt.Sprintf("import file %q rejected: %s", e.File, e.Reason)
}

// ErrInvalidTransition indicates a conversation status change that the
// state machine does not allow.
type ErrInvalidTransition struct {
	From ConversationStatus
	To   ConversationStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid conversation transition: %s -> %s", e.From, e.To)
}

// ErrUnauthorized indicates an invalid or missing session token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists (e.g. duplicate phone).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
