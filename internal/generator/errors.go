package generator

import (
	"errors"
	"fmt"
)

// ErrorKind extends the provider error kinds with the failures the generator
// itself can produce. Provider errors pass through unchanged.
type ErrorKind string

const (
	ErrMissingCredential  ErrorKind = "missing_credential"
	ErrUnknownModel       ErrorKind = "unknown_model"
	ErrMissingModelConfig ErrorKind = "missing_model_config"
	ErrInvalidJSON        ErrorKind = "invalid_ai_json"
	ErrValidation         ErrorKind = "validation_failure"
	ErrPersistence        ErrorKind = "persistence_failure"
)

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func KindOf(err error) ErrorKind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}

func validationError(code, message string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: message}
}

func persistenceError(code, action string, err error) *Error {
	return &Error{
		Kind:    ErrPersistence,
		Code:    code,
		Message: fmt.Sprintf("Could not %s.", action),
		Err:     err,
	}
}
