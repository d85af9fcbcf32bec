package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotFound       = errors.New("table not found")
	ErrRecordNotFound      = errors.New("record not found")
	ErrNoFieldsToUpdate    = errors.New("no fields to update")
	ErrUnsupportedDialect  = errors.New("unsupported database dialect")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrInvalidSession      = errors.New("invalid session")
	ErrIntrospectionFailed = errors.New("failed to introspect database")
)

// ValidationError reports malformed input. Message is shown to the caller as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError returns a ValidationError for field with a formatted message.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// QueryError wraps a driver error raised while executing a statement.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError wraps err as a QueryError for operation op. Returns nil for a nil err.
func NewQueryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &QueryError{Op: op, Err: err}
}

// IsQueryError reports whether err wraps a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
