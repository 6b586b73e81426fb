package dbc

import (
	"errors"
	"fmt"
)

// Schema errors. They are raised while the schema is built and always
// reach the caller wrapped in a [*SchemaError].
var (
	ErrBitRange      = errors.New("signal bit range out of bounds")
	ErrOverlap       = errors.New("signal bit ranges overlap")
	ErrZeroScale     = errors.New("signal scale is zero")
	ErrScaledInteger = errors.New("integer and flag signals must have scale 1 and offset 0")
	ErrSignedUint    = errors.New("unsigned signal declared as signed")
	ErrDuplicateName = errors.New("duplicate name")
	ErrDuplicateID   = errors.New("duplicate message id")
	ErrInvalidID     = errors.New("invalid message id")
	ErrInvalidLength = errors.New("invalid message length")
	ErrInvalidPeriod = errors.New("invalid transmit period")
	ErrDirection     = errors.New("invalid message direction")
)

var (
	// ErrOutOfRange is returned when a signal index is not valid for a message.
	ErrOutOfRange = errors.New("index out of range")
	// ErrUnknownMessage is returned by lookups for ids missing from the schema.
	ErrUnknownMessage = errors.New("unknown message")
)

// SchemaError locates a schema error inside the catalog.
type SchemaError struct {
	Message string
	Signal  string
	Err     error
}

func (e *SchemaError) Error() string {
	switch {
	case e.Message != "" && e.Signal != "":
		return fmt.Sprintf("schema: message %s: signal %s: %v", e.Message, e.Signal, e.Err)
	case e.Message != "":
		return fmt.Sprintf("schema: message %s: %v", e.Message, e.Err)
	case e.Signal != "":
		return fmt.Sprintf("schema: signal %s: %v", e.Signal, e.Err)
	default:
		return fmt.Sprintf("schema: %v", e.Err)
	}
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsSchemaError reports whether err is (or wraps) a schema error.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

func newSchemaError(msgName, sigName string, err error) *SchemaError {
	return &SchemaError{Message: msgName, Signal: sigName, Err: err}
}
