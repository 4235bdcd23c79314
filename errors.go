package docstore

import (
	"errors"
	"fmt"

	"github.com/xraph/docstore/id"
)

var (
	// Connection errors.
	ErrNotConnected = errors.New("docstore: client is not connected")
	ErrNoStore      = errors.New("docstore: no store configured")

	// Identity errors.
	ErrInvalidIdentity = errors.New("docstore: backend returned an invalid identity")
	ErrDocumentHasID   = errors.New("docstore: document already carries an identity")
	ErrImmutableID     = errors.New("docstore: identity cannot be modified")

	// Validation and lookup errors. Match these with errors.Is; the concrete
	// *DocumentNotValidError / *DocumentNotFoundError carry the details.
	ErrDocumentNotValid = errors.New("docstore: document is not valid")
	ErrDocumentNotFound = errors.New("docstore: document does not exist")

	// Transaction errors.
	ErrTransaction       = errors.New("docstore: transaction failed")
	ErrTransactionClosed = errors.New("docstore: transaction already committed or aborted")

	// Query errors.
	ErrUnsupportedOperator = errors.New("docstore: unsupported operator")
	ErrNotImplemented      = errors.New("docstore: operation not implemented by backend")
)

// DocumentNotValidError reports a document that is missing a required field
// or cannot be decoded into the requested shape. Exactly one of Field and
// Cause is usually set.
type DocumentNotValidError struct {
	Collection string
	Field      string
	Cause      error
}

func (e *DocumentNotValidError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("docstore: document is not valid: missing field `%s`", e.Field)
	case e.Cause != nil:
		return fmt.Sprintf("docstore: document is not valid: %v", e.Cause)
	default:
		return ErrDocumentNotValid.Error()
	}
}

func (e *DocumentNotValidError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrDocumentNotValid) match.
func (e *DocumentNotValidError) Is(target error) bool { return target == ErrDocumentNotValid }

// DocumentNotFoundError reports a lookup by identity that matched nothing.
type DocumentNotFoundError struct {
	Collection string
	ID         id.ID
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("docstore: document with id %s does not exist in %q", e.ID, e.Collection)
}

// Is lets errors.Is(err, ErrDocumentNotFound) match.
func (e *DocumentNotFoundError) Is(target error) bool { return target == ErrDocumentNotFound }

// TransactionError wraps a commit, abort, start, or lock failure.
type TransactionError struct {
	Op    string
	Cause error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("docstore: transaction %s failed: %v", e.Op, e.Cause)
}

func (e *TransactionError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrTransaction) match.
func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }

// BackendError is an opaque passthrough of a driver error.
type BackendError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("docstore/%s: %s: %v", e.Backend, e.Op, e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }
