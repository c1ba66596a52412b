package replication

import (
	"errors"
	"fmt"

	"github.com/mrlokans/librarysync/internal/entities"
)

// BackendUnavailableError wraps a transport or authorization failure of a
// storage backend.
type BackendUnavailableError struct {
	Kind entities.StorageKind
	Op   string
	Err  error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err for kind and op. Nil stays nil and errors that are
// already BackendUnavailableError are returned unchanged.
func Unavailable(kind entities.StorageKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *BackendUnavailableError
	if errors.As(err, &existing) {
		return err
	}
	return &BackendUnavailableError{Kind: kind, Op: op, Err: err}
}

// IsBackendUnavailable reports whether err is a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var target *BackendUnavailableError
	return errors.As(err, &target)
}
