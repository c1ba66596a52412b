package storagesource

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a fatal misconfiguration of a storage source.
	ErrConfiguration = errors.New("storage source configuration error")

	ErrSourceNotFound   = fmt.Errorf("%w: storage source not found", ErrConfiguration)
	ErrWrongCredentials = fmt.Errorf("%w: credentials do not match the storage kind", ErrConfiguration)
	ErrDefaultSource    = fmt.Errorf("%w: default storage sources cannot be renamed or deleted", ErrConfiguration)

	// ErrUnlockFailed is returned when no path produced usable credentials.
	ErrUnlockFailed = errors.New("unable to unlock required data")
)
