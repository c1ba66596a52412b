package oauth2

import "errors"

var (
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrNoClientID       = errors.New("no client id configured")
	ErrProviderNotFound = errors.New("provider not registered")
)
