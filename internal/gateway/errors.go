package gateway

import "errors"

var (
	// ErrUnauthenticated is returned by every calendar operation while no
	// refresh token is held. The site owner has to run the consent flow.
	ErrUnauthenticated = errors.New("gateway: calendar access not authorized")

	// ErrAuth is returned when a consent callback cannot be turned into a
	// credential: bad state, bad or expired code, or no refresh token issued.
	ErrAuth = errors.New("gateway: authentication failed")

	// ErrProvider wraps network, timeout and provider failures.
	ErrProvider = errors.New("gateway: calendar provider request failed")

	// ErrConflict is returned when the provider rejects an event because the
	// time is already taken.
	ErrConflict = errors.New("gateway: provider rejected conflicting event")

	// ErrNoCredential is returned by a CredentialStore that holds nothing.
	ErrNoCredential = errors.New("gateway: no stored credential")
)
