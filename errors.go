package bundlestate

import "errors"

// Sentinel errors for state consistency violations.
var (
	// ErrResolveInProgress indicates a resolve was requested while another
	// resolve on the same State had not finished.
	ErrResolveInProgress = errors.New("resolve already in progress")

	// ErrOwnedByOtherState indicates a bundle still belongs to another State.
	ErrOwnedByOtherState = errors.New("bundle is owned by another state")

	// ErrUnknownBundle indicates a bundle does not belong to the State.
	ErrUnknownBundle = errors.New("unknown bundle")

	// ErrNotResolved indicates an operation that needs a resolved bundle.
	ErrNotResolved = errors.New("bundle is not resolved")

	// ErrNoResolver indicates the State was created without a resolver.
	ErrNoResolver = errors.New("no resolver configured")
)
