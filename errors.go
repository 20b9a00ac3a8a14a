package apigen

import "errors"

var (
	// ErrConfiguration is returned when an entity's access policy is
	// malformed. Raised at wrapper construction, never per request.
	ErrConfiguration = errors.New("apigen: invalid entity configuration")

	// ErrAuthenticationRequired is returned when a request carries a
	// missing or malformed identity claim.
	ErrAuthenticationRequired = errors.New("apigen: authentication required")

	// ErrAccessDenied is returned when the claim is valid but grants no
	// sufficient permission, or when a batch ownership check fails for at
	// least one record.
	ErrAccessDenied = errors.New("apigen: access denied")

	// ErrInvalidPayload is returned for structurally malformed input before
	// any database call is attempted.
	ErrInvalidPayload = errors.New("apigen: invalid payload")

	// ErrUnknownField is returned when dispatching an operation field that
	// was never generated or registered.
	ErrUnknownField = errors.New("apigen: unknown field")
)
