package walletauth

import "github.com/layer-3/walletauth/core"

var (
	// ErrSigning is returned when the wallet refuses or fails to sign
	ErrSigning = core.ErrSigning

	// ErrAuthRejected is returned when the identity provider rejects a login
	ErrAuthRejected = core.ErrAuthRejected

	// ErrRefreshFailed is wrapped into ErrAuthenticationRequired when a session ends
	ErrRefreshFailed = core.ErrRefreshFailed

	// ErrAuthenticationRequired is returned when there is no usable session
	ErrAuthenticationRequired = core.ErrAuthenticationRequired

	// ErrAlreadyInProgress is returned by a concurrent Login
	ErrAlreadyInProgress = core.ErrAlreadyInProgress
)

// HTTPError is returned for non-success responses
type HTTPError = core.HTTPError
