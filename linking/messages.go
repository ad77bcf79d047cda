package linking

import "github.com/jrsteele09/agentify-session/internal/errors"

// Flow names an operation of the controller
type Flow string

const (
	FlowGithubSignIn  Flow = "github_signin"
	FlowGithubLink    Flow = "github_link"
	FlowEmailSignIn   Flow = "email_signin"
	FlowEmailRegister Flow = "email_register"
	FlowSignOut       Flow = "signout"
)

const (
	LinkSucceededMessage = "GitHub account linked successfully!"

	msgInvalidCredential = "Invalid email or password."
	msgMalformedEmail    = "Invalid email format."
	msgEmailInUse        = "Email is already in use. Please sign in."
	msgWeakPassword      = "Password should be at least 6 characters."
	msgSignInFailed      = "Failed to sign in. Please try again."
	msgRegisterFailed    = "Failed to create account. Please try again."
	msgGithubFailed      = "Failed to sign in with GitHub. Please try again."
	msgLinkConflict      = "This GitHub account is already linked to another user. Please log in with GitHub directly, or unlink it from the other account."
	msgLinkFailed        = "Failed to link GitHub account. Please try again."
	msgSignOutFailed     = "Failed to sign out. Please try again."
	msgNoSession         = "Please sign in first."
	msgMissingToken      = "GitHub did not grant repository access. Sign in again and allow the repo scope."
	msgSyncFailed        = "Signed in, but your GitHub token could not be synced. Please try again later."
)

// Message returns the text shown to the user for err raised by flow.
// Warnings carried by a Result map the same way.
func Message(flow Flow, err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errors.ErrMissingProviderToken):
		return msgMissingToken
	case errors.Is(err, errors.ErrSyncFailure):
		return msgSyncFailed
	case errors.Is(err, errors.ErrCredentialConflict) && flow == FlowGithubLink:
		return msgLinkConflict
	case errors.Is(err, errors.ErrNoSession) && flow == FlowGithubLink:
		return msgNoSession
	case errors.Is(err, errors.ErrInvalidCredential), errors.Is(err, errors.ErrUnknownAccount):
		return msgInvalidCredential
	case errors.Is(err, errors.ErrMalformedEmail):
		return msgMalformedEmail
	case errors.Is(err, errors.ErrEmailInUse):
		return msgEmailInUse
	case errors.Is(err, errors.ErrWeakPassword):
		return msgWeakPassword
	}

	switch flow {
	case FlowEmailSignIn:
		return msgSignInFailed
	case FlowEmailRegister:
		return msgRegisterFailed
	case FlowGithubLink:
		return msgLinkFailed
	case FlowSignOut:
		return msgSignOutFailed
	default:
		return msgGithubFailed
	}
}
