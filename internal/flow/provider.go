package flow

import (
	"context"
	"errors"

	"github.com/taar-app/ticketsync/internal/relay"
)

// ErrorClass is how a provider classifies a failed outcome.
type ErrorClass int

const (
	// ClassProvider is a provider error; its message is shown verbatim.
	ClassProvider ErrorClass = iota
	// ClassTransport means the provider could not be reached.
	ClassTransport
	// ClassRateLimited means no further challenges may be requested.
	ClassRateLimited
)

// Completion is what a provider resolves from a successful sign-in.
type Completion struct {
	Status       string
	Profile      Profile
	ProfileError string
}

// Provider is the capability set a challenge flow needs from an identity
// backend.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Policy returns the provider's messages and behaviour switches.
	Policy() Policy

	// ValidateIdentifier checks a raw identifier and returns its normalized
	// form. The error message is user facing.
	ValidateIdentifier(raw string) (string, error)

	// RequestChallenge asks the provider to send a code to identifier.
	RequestChallenge(ctx context.Context, identifier string) relay.Outcome

	// VerifyChallenge submits the code the organiser received.
	VerifyChallenge(ctx context.Context, identifier, code string) relay.Outcome

	// ClassifyError decides how a failed outcome is surfaced.
	ClassifyError(out relay.Outcome) ErrorClass

	// Complete turns a successful authenticate or verify outcome for
	// identifier into the linked result. A returned error fails the action.
	Complete(ctx context.Context, identifier string, out relay.Outcome) (Completion, error)
}

// Authenticator is implemented by providers that accept a password.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, secret string) relay.Outcome
}

// Policy holds provider-specific copy and switches.
type Policy struct {
	// TransportMessage replaces the message of every transport failure.
	TransportMessage string

	ChallengeSent   string
	ChallengeResent string

	AuthenticateFallback string
	ChallengeFallback    string
	ResendFallback       string
	VerifyFallback       string

	// QuietValidation makes invalid submissions silent no-ops instead of
	// inline errors.
	QuietValidation bool

	// ClearCodeOnFailure empties the code buffer after a failed verify.
	ClearCodeOnFailure bool
}

// ValidationError is a local, pre-network rejection of user input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid returns a ValidationError with the given user-facing message.
func Invalid(message string) error {
	return &ValidationError{Message: message}
}

// Sentinel errors reporting that an action did not run or did not land.
var (
	ErrInFlight    = errors.New("flow: action already in flight")
	ErrNotReady    = errors.New("flow: input not ready for submission")
	ErrLocked      = errors.New("flow: challenge requests locked")
	ErrUnsupported = errors.New("flow: action not supported by provider")
	ErrStale       = errors.New("flow: completion discarded after navigation")
	ErrWrongPhase  = errors.New("flow: action not available in current phase")
)
