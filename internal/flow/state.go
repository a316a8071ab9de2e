package flow

// Phase is the active screen of a sign-in attempt. Exactly one is active.
type Phase string

const (
	PhaseIdentity             Phase = "identity"
	PhaseAwaitingVerification Phase = "awaiting_verification"
	PhaseLinked               Phase = "linked"
)

// Action names one guarded asynchronous operation.
type Action uint8

const (
	ActionAuthenticate Action = 1 << iota
	ActionRequestChallenge
	ActionResendChallenge
	ActionVerifyChallenge
)

func (a Action) String() string {
	switch a {
	case ActionAuthenticate:
		return "authenticate"
	case ActionRequestChallenge:
		return "request_challenge"
	case ActionResendChallenge:
		return "resend_challenge"
	case ActionVerifyChallenge:
		return "verify_challenge"
	default:
		return "unknown"
	}
}

// Actions is a set of in-flight actions.
type Actions uint8

// Has reports whether a is in the set.
func (s Actions) Has(a Action) bool {
	return s&Actions(a) != 0
}

func (s Actions) with(a Action) Actions {
	return s | Actions(a)
}

func (s Actions) without(a Action) Actions {
	return s &^ Actions(a)
}

// Profile is the display profile resolved after a successful sign-in.
type Profile struct {
	DisplayName string `json:"displayName"`
}

// State is the whole of one sign-in attempt. It is a value: transitions
// produce a new State through Reduce and never mutate in place.
type State struct {
	Phase Phase

	// Identifier is the raw identifier as entered.
	Identifier string
	// Secret is the password for providers that support one.
	Secret string
	// Pending is the normalized identifier a challenge was sent to.
	Pending string
	// Code is the challenge code as entered.
	Code string

	Status      string
	Error       string
	VerifyError string

	// ChallengeLocked is set once the provider refuses further challenge
	// requests for this attempt. Only Reset clears it.
	ChallengeLocked bool

	Profile      Profile
	ProfileError string

	InFlight Actions
	Epoch    uint64
}

// Initial returns the starting state with the identifier prefilled.
func Initial(identifier string) State {
	return State{Phase: PhaseIdentity, Identifier: identifier}
}
