package flow

// Event is a transition input. Events are applied by Reduce.
type Event interface {
	apply(State) State
}

// Reduce returns the state that follows s after e. It has no side effects.
func Reduce(s State, e Event) State {
	return e.apply(s)
}

// IdentifierEntered records a new identifier entry. Any resolved profile
// belongs to the previous identifier and is dropped.
type IdentifierEntered struct{ Value string }

func (e IdentifierEntered) apply(s State) State {
	s.Identifier = e.Value
	s.Profile = Profile{}
	s.ProfileError = ""
	return s
}

// SecretEntered records a new password entry.
type SecretEntered struct{ Value string }

func (e SecretEntered) apply(s State) State {
	s.Secret = e.Value
	return s
}

// CodeEntered records the challenge code buffer.
type CodeEntered struct{ Value string }

func (e CodeEntered) apply(s State) State {
	s.Code = e.Value
	return s
}

// Started marks an action in flight and clears the messages it supersedes.
type Started struct{ Action Action }

func (e Started) apply(s State) State {
	s.InFlight = s.InFlight.with(e.Action)
	switch e.Action {
	case ActionAuthenticate, ActionRequestChallenge:
		s.Error = ""
		s.VerifyError = ""
		s.Status = ""
		s.Profile = Profile{}
		s.ProfileError = ""
		if e.Action == ActionRequestChallenge {
			s.Code = ""
		}
	case ActionResendChallenge, ActionVerifyChallenge:
		s.VerifyError = ""
		s.Status = ""
	}
	return s
}

// Rejected reports a local validation failure on the identity screen.
type Rejected struct{ Message string }

func (e Rejected) apply(s State) State {
	s.Error = e.Message
	return s
}

// ChallengeSent settles a successful challenge request or resend.
type ChallengeSent struct {
	Action  Action
	Pending string
	Status  string
}

func (e ChallengeSent) apply(s State) State {
	s.InFlight = s.InFlight.without(e.Action)
	s.Status = e.Status
	if e.Action == ActionRequestChallenge {
		s.Phase = PhaseAwaitingVerification
		s.Pending = e.Pending
	}
	return s
}

// Failed settles an action that did not succeed. Identity-screen actions
// report through Error, verification-screen actions through VerifyError.
type Failed struct {
	Action    Action
	Message   string
	Lock      bool
	ClearCode bool
}

func (e Failed) apply(s State) State {
	s.InFlight = s.InFlight.without(e.Action)
	switch e.Action {
	case ActionAuthenticate, ActionRequestChallenge:
		s.Error = e.Message
	default:
		s.VerifyError = e.Message
	}
	if e.Lock {
		s.ChallengeLocked = true
	}
	if e.ClearCode {
		s.Code = ""
	}
	return s
}

// Completed settles a successful sign-in.
type Completed struct {
	Action     Action
	Completion Completion
}

func (e Completed) apply(s State) State {
	s.InFlight = s.InFlight.without(e.Action)
	s.Phase = PhaseLinked
	s.Status = e.Completion.Status
	s.Profile = e.Completion.Profile
	s.ProfileError = e.Completion.ProfileError
	s.Error = ""
	s.VerifyError = ""
	return s
}

// Back leaves the verification screen. The identifier, secret and challenge
// lock survive; everything transient is cleared and pending completions
// become stale.
type Back struct{}

func (Back) apply(s State) State {
	return State{
		Phase:           PhaseIdentity,
		Identifier:      s.Identifier,
		Secret:          s.Secret,
		ChallengeLocked: s.ChallengeLocked,
		Epoch:           s.Epoch + 1,
	}
}

// Reset discards the attempt entirely.
type Reset struct{ Identifier string }

func (e Reset) apply(s State) State {
	next := Initial(e.Identifier)
	next.Epoch = s.Epoch + 1
	return next
}

// Detached makes every pending completion stale without changing what the
// organiser sees. It is applied when the screen goes away.
type Detached struct{}

func (Detached) apply(s State) State {
	s.InFlight = 0
	s.Epoch++
	return s
}

// Acknowledged shows a status on the identity screen without any network
// call.
type Acknowledged struct{ Status string }

func (e Acknowledged) apply(s State) State {
	s.Error = ""
	s.Status = e.Status
	return s
}

// ErrorCleared drops the identity-screen error and nothing else.
type ErrorCleared struct{}

func (ErrorCleared) apply(s State) State {
	s.Error = ""
	return s
}
