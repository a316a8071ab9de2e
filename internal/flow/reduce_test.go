package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce_StartedClearsSupersededMessages(t *testing.T) {
	s := State{
		Phase:        PhaseIdentity,
		Error:        "old",
		Status:       "old",
		Code:         "99",
		Profile:      Profile{DisplayName: "Ann"},
		ProfileError: "old",
	}

	next := Reduce(s, Started{Action: ActionRequestChallenge})

	assert.True(t, next.InFlight.Has(ActionRequestChallenge))
	assert.Empty(t, next.Error)
	assert.Empty(t, next.Status)
	assert.Empty(t, next.Code)
	assert.Empty(t, next.Profile.DisplayName)
	assert.Equal(t, "old", s.Error, "input state must not change")
}

func TestReduce_InFlightIsPerAction(t *testing.T) {
	s := Reduce(Initial(""), Started{Action: ActionResendChallenge})
	s = Reduce(s, Started{Action: ActionVerifyChallenge})

	assert.True(t, s.InFlight.Has(ActionResendChallenge))
	assert.True(t, s.InFlight.Has(ActionVerifyChallenge))
	assert.False(t, s.InFlight.Has(ActionRequestChallenge))

	s = Reduce(s, Failed{Action: ActionResendChallenge, Message: "x"})
	assert.False(t, s.InFlight.Has(ActionResendChallenge))
	assert.True(t, s.InFlight.Has(ActionVerifyChallenge))
	assert.Equal(t, "x", s.VerifyError)
}

func TestReduce_BackKeepsIdentifierSecretAndLock(t *testing.T) {
	s := State{
		Phase:           PhaseAwaitingVerification,
		Identifier:      "9876543210",
		Secret:          "secret",
		Pending:         "9876543210",
		Code:            "123",
		Status:          "OTP sent successfully.",
		VerifyError:     "Invalid OTP",
		ChallengeLocked: true,
		Profile:         Profile{DisplayName: "Ann"},
		InFlight:        Actions(ActionVerifyChallenge),
		Epoch:           3,
	}

	next := Reduce(s, Back{})

	assert.Equal(t, State{
		Phase:           PhaseIdentity,
		Identifier:      "9876543210",
		Secret:          "secret",
		ChallengeLocked: true,
		Epoch:           4,
	}, next)
}

func TestReduce_ResetRestoresInitial(t *testing.T) {
	s := State{Phase: PhaseLinked, Identifier: "x", ChallengeLocked: true, Epoch: 7}

	next := Reduce(s, Reset{Identifier: "+91 "})

	assert.Equal(t, PhaseIdentity, next.Phase)
	assert.Equal(t, "+91 ", next.Identifier)
	assert.False(t, next.ChallengeLocked)
	assert.Equal(t, uint64(8), next.Epoch)
}

func TestReduce_FailedRoutesMessageByScreen(t *testing.T) {
	s := Reduce(Initial(""), Failed{Action: ActionAuthenticate, Message: "bad password"})
	assert.Equal(t, "bad password", s.Error)
	assert.Empty(t, s.VerifyError)

	s = Reduce(s, Failed{Action: ActionRequestChallenge, Message: "limit", Lock: true})
	assert.Equal(t, "limit", s.Error)
	assert.True(t, s.ChallengeLocked)
}

func TestReduce_IdentifierEnteredDropsProfile(t *testing.T) {
	s := State{Profile: Profile{DisplayName: "Ann"}, ProfileError: "x"}

	s = Reduce(s, IdentifierEntered{Value: "1"})

	assert.Equal(t, "1", s.Identifier)
	assert.Empty(t, s.Profile.DisplayName)
	assert.Empty(t, s.ProfileError)
}

func TestReduce_AcknowledgedAndErrorCleared(t *testing.T) {
	s := State{Error: "bad", Status: "old"}

	acked := Reduce(s, Acknowledged{Status: "ok"})
	assert.Empty(t, acked.Error)
	assert.Equal(t, "ok", acked.Status)

	cleared := Reduce(s, ErrorCleared{})
	assert.Empty(t, cleared.Error)
	assert.Equal(t, "old", cleared.Status)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "authenticate", ActionAuthenticate.String())
	assert.Equal(t, "verify_challenge", ActionVerifyChallenge.String())
	assert.Equal(t, "unknown", Action(0).String())
}
