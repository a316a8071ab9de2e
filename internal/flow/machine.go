// Package flow implements the challenge sign-in flow shared by every identity
// provider: identifier entry, optional password login, challenge request and
// verification, and the linked result.
//
// A Machine owns one State. Each asynchronous action is guarded by its own
// in-flight flag, runs its network call outside the lock, and lands only if
// the state's epoch has not moved on in the meantime.
package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taar-app/ticketsync/internal/relay"
	"github.com/taar-app/ticketsync/pkg/tracing"
)

// Machine drives one sign-in attempt against one provider.
type Machine struct {
	mu       sync.Mutex
	state    State
	provider Provider
	policy   Policy
	initial  string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithIdentifier prefills the identifier entry. Reset restores it.
func WithIdentifier(v string) Option {
	return func(m *Machine) {
		m.initial = v
	}
}

// New creates a Machine for the given provider.
func New(p Provider, opts ...Option) *Machine {
	m := &Machine{
		provider: p,
		policy:   p.Policy(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   tracing.Tracer("github.com/taar-app/ticketsync/internal/flow"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("provider", p.Name()))
	m.state = Initial(m.initial)
	return m
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Provider returns the provider the machine was built with.
func (m *Machine) Provider() Provider {
	return m.provider
}

// Apply reduces e into the current state and returns the result.
func (m *Machine) Apply(e Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Reduce(m.state, e)
	return m.state
}

// EnterIdentifier records the identifier entry.
func (m *Machine) EnterIdentifier(v string) State { return m.Apply(IdentifierEntered{Value: v}) }

// EnterSecret records the password entry.
func (m *Machine) EnterSecret(v string) State { return m.Apply(SecretEntered{Value: v}) }

// EnterCode records the challenge code buffer.
func (m *Machine) EnterCode(v string) State { return m.Apply(CodeEntered{Value: v}) }

// Back returns to identifier entry.
func (m *Machine) Back() State { return m.Apply(Back{}) }

// Reset discards the attempt, including any challenge lock.
func (m *Machine) Reset() State { return m.Apply(Reset{Identifier: m.initial}) }

// Detach makes pending completions stale. Call it when the screen driving
// the machine goes away.
func (m *Machine) Detach() State { return m.Apply(Detached{}) }

// request carries the inputs an action captured when it started.
type request struct {
	identifier string
	secret     string
	code       string
}

// Authenticate signs in with identifier and password.
func (m *Machine) Authenticate(ctx context.Context) error {
	auth, ok := m.provider.(Authenticator)
	if !ok {
		return ErrUnsupported
	}

	return m.run(ctx, ActionAuthenticate,
		func(s State) (request, error) {
			if s.Phase != PhaseIdentity {
				return request{}, ErrWrongPhase
			}
			id, err := m.validate(s.Identifier)
			if err != nil {
				return request{}, err
			}
			if s.Secret == "" {
				return request{}, ErrNotReady
			}
			return request{identifier: id, secret: s.Secret}, nil
		},
		func(ctx context.Context, r request) relay.Outcome {
			return auth.Authenticate(ctx, r.identifier, r.secret)
		},
		m.complete(ActionAuthenticate, m.policy.AuthenticateFallback),
	)
}

// RequestChallenge asks the provider to send a code to the entered
// identifier and moves to verification on success.
func (m *Machine) RequestChallenge(ctx context.Context) error {
	return m.run(ctx, ActionRequestChallenge,
		func(s State) (request, error) {
			if s.Phase != PhaseIdentity {
				return request{}, ErrWrongPhase
			}
			if s.ChallengeLocked {
				return request{}, ErrLocked
			}
			id, err := m.validate(s.Identifier)
			if err != nil {
				return request{}, err
			}
			return request{identifier: id}, nil
		},
		func(ctx context.Context, r request) relay.Outcome {
			return m.provider.RequestChallenge(ctx, r.identifier)
		},
		m.challenged(ActionRequestChallenge, m.policy.ChallengeSent, m.policy.ChallengeFallback),
	)
}

// ResendChallenge re-sends the code to the pending identifier without
// leaving verification.
func (m *Machine) ResendChallenge(ctx context.Context) error {
	return m.run(ctx, ActionResendChallenge,
		func(s State) (request, error) {
			if s.Phase != PhaseAwaitingVerification {
				return request{}, ErrWrongPhase
			}
			if s.ChallengeLocked {
				return request{}, ErrLocked
			}
			if s.Pending == "" {
				return request{}, ErrNotReady
			}
			return request{identifier: s.Pending}, nil
		},
		func(ctx context.Context, r request) relay.Outcome {
			return m.provider.RequestChallenge(ctx, r.identifier)
		},
		m.challenged(ActionResendChallenge, m.policy.ChallengeResent, m.policy.ResendFallback),
	)
}

// VerifyChallenge submits the entered code for the pending identifier.
func (m *Machine) VerifyChallenge(ctx context.Context) error {
	return m.run(ctx, ActionVerifyChallenge,
		func(s State) (request, error) {
			if s.Phase != PhaseAwaitingVerification {
				return request{}, ErrWrongPhase
			}
			if s.Pending == "" || s.Code == "" {
				return request{}, ErrNotReady
			}
			return request{identifier: s.Pending, code: s.Code}, nil
		},
		func(ctx context.Context, r request) relay.Outcome {
			return m.provider.VerifyChallenge(ctx, r.identifier, r.code)
		},
		m.complete(ActionVerifyChallenge, m.policy.VerifyFallback),
	)
}

// validate runs the provider's identifier check. Validation failures are
// reported as ErrNotReady wrapping the ValidationError.
func (m *Machine) validate(raw string) (string, error) {
	id, err := m.provider.ValidateIdentifier(raw)
	if err == nil {
		return id, nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "", fmt.Errorf("%w: %w", ErrNotReady, verr)
	}
	return "", err
}

type (
	prepareFunc func(State) (request, error)
	callFunc    func(context.Context, request) relay.Outcome
	settleFunc  func(context.Context, request, relay.Outcome) Event
)

// run executes one guarded action. The prepare step and the start
// transition happen atomically; the call and settle steps run unlocked.
func (m *Machine) run(ctx context.Context, action Action, prepare prepareFunc, call callFunc, settle settleFunc) error {
	m.mu.Lock()
	if m.state.InFlight.Has(action) {
		m.mu.Unlock()
		actionsTotal.WithLabelValues(m.provider.Name(), action.String(), "busy").Inc()
		return ErrInFlight
	}
	req, err := prepare(m.state)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && !m.policy.QuietValidation {
			m.state = Reduce(m.state, Rejected{Message: verr.Message})
		}
		m.mu.Unlock()
		actionsTotal.WithLabelValues(m.provider.Name(), action.String(), "rejected").Inc()
		return err
	}
	m.state = Reduce(m.state, Started{Action: action})
	epoch := m.state.Epoch
	m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "flow."+action.String(),
		trace.WithAttributes(attribute.String("flow.provider", m.provider.Name())),
	)
	defer span.End()

	out := call(ctx, req)
	ev := settle(ctx, req, out)

	result := "success"
	if f, ok := ev.(Failed); ok {
		result = "failure"
		span.SetStatus(codes.Error, f.Message)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Epoch != epoch {
		actionsTotal.WithLabelValues(m.provider.Name(), action.String(), "stale").Inc()
		m.logger.InfoContext(ctx, "discarding stale completion",
			slog.String("action", action.String()),
			slog.Uint64("started_epoch", epoch),
			slog.Uint64("current_epoch", m.state.Epoch),
		)
		return ErrStale
	}
	m.state = Reduce(m.state, ev)
	actionsTotal.WithLabelValues(m.provider.Name(), action.String(), result).Inc()
	m.logger.InfoContext(ctx, "flow action settled",
		slog.String("action", action.String()),
		slog.String("result", result),
		slog.String("phase", string(m.state.Phase)),
	)
	return nil
}

// challenged settles a challenge request or resend.
func (m *Machine) challenged(action Action, status, fallback string) settleFunc {
	return func(_ context.Context, r request, out relay.Outcome) Event {
		if out.OK {
			return ChallengeSent{Action: action, Pending: r.identifier, Status: status}
		}
		msg, class := m.failure(out, fallback)
		return Failed{Action: action, Message: msg, Lock: class == ClassRateLimited}
	}
}

// complete settles an authenticate or verify call, resolving the linked
// result through the provider on success.
func (m *Machine) complete(action Action, fallback string) settleFunc {
	clearCode := action == ActionVerifyChallenge && m.policy.ClearCodeOnFailure
	return func(ctx context.Context, r request, out relay.Outcome) Event {
		if !out.OK {
			msg, _ := m.failure(out, fallback)
			return Failed{Action: action, Message: msg, ClearCode: clearCode}
		}
		done, err := m.provider.Complete(ctx, r.identifier, out)
		if err != nil {
			m.logger.WarnContext(ctx, "completing sign-in failed",
				slog.String("action", action.String()),
				slog.String("error", err.Error()),
			)
			return Failed{Action: action, Message: err.Error(), ClearCode: clearCode}
		}
		return Completed{Action: action, Completion: done}
	}
}

// failure picks the user-facing message for a failed outcome.
func (m *Machine) failure(out relay.Outcome, fallback string) (string, ErrorClass) {
	class := m.provider.ClassifyError(out)
	if class == ClassTransport {
		return m.policy.TransportMessage, class
	}
	if out.Message == "" {
		return fallback, class
	}
	return out.Message, class
}
