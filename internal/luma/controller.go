package luma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/taar-app/ticketsync/internal/flow"
)

// Mode is the identifier sub-mode of the entry screen.
type Mode string

const (
	ModeEmail  Mode = "email"
	ModeMobile Mode = "mobile"
)

// Screens of the Luma flow. The verified screen is the OTP modal showing
// its success status.
const (
	ScreenEntry    = "entry"
	ScreenOTP      = "otp"
	ScreenVerified = "verified"
)

// Social sign-in options shown on the entry screen.
var socialProviders = []string{"Google", "Passkey"}

// Commands accepted by Controller.Handle.
const (
	CmdMode         = "mode"
	CmdEmail        = "email"
	CmdMobile       = "mobile"
	CmdContinue     = "continue"
	CmdDigit        = "digit"
	CmdBackspace    = "backspace"
	CmdPaste        = "paste"
	CmdVerify       = "verify"
	CmdResend       = "resend"
	CmdBack         = "back"
	CmdChangeNumber = "change_number"
	CmdSocial       = "social"
	CmdReset        = "reset"
)

// ErrSocialUnavailable is returned for social sign-in options. It wraps a
// flow.ValidationError carrying the message to show.
var ErrSocialUnavailable = errors.New("luma: social sign-in unavailable")

// View is what the Luma screens render.
type View struct {
	Provider string `json:"provider"`
	Screen   string `json:"screen"`
	Mode     Mode   `json:"mode"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`

	Error  string `json:"error,omitempty"`
	Status string `json:"status,omitempty"`

	ModalOpen   bool     `json:"modalOpen"`
	Phone       string   `json:"phone,omitempty"`
	Slots       []string `json:"slots,omitempty"`
	Focus       int      `json:"focus"`
	OTPError    string   `json:"otpError,omitempty"`
	OTPStatus   string   `json:"otpStatus,omitempty"`
	Social      []string `json:"social"`
	Requesting  bool     `json:"requesting"`
	Resending   bool     `json:"resending"`
	Verifying   bool     `json:"verifying"`
	CanContinue bool     `json:"canContinue"`
}

// Controller drives the Luma sign-in screens.
type Controller struct {
	machine *flow.Machine

	mu    sync.Mutex
	mode  Mode
	email string
	pad   Pad
}

// NewController creates a controller for a fresh sign-in attempt, starting
// in email mode with the default country code in the mobile entry.
func NewController(p *Provider, logger *slog.Logger) *Controller {
	return &Controller{
		machine: flow.New(p, flow.WithLogger(logger), flow.WithIdentifier(InitialMobile)),
		mode:    ModeEmail,
	}
}

// Provider implements session.Flow.
func (c *Controller) Provider() string { return Name }

// SetMode switches sub-mode. Only the entry error is cleared.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
	c.machine.Apply(flow.ErrorCleared{})
}

// ToggleMode flips between email and mobile.
func (c *Controller) ToggleMode() {
	c.mu.Lock()
	next := ModeMobile
	if c.mode == ModeMobile {
		next = ModeEmail
	}
	c.mu.Unlock()
	c.SetMode(next)
}

// SetEmail records the email entry.
func (c *Controller) SetEmail(v string) {
	c.mu.Lock()
	c.email = v
	c.mu.Unlock()
}

// SetMobile records the mobile entry.
func (c *Controller) SetMobile(v string) { c.machine.EnterIdentifier(v) }

// Continue submits the entry screen. In email mode the address is only
// acknowledged; in mobile mode a verification code is requested.
func (c *Controller) Continue(ctx context.Context) error {
	c.mu.Lock()
	mode, email := c.mode, c.email
	c.mu.Unlock()

	if mode == ModeMobile {
		return c.machine.RequestChallenge(ctx)
	}

	if c.machine.State().Phase != flow.PhaseIdentity {
		return flow.ErrWrongPhase
	}
	email = strings.TrimSpace(email)
	if email == "" || !ValidEmail(email) {
		c.machine.Apply(flow.Rejected{Message: msgEnterEmail})
		return fmt.Errorf("%w: %w", flow.ErrNotReady, flow.Invalid(msgEnterEmail))
	}
	c.machine.Apply(flow.Acknowledged{Status: "Demo: continuing with email " + email})
	return nil
}

// InputDigit writes into one pad slot. Filling the last empty slot submits
// the code.
func (c *Controller) InputDigit(ctx context.Context, index int, value string) error {
	return c.editPad(ctx, func(p Pad) Pad { return p.Input(index, value) })
}

// Backspace handles a backspace key in one pad slot.
func (c *Controller) Backspace(index int) error {
	return c.editPad(context.Background(), func(p Pad) Pad { return p.Backspace(index) })
}

// Paste distributes pasted digits across the pad. A full code is submitted.
func (c *Controller) Paste(ctx context.Context, text string) error {
	return c.editPad(ctx, func(p Pad) Pad { return p.Paste(text) })
}

// editPad applies edit to the pad and mirrors the code into the flow. A
// completed pad triggers verification; a verification already running is
// not an error for the edit itself.
func (c *Controller) editPad(ctx context.Context, edit func(Pad) Pad) error {
	c.mu.Lock()
	s := c.machine.State()
	if s.Phase != flow.PhaseAwaitingVerification {
		c.mu.Unlock()
		return flow.ErrWrongPhase
	}
	c.syncPad(s)
	c.pad = edit(c.pad)
	c.machine.EnterCode(c.pad.Code())
	complete := c.pad.Complete()
	c.mu.Unlock()

	if !complete {
		return nil
	}
	if err := c.machine.VerifyChallenge(ctx); err != nil && !errors.Is(err, flow.ErrInFlight) {
		return err
	}
	return nil
}

// Verify submits the code on the pad. It needs all six digits.
func (c *Controller) Verify(ctx context.Context) error {
	c.mu.Lock()
	c.syncPad(c.machine.State())
	complete := c.pad.Complete()
	c.mu.Unlock()
	if !complete {
		return flow.ErrNotReady
	}
	return c.machine.VerifyChallenge(ctx)
}

// Resend requests another code for the remembered phone.
func (c *Controller) Resend(ctx context.Context) error { return c.machine.ResendChallenge(ctx) }

// Back closes the OTP modal, discarding its state.
func (c *Controller) Back() {
	c.machine.Back()
	c.resetPad()
}

// ChangeNumber is Back under another name on the modal.
func (c *Controller) ChangeNumber() { c.Back() }

// Social handles a social sign-in button. None are available yet.
func (c *Controller) Social(provider string) error {
	for _, p := range socialProviders {
		if strings.EqualFold(p, provider) {
			return fmt.Errorf("%w: %w", ErrSocialUnavailable, flow.Invalid(p+" sign-in coming soon"))
		}
	}
	return flow.ErrUnknownCommand
}

// Reset starts over.
func (c *Controller) Reset() {
	c.machine.Reset()
	c.mu.Lock()
	c.mode = ModeEmail
	c.email = ""
	c.pad = Pad{}
	c.mu.Unlock()
}

// Close implements session.Flow.
func (c *Controller) Close() { c.machine.Detach() }

// Handle implements session.Flow.
func (c *Controller) Handle(ctx context.Context, cmd flow.Command) error {
	switch cmd.Name {
	case CmdMode:
		switch Mode(cmd.Value) {
		case ModeEmail, ModeMobile:
			c.SetMode(Mode(cmd.Value))
		case "":
			c.ToggleMode()
		default:
			return flow.Invalid("unknown mode " + strconv.Quote(cmd.Value))
		}
	case CmdEmail:
		c.SetEmail(cmd.Value)
	case CmdMobile:
		c.SetMobile(cmd.Value)
	case CmdContinue:
		return c.Continue(ctx)
	case CmdDigit:
		return c.InputDigit(ctx, cmd.Index, cmd.Value)
	case CmdBackspace:
		return c.Backspace(cmd.Index)
	case CmdPaste:
		return c.Paste(ctx, cmd.Value)
	case CmdVerify:
		return c.Verify(ctx)
	case CmdResend:
		return c.Resend(ctx)
	case CmdBack:
		c.Back()
	case CmdChangeNumber:
		c.ChangeNumber()
	case CmdSocial:
		return c.Social(cmd.Value)
	case CmdReset:
		c.Reset()
	default:
		return flow.ErrUnknownCommand
	}
	return nil
}

// State returns the underlying flow state.
func (c *Controller) State() flow.State { return c.machine.State() }

// View implements session.Flow.
func (c *Controller) View() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.machine.State()
	c.syncPad(s)

	v := View{
		Provider:   Name,
		Mode:       c.mode,
		Email:      c.email,
		Mobile:     s.Identifier,
		Social:     socialProviders,
		Requesting: s.InFlight.Has(flow.ActionRequestChallenge),
		Resending:  s.InFlight.Has(flow.ActionResendChallenge),
		Verifying:  s.InFlight.Has(flow.ActionVerifyChallenge),
	}
	v.CanContinue = c.mode == ModeEmail || !v.Requesting

	switch s.Phase {
	case flow.PhaseIdentity:
		v.Screen = ScreenEntry
		v.Error = s.Error
		v.Status = s.Status
		return v
	case flow.PhaseLinked:
		v.Screen = ScreenVerified
	default:
		v.Screen = ScreenOTP
	}
	v.ModalOpen = true
	v.Phone = s.Pending
	v.Slots = c.pad.Slots()
	v.Focus = c.pad.Focus()
	v.OTPError = s.VerifyError
	v.OTPStatus = s.Status
	return v
}

// syncPad rebuilds the pad when the flow changed the code underneath it,
// as a failed verification or navigation does. Callers hold c.mu.
func (c *Controller) syncPad(s flow.State) {
	if s.Code != c.pad.Code() {
		c.pad = PadFrom(s.Code)
	}
}

func (c *Controller) resetPad() {
	c.mu.Lock()
	c.pad = Pad{}
	c.mu.Unlock()
}
