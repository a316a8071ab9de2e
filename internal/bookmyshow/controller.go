package bookmyshow

import (
	"context"
	"log/slog"

	"github.com/taar-app/ticketsync/internal/flow"
)

// Screens of the BookMyShow flow.
const (
	ScreenLogin  = "login"
	ScreenOTP    = "otp"
	ScreenLinked = "linked"
)

// Commands accepted by Controller.Handle.
const (
	CmdMobile     = "mobile"
	CmdPassword   = "password"
	CmdOTP        = "otp"
	CmdLogin      = "login"
	CmdRequestOTP = "request_otp"
	CmdVerifyOTP  = "verify_otp"
	CmdBack       = "back"
	CmdReset      = "reset"
)

// View is what the BookMyShow screens render. It never includes the
// password.
type View struct {
	Provider     string `json:"provider"`
	Screen       string `json:"screen"`
	Mobile       string `json:"mobile"`
	MaskedMobile string `json:"maskedMobile"`
	OTP          string `json:"otp"`

	Status       string `json:"status,omitempty"`
	LoginError   string `json:"loginError,omitempty"`
	OTPError     string `json:"otpError,omitempty"`
	ProfileName  string `json:"profileName,omitempty"`
	ProfileError string `json:"profileError,omitempty"`

	CanLogin         bool `json:"canLogin"`
	CanRequestOTP    bool `json:"canRequestOtp"`
	CanVerifyOTP     bool `json:"canVerifyOtp"`
	LoggingIn        bool `json:"loggingIn"`
	SendingOTP       bool `json:"sendingOtp"`
	VerifyingOTP     bool `json:"verifyingOtp"`
	OTPLimitExceeded bool `json:"otpLimitExceeded"`
}

// Controller drives the BookMyShow sign-in screens.
type Controller struct {
	machine *flow.Machine
}

// NewController creates a controller for a fresh sign-in attempt.
func NewController(p *Provider, logger *slog.Logger) *Controller {
	return &Controller{machine: flow.New(p, flow.WithLogger(logger))}
}

// Provider implements session.Flow.
func (c *Controller) Provider() string { return Name }

// SetMobile records the mobile number entry.
func (c *Controller) SetMobile(v string) { c.machine.EnterIdentifier(v) }

// SetPassword records the password entry.
func (c *Controller) SetPassword(v string) { c.machine.EnterSecret(v) }

// SetOTP records the OTP entry.
func (c *Controller) SetOTP(v string) { c.machine.EnterCode(v) }

// Login signs in with mobile number and password.
func (c *Controller) Login(ctx context.Context) error { return c.machine.Authenticate(ctx) }

// RequestOTP sends a login OTP to the entered mobile number.
func (c *Controller) RequestOTP(ctx context.Context) error { return c.machine.RequestChallenge(ctx) }

// VerifyOTP signs in with the entered OTP.
func (c *Controller) VerifyOTP(ctx context.Context) error { return c.machine.VerifyChallenge(ctx) }

// Back returns from the OTP screen to the login screen, keeping the mobile
// number.
func (c *Controller) Back() { c.machine.Back() }

// Reset starts over, lifting any OTP limit.
func (c *Controller) Reset() { c.machine.Reset() }

// Close implements session.Flow.
func (c *Controller) Close() { c.machine.Detach() }

// Handle implements session.Flow.
func (c *Controller) Handle(ctx context.Context, cmd flow.Command) error {
	switch cmd.Name {
	case CmdMobile:
		c.SetMobile(cmd.Value)
	case CmdPassword:
		c.SetPassword(cmd.Value)
	case CmdOTP:
		c.SetOTP(cmd.Value)
	case CmdLogin:
		return c.Login(ctx)
	case CmdRequestOTP:
		return c.RequestOTP(ctx)
	case CmdVerifyOTP:
		return c.VerifyOTP(ctx)
	case CmdBack:
		c.Back()
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
func (c *Controller) View() any { return Project(c.machine.State()) }

// Project renders a flow state as a View.
func Project(s flow.State) View {
	valid := ValidMobile(s.Identifier)
	v := View{
		Provider:     Name,
		Mobile:       s.Identifier,
		MaskedMobile: MaskMobile(s.Identifier),
		OTP:          s.Code,
		Status:       s.Status,
		LoginError:   s.Error,
		OTPError:     s.VerifyError,
		ProfileName:  s.Profile.DisplayName,
		ProfileError: s.ProfileError,

		LoggingIn:        s.InFlight.Has(flow.ActionAuthenticate),
		SendingOTP:       s.InFlight.Has(flow.ActionRequestChallenge),
		VerifyingOTP:     s.InFlight.Has(flow.ActionVerifyChallenge),
		OTPLimitExceeded: s.ChallengeLocked,
	}
	v.CanLogin = valid && s.Secret != "" && !v.LoggingIn
	v.CanRequestOTP = valid && !v.SendingOTP && !s.ChallengeLocked
	v.CanVerifyOTP = s.Code != "" && !v.VerifyingOTP

	switch s.Phase {
	case flow.PhaseAwaitingVerification:
		v.Screen = ScreenOTP
	case flow.PhaseLinked:
		v.Screen = ScreenLinked
	default:
		v.Screen = ScreenLogin
	}
	return v
}
