// Package bookmyshow links a BookMyShow "Do It Yourself" organiser account
// by mobile number and password or one-time password, through the
// same-origin relay.
package bookmyshow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/taar-app/ticketsync/internal/flow"
	"github.com/taar-app/ticketsync/internal/link"
	"github.com/taar-app/ticketsync/internal/relay"
)

// Name identifies the provider.
const Name = "bookmyshow"

// Relay operations.
const (
	OperationToken   = "bms-token"
	OperationProfile = "bms-profile"
)

// Grant types accepted by the token operation.
const (
	GrantPassword = "password"
	GrantLoginOTP = "login_otp"
)

// CodeLimitExceeded is the error code BookMyShow returns once too many OTPs
// have been requested.
const CodeLimitExceeded = "ERR.AUTH.LIMIT_EXCEEDED"

// LinkedMessage is shown once the account is linked.
const LinkedMessage = "Your BookMyShow account is now linked with Taar."

const profileFetchFailed = "Unable to fetch profile information."

// ErrMissingAccessToken fails a sign-in whose token bundle has no access
// token, before any profile fetch is attempted.
var ErrMissingAccessToken = flow.Invalid("Missing access token")

// RelayConfig returns the relay.Config for the same-origin relay at
// baseURL, which serves the bms-token and bms-profile operations. Relay hops
// carry the organiser's address so the relay rate limits them per organiser.
func RelayConfig(baseURL string) relay.Config {
	return relay.Config{
		Name:        Name,
		BaseURL:     baseURL,
		MessagePath: "message",
		CodePath:    "errors.code",
		Fallback:    relay.GenericFallback,

		ForwardClientIP: true,
	}
}

// Caller issues one relay call. *relay.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, operation string, payload any) relay.Outcome
}

type tokenRequest struct {
	Username       string `json:"username,omitempty"`
	MobileNumber   string `json:"mobileNumber,omitempty"`
	Password       string `json:"password,omitempty"`
	OTP            string `json:"otp,omitempty"`
	GrantType      string `json:"grantType"`
	IsLoginWithOTP bool   `json:"isLoginWithOtp,omitempty"`
}

type profileRequest struct {
	AccessToken string `json:"accessToken"`
}

// Provider implements flow.Provider and flow.Authenticator for BookMyShow.
type Provider struct {
	relay     Caller
	persister link.TokenPersister
	notifier  link.Notifier
	logger    *slog.Logger
}

// NewProvider creates the BookMyShow provider.
func NewProvider(relay Caller, persister link.TokenPersister, notifier link.Notifier, logger *slog.Logger) *Provider {
	return &Provider{
		relay:     relay,
		persister: persister,
		notifier:  notifier,
		logger:    logger.With(slog.String("provider", Name)),
	}
}

// Name implements flow.Provider.
func (p *Provider) Name() string { return Name }

// Policy implements flow.Provider.
func (p *Provider) Policy() flow.Policy {
	return flow.Policy{
		TransportMessage:     "Unable to reach BookMyShow. Please try again.",
		ChallengeSent:        "OTP sent successfully.",
		ChallengeResent:      "OTP sent successfully.",
		AuthenticateFallback: "Unable to login with password.",
		ChallengeFallback:    "Unable to send OTP.",
		ResendFallback:       "Unable to send OTP.",
		VerifyFallback:       "Unable to verify OTP.",
		QuietValidation:      true,
	}
}

// ValidateIdentifier implements flow.Provider. The mobile number is used
// exactly as entered.
func (p *Provider) ValidateIdentifier(raw string) (string, error) {
	if !ValidMobile(raw) {
		return "", flow.Invalid("Enter a valid 10-digit mobile number.")
	}
	return raw, nil
}

// Authenticate implements flow.Authenticator with the password grant.
func (p *Provider) Authenticate(ctx context.Context, mobile, password string) relay.Outcome {
	return p.relay.Call(ctx, OperationToken, tokenRequest{
		Username:  mobile,
		Password:  password,
		GrantType: GrantPassword,
	})
}

// RequestChallenge implements flow.Provider by asking for a login OTP.
func (p *Provider) RequestChallenge(ctx context.Context, mobile string) relay.Outcome {
	return p.relay.Call(ctx, OperationToken, tokenRequest{
		MobileNumber: mobile,
		GrantType:    GrantLoginOTP,
	})
}

// VerifyChallenge implements flow.Provider by exchanging the OTP for tokens.
func (p *Provider) VerifyChallenge(ctx context.Context, mobile, otp string) relay.Outcome {
	return p.relay.Call(ctx, OperationToken, tokenRequest{
		MobileNumber:   mobile,
		OTP:            otp,
		GrantType:      GrantLoginOTP,
		IsLoginWithOTP: true,
	})
}

// ClassifyError implements flow.Provider.
func (p *Provider) ClassifyError(out relay.Outcome) flow.ErrorClass {
	switch {
	case out.Transport():
		return flow.ClassTransport
	case out.Code == CodeLimitExceeded:
		return flow.ClassRateLimited
	default:
		return flow.ClassProvider
	}
}

// Complete implements flow.Provider. The token bundle is handed to the
// persister, then used once to resolve the display profile. A failed
// profile fetch does not undo the link.
func (p *Provider) Complete(ctx context.Context, mobile string, out relay.Outcome) (flow.Completion, error) {
	tokens := link.NewTokenBundle(out.Data())
	if !tokens.Empty() {
		var err error
		if tokens, err = p.persister.PersistTokens(ctx, tokens); err != nil {
			return flow.Completion{}, err
		}
	}

	accessToken := tokens.AccessToken()
	if accessToken == "" {
		return flow.Completion{}, ErrMissingAccessToken
	}

	done := flow.Completion{Status: LinkedMessage}
	profile := p.relay.Call(ctx, OperationProfile, profileRequest{AccessToken: accessToken})
	if profile.OK {
		done.Profile = flow.Profile{DisplayName: DisplayName(
			profile.Get("data.firstName").String(),
			profile.Get("data.lastName").String(),
			profile.Get("data.username").String(),
		)}
	} else {
		p.logger.WarnContext(ctx, "profile fetch failed",
			slog.Int("status", profile.Status),
			slog.String("message", profile.Message),
		)
		done.ProfileError = profileFetchFailed
	}

	if err := p.notifier.AccountLinked(ctx, link.Account{
		Provider:    Name,
		Identifier:  MaskMobile(mobile),
		DisplayName: done.Profile.DisplayName,
	}); err != nil {
		p.logger.WarnContext(ctx, "account linked notification failed",
			slog.String("error", err.Error()),
		)
	}
	return done, nil
}

// DisplayName joins the non-empty name parts, falling back to username.
func DisplayName(firstName, lastName, username string) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{firstName, lastName} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if name := strings.TrimSpace(strings.Join(parts, " ")); name != "" {
		return name
	}
	return username
}
