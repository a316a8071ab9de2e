// Package luma links a Luma account by SMS verification code, calling the
// Luma API directly.
package luma

import (
	"context"
	"log/slog"
	"strings"

	"github.com/taar-app/ticketsync/internal/flow"
	"github.com/taar-app/ticketsync/internal/link"
	"github.com/taar-app/ticketsync/internal/relay"
)

// Name identifies the provider.
const Name = "luma"

// API operations, relative to the Luma API base URL.
const (
	OperationRequestCode = "auth/sms/request-verification-code"
	OperationVerifyCode  = "auth/sms/verify-verification-code"
)

// Client identification headers required by the Luma API.
const (
	HeaderClientType    = "x-luma-client-type"
	HeaderClientVersion = "x-luma-client-version"
	ClientType          = "luma-web"
)

// User-facing copy.
const (
	msgEnterEmail    = "Please enter a valid email address."
	msgEnterMobile   = "Please enter a mobile number."
	msgInvalidMobile = "Please enter a valid mobile number."
	msgVerified      = "Phone verified successfully."
)

// RelayConfig returns the relay.Config for direct Luma API calls.
func RelayConfig(baseURL, clientVersion string) relay.Config {
	return relay.Config{
		Name:    Name,
		BaseURL: baseURL,
		Headers: map[string]string{
			HeaderClientType:    ClientType,
			HeaderClientVersion: clientVersion,
		},
		MessagePath: "message",
		CodePath:    "error",
		Fallback:    relay.StatusFallback,
	}
}

// Caller issues one API call. *relay.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, operation string, payload any) relay.Outcome
}

type requestCode struct {
	PhoneNumber string `json:"phone_number"`
}

type verifyCode struct {
	PhoneNumber      string `json:"phone_number"`
	VerificationCode string `json:"verification_code"`
}

// Provider implements flow.Provider for Luma phone sign-in.
type Provider struct {
	api      Caller
	notifier link.Notifier
	logger   *slog.Logger
}

// NewProvider creates the Luma provider.
func NewProvider(api Caller, notifier link.Notifier, logger *slog.Logger) *Provider {
	return &Provider{
		api:      api,
		notifier: notifier,
		logger:   logger.With(slog.String("provider", Name)),
	}
}

// Name implements flow.Provider.
func (p *Provider) Name() string { return Name }

// Policy implements flow.Provider.
func (p *Provider) Policy() flow.Policy {
	return flow.Policy{
		TransportMessage:   "Unable to reach Luma at the moment. Please try again.",
		ChallengeSent:      "Code sent successfully.",
		ChallengeResent:    "Code resent successfully.",
		ChallengeFallback:  "Failed to send code. Try again.",
		ResendFallback:     "Failed to resend code.",
		VerifyFallback:     "Invalid code.",
		ClearCodeOnFailure: true,
	}
}

// ValidateIdentifier implements flow.Provider. It returns the E.164 form of
// the entered mobile number.
func (p *Provider) ValidateIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", flow.Invalid(msgEnterMobile)
	}
	if len(onlyDigits(raw)) < 10 {
		return "", flow.Invalid(msgInvalidMobile)
	}
	e164 := NormalizePhone(raw)
	if e164 == "" {
		return "", flow.Invalid(msgInvalidMobile)
	}
	return e164, nil
}

// RequestChallenge implements flow.Provider.
func (p *Provider) RequestChallenge(ctx context.Context, phone string) relay.Outcome {
	return p.api.Call(ctx, OperationRequestCode, requestCode{PhoneNumber: phone})
}

// VerifyChallenge implements flow.Provider.
func (p *Provider) VerifyChallenge(ctx context.Context, phone, code string) relay.Outcome {
	return p.api.Call(ctx, OperationVerifyCode, verifyCode{PhoneNumber: phone, VerificationCode: code})
}

// ClassifyError implements flow.Provider. Luma has no rate-limit lock.
func (p *Provider) ClassifyError(out relay.Outcome) flow.ErrorClass {
	if out.Transport() {
		return flow.ClassTransport
	}
	return flow.ClassProvider
}

// Complete implements flow.Provider. Luma keeps the session in cookies, so
// there is no token bundle or profile to resolve.
func (p *Provider) Complete(ctx context.Context, phone string, _ relay.Outcome) (flow.Completion, error) {
	if err := p.notifier.AccountLinked(ctx, link.Account{
		Provider:   Name,
		Identifier: MaskPhone(phone),
	}); err != nil {
		p.logger.WarnContext(ctx, "account linked notification failed",
			slog.String("error", err.Error()),
		)
	}
	return flow.Completion{Status: msgVerified}, nil
}
