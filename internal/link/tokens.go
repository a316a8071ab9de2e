// Package link hands the result of a successful sign-in to the host
// platform: the token bundle goes to a persister and a linked-account event
// goes to a notifier.
package link

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// TokenBundle is the opaque credential payload a provider returns on
// sign-in. Only the access token is ever read from it.
type TokenBundle struct {
	raw json.RawMessage
}

// NewTokenBundle wraps the raw JSON object returned by a provider.
func NewTokenBundle(raw []byte) TokenBundle {
	return TokenBundle{raw: raw}
}

// Empty reports whether the provider returned no bundle at all.
func (b TokenBundle) Empty() bool {
	return len(b.raw) == 0
}

// AccessToken returns the bundle's access token, or "" when absent.
func (b TokenBundle) AccessToken() string {
	if b.Empty() {
		return ""
	}
	return gjson.GetBytes(b.raw, "accessToken").String()
}

// Raw returns the bundle as received.
func (b TokenBundle) Raw() json.RawMessage {
	return b.raw
}

// TokenPersister stores a token bundle against the organiser's host account.
type TokenPersister interface {
	PersistTokens(ctx context.Context, tokens TokenBundle) (TokenBundle, error)
}

// Passthrough is the persister used until the host platform exposes a
// token store. It returns the bundle unchanged.
type Passthrough struct{}

// PersistTokens implements TokenPersister.
func (Passthrough) PersistTokens(_ context.Context, tokens TokenBundle) (TokenBundle, error) {
	return tokens, nil
}
