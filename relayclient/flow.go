package relayclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Flow runs an authorization code flow whose redirect URI points at a relay
// rather than at the client itself.
type Flow struct {
	OAuth2 *oauth2.Config
	Relay  *Client
}

// Session is one started flow. Keep it until Complete.
type Session struct {
	State    string
	Verifier string
	AuthURL  string
}

// NewState returns a fresh, unguessable state value.
func NewState() string {
	return uuid.NewString()
}

// Start creates a state and PKCE verifier and returns the URL the user must
// open to grant access.
func (f *Flow) Start(opts ...oauth2.AuthCodeOption) Session {
	state := NewState()
	verifier := oauth2.GenerateVerifier()
	opts = append(opts, oauth2.S256ChallengeOption(verifier))
	return Session{
		State:    state,
		Verifier: verifier,
		AuthURL:  f.OAuth2.AuthCodeURL(state, opts...),
	}
}

// Complete waits for the relay to receive the code and exchanges it.
func (f *Flow) Complete(ctx context.Context, s Session) (*oauth2.Token, error) {
	code, err := f.Relay.Poll(ctx, s.State)
	if err != nil {
		return nil, fmt.Errorf("[Flow Complete] waiting for code: %w", err)
	}

	token, err := f.OAuth2.Exchange(ctx, code, oauth2.VerifierOption(s.Verifier))
	if err != nil {
		return nil, fmt.Errorf("[Flow Complete] exchange: %w", err)
	}
	return token, nil
}
