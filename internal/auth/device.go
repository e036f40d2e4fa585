package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/klauern/calmirror/internal/config"
)

// Prompter shows the user where to enter the device code.
type Prompter func(resp *oauth2.DeviceAuthResponse)

// DeviceLogin runs the OAuth2 device authorization grant and blocks until
// the user approves, the code expires or ctx is done.
func DeviceLogin(ctx context.Context, cfg *oauth2.Config, prompt Prompter) (*oauth2.Token, error) {
	resp, err := cfg.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}
	if prompt != nil {
		prompt(resp)
	}
	tok, err := cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device token exchange failed: %w", err)
	}
	return tok, nil
}

// Login authorizes acct with the device flow and stores the token.
func Login(ctx context.Context, client *ClientConfig, store *TokenStore, acct config.Account, prompt Prompter) error {
	tok, err := DeviceLogin(ctx, client.OAuth2(), prompt)
	if err != nil {
		return err
	}
	return store.Save(acct, tok)
}
