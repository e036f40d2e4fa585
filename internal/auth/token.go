package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/util"
)

// ErrNoToken is returned when an account has not been authorized yet.
var ErrNoToken = errors.New("no stored token")

// TokenStore keeps one JSON token file per account.
type TokenStore struct {
	Dir string
}

// NewTokenStore returns a store rooted at dir, or at the default
// credentials directory when dir is empty.
func NewTokenStore(dir string) *TokenStore {
	if dir == "" {
		dir = util.CredentialsDir()
	}
	return &TokenStore{Dir: dir}
}

// Path returns the token file for acct. An explicit credentials_file wins.
func (s *TokenStore) Path(acct config.Account) string {
	if acct.CredentialsFile != "" {
		return util.ExpandPath(acct.CredentialsFile)
	}
	return filepath.Join(s.Dir, acct.Name+".json")
}

// Load reads the stored token for acct.
func (s *TokenStore) Load(acct config.Account) (*oauth2.Token, error) {
	path := s.Path(acct)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for account %q (run 'calmirror auth %s')", ErrNoToken, acct.Name, acct.Name)
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token %s: %w", path, err)
	}
	return &tok, nil
}

// Save writes tok for acct with owner-only permissions.
func (s *TokenStore) Save(acct config.Account, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := util.WriteFileAtomic(s.Path(acct), data, 0o600); err != nil {
		return fmt.Errorf("failed to save token for %q: %w", acct.Name, err)
	}
	return nil
}

// Exists reports whether acct has a stored token.
func (s *TokenStore) Exists(acct config.Account) bool {
	_, err := os.Stat(s.Path(acct))
	return err == nil
}
