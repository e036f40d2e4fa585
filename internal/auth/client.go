// Package auth obtains and stores OAuth2 credentials for Google accounts and
// turns them into calendar sessions.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/calmirror/internal/util"
)

// ClientConfigFile is the name of the OAuth2 client config in the
// credentials directory.
const ClientConfigFile = "oauth2_config.yaml"

// DefaultScopes grants read access to calendars and write access to events.
var DefaultScopes = []string{
	gcal.CalendarReadonlyScope,
	gcal.CalendarEventsScope,
}

var (
	// ErrNoClientConfig is returned when the OAuth2 client config file is missing.
	ErrNoClientConfig = errors.New("oauth2 client config not found")
	// ErrExists is returned when a template would overwrite an existing file.
	ErrExists = errors.New("file already exists")
)

// ClientConfig is the Google Cloud OAuth2 client used for every account.
type ClientConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

type clientConfigFile struct {
	Google ClientConfig `yaml:"google_oauth2"`
}

// ClientConfigPath returns the default client config location.
func ClientConfigPath() string {
	return filepath.Join(util.CredentialsDir(), ClientConfigFile)
}

// LoadClientConfig reads the client config at path.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s (run 'calmirror auth --setup')", ErrNoClientConfig, path)
		}
		return nil, fmt.Errorf("failed to read oauth2 config: %w", err)
	}

	var f clientConfigFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse oauth2 config %s: %w", path, err)
	}
	c := f.Google
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, fmt.Errorf("oauth2 config %s: google_oauth2.client_id and client_secret are required", path)
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	return &c, nil
}

// OAuth2 returns the x/oauth2 config for Google's endpoints.
func (c *ClientConfig) OAuth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       c.Scopes,
	}
}

const clientConfigTemplate = `# OAuth2 client for the Google Calendar API.
# Create a "TVs and Limited Input devices" client in the Google Cloud
# Console and paste its id and secret below.

google_oauth2:
  client_id: "your-client-id.apps.googleusercontent.com"
  client_secret: "your-client-secret"
  scopes:
    - "https://www.googleapis.com/auth/calendar.readonly"
    - "https://www.googleapis.com/auth/calendar.events"
`

// WriteTemplate writes a client config template to path. It refuses to
// replace an existing file unless force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := util.WriteFileAtomic(path, []byte(clientConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write oauth2 config template: %w", err)
	}
	return nil
}
