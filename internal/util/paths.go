//nolint:revive // var-naming - package name is meaningful
package util

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName is the directory name used under the XDG config and data roots.
const AppName = "calmirror"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// ConfigDir returns the calmirror configuration directory.
// XDG_CONFIG_HOME wins over the platform default.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(HomeDir(), ".config", AppName)
}

// DataDir returns the calmirror data directory (XDG_DATA_HOME or ~/.local/share).
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	return filepath.Join(HomeDir(), ".local", "share", AppName)
}

// CredentialsDir returns the directory holding OAuth2 client config and tokens.
func CredentialsDir() string {
	return filepath.Join(DataDir(), "credentials")
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(p string) string {
	if p == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(HomeDir(), p[2:])
	}
	return p
}
