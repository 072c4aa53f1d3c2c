package platform

import (
	"errors"
	"os"
	"path/filepath"

	netrc "github.com/jdx/go-netrc"
)

// NetrcMachine is the netrc entry holding the API token.
const NetrcMachine = "api.heroku.com"

// ErrNoCredential is returned when no token is configured.
var ErrNoCredential = errors.New("no platform API token found")

// DefaultNetrcPath returns $NETRC or ~/.netrc.
func DefaultNetrcPath() string {
	if p := os.Getenv("NETRC"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".netrc")
}

// Token returns the API token from HEROKU_API_KEY, HEROKU_API_TOKEN or the
// netrc file at netrcPath, in that order.
func Token(getenv func(string) string, netrcPath string) (string, error) {
	for _, key := range []string{"HEROKU_API_KEY", "HEROKU_API_TOKEN"} {
		if v := getenv(key); v != "" {
			return v, nil
		}
	}
	if netrcPath == "" {
		return "", ErrNoCredential
	}
	if _, err := os.Stat(netrcPath); err != nil {
		return "", ErrNoCredential
	}

	n, err := netrc.Parse(netrcPath)
	if err != nil {
		return "", err
	}
	m := n.Machine(NetrcMachine)
	if m == nil {
		return "", ErrNoCredential
	}
	if token := m.Get("password"); token != "" {
		return token, nil
	}
	return "", ErrNoCredential
}
