package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidDSN = errors.New("invalid DSN")

// GeneratePublicKey returns a new 32 character project key.
func GeneratePublicKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildDSN renders the DSN handed to job runners, e.g.
// https://<public key>@monitor.example.com/42.
func BuildDSN(scheme, host, publicKey string, projectID uint) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.User(publicKey),
		Host:   host,
		Path:   fmt.Sprintf("/%d", projectID),
	}
	return u.String()
}

// ParsePublicKey accepts either a full DSN or a bare public key and returns
// the public key.
func ParsePublicKey(value string) (string, error) {
	value = strings.TrimSpace(value)

	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil || u.User == nil {
			return "", ErrInvalidDSN
		}
		value = u.User.Username()
	}

	if len(value) != 32 {
		return "", ErrInvalidDSN
	}
	for _, r := range value {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", ErrInvalidDSN
		}
	}

	return value, nil
}
