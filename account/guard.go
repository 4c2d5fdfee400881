package account

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Philipp15b/go-steam/v3/totp"

	"github.com/jmcleod/steamrelay/internal/util"
)

// Code shape produced by the generator.
const (
	guardCodeLength = 5
	guardPeriod     = 30
	guardAlphabet   = "23456789BCDFGHJKMNPQRTVWXY"
)

// ErrInvalidSharedSecret is returned when a shared secret cannot be decoded.
var ErrInvalidSharedSecret = errors.New("invalid shared secret")

var hexSecretPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// GuardCode computes the Steam Guard mobile authenticator code for the given
// shared secret at the given time. The secret is the base64 (or 40 character
// hex) value from the authenticator's maFile.
func GuardCode(sharedSecret string, at time.Time) (string, error) {
	secret, err := normalizeSharedSecret(sharedSecret)
	if err != nil {
		return "", err
	}
	code, err := totp.GenerateTotpCode(secret, at)
	if err != nil {
		if errors.Is(err, totp.ErrInvalidSharedSecret) {
			return "", ErrInvalidSharedSecret
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidSharedSecret, err)
	}
	return code, nil
}

// normalizeSharedSecret returns the secret in the base64 form the code
// generator expects.
func normalizeSharedSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrInvalidSharedSecret
	}
	if !hexSecretPattern.MatchString(secret) {
		return secret, nil
	}
	key, err := hex.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSharedSecret, err)
	}
	defer util.WipeBytes(key)
	return base64.StdEncoding.EncodeToString(key), nil
}
