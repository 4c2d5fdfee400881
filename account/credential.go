// Package account holds the configured Steam account credentials and the
// sources they are loaded from.
package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
)

var (
	// ErrMissingUsername is returned when a credential has no account name.
	ErrMissingUsername = errors.New("account username is required")
	// ErrMissingPassword is returned when a credential has no password.
	ErrMissingPassword = errors.New("account password is required")
	// ErrCredentialDestroyed is returned when secrets are read after Destroy.
	ErrCredentialDestroyed = errors.New("credential destroyed")
)

// Credential is one configured account. The password and the optional Steam
// Guard shared secret are kept in memguard enclaves (encrypted in memory)
// and are only decrypted for the duration of a login attempt.
// Call Destroy() once the credential is no longer needed.
type Credential struct {
	identity     string
	password     *memguard.Enclave
	sharedSecret *memguard.Enclave
	destroyed    bool
}

// NewCredential seals the given secrets. sharedSecret may be empty when the
// account has no mobile authenticator.
func NewCredential(identity, password, sharedSecret string) (*Credential, error) {
	if identity == "" {
		return nil, ErrMissingUsername
	}
	if password == "" {
		return nil, fmt.Errorf("%s: %w", identity, ErrMissingPassword)
	}
	c := &Credential{
		identity: identity,
		password: memguard.NewEnclave([]byte(password)),
	}
	if sharedSecret != "" {
		c.sharedSecret = memguard.NewEnclave([]byte(sharedSecret))
	}
	return c, nil
}

// Identity returns the account name the credential logs in as.
func (c *Credential) Identity() string {
	if c == nil {
		return ""
	}
	return c.identity
}

// HasSharedSecret reports whether logins require a Steam Guard code.
func (c *Credential) HasSharedSecret() bool {
	return c != nil && !c.destroyed && c.sharedSecret != nil
}

// Password returns a copy of the account password.
func (c *Credential) Password() (string, error) {
	if c == nil || c.destroyed {
		return "", ErrCredentialDestroyed
	}
	return openString(c.password)
}

// GuardCode returns the Steam Guard code valid at the given time, or an
// empty string when no shared secret is configured. Codes are short-lived,
// so callers generate one per login attempt.
func (c *Credential) GuardCode(at time.Time) (string, error) {
	if c == nil || c.destroyed {
		return "", ErrCredentialDestroyed
	}
	if c.sharedSecret == nil {
		return "", nil
	}
	secret, err := openString(c.sharedSecret)
	if err != nil {
		return "", err
	}
	return GuardCode(secret, at)
}

// Destroy drops the sealed secrets. After calling Destroy, the Credential
// must not be reused.
func (c *Credential) Destroy() {
	if c == nil || c.destroyed {
		return
	}
	c.password = nil
	c.sharedSecret = nil
	c.destroyed = true
}

func openString(e *memguard.Enclave) (string, error) {
	buf, err := e.Open()
	if err != nil {
		return "", fmt.Errorf("opening enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// DestroyAll destroys every credential in the slice.
func DestroyAll(creds []*Credential) {
	for _, c := range creds {
		c.Destroy()
	}
}
