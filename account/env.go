package account

import (
	"fmt"

	"github.com/spf13/viper"
)

// envPrefixes are tried in order; the first one with a first account wins.
// STEAM_ is the historical prefix and is still accepted.
var envPrefixes = []string{"", "STEAM_"}

// EnvSource reads ACCOUNT_<n>_USERNAME / _PASSWORD / _SHARED_SECRET triples
// starting at n=1 and stopping at the first n without a username or password.
type EnvSource struct {
	cfg *viper.Viper
}

var _ Source = (*EnvSource)(nil)

// NewEnvSource returns a source reading from cfg. The caller decides which
// layers cfg covers (process environment, a .env file, explicit values).
func NewEnvSource(cfg *viper.Viper) *EnvSource {
	if cfg == nil {
		cfg = viper.New()
		cfg.AutomaticEnv()
	}
	return &EnvSource{cfg: cfg}
}

func (s *EnvSource) Credentials() ([]*Credential, error) {
	prefix := s.prefix()
	var creds []*Credential
	for n := 1; ; n++ {
		username := s.cfg.GetString(fmt.Sprintf("%sACCOUNT_%d_USERNAME", prefix, n))
		password := s.cfg.GetString(fmt.Sprintf("%sACCOUNT_%d_PASSWORD", prefix, n))
		if username == "" || password == "" {
			break
		}
		secret := s.cfg.GetString(fmt.Sprintf("%sACCOUNT_%d_SHARED_SECRET", prefix, n))
		c, err := NewCredential(username, password, secret)
		if err != nil {
			DestroyAll(creds)
			return nil, fmt.Errorf("account %d: %w", n, err)
		}
		creds = append(creds, c)
	}
	return creds, nil
}

func (s *EnvSource) prefix() string {
	for _, p := range envPrefixes {
		if s.cfg.GetString(p+"ACCOUNT_1_USERNAME") != "" {
			return p
		}
	}
	return envPrefixes[0]
}
