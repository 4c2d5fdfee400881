package account

import (
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

type fileSchema struct {
	Accounts []fileAccount `toml:"accounts"`
}

type fileAccount struct {
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	SharedSecret string `toml:"shared_secret"`
}

// FileSource reads credentials from a TOML file of [[accounts]] tables.
// Unlike the environment source, an incomplete entry is an error rather than
// the end of the list.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Credentials() ([]*Credential, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer f.Close()

	var schema fileSchema
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&schema); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("decode accounts file: %s", strict.String())
		}
		return nil, fmt.Errorf("decode accounts file: %w", err)
	}

	creds := make([]*Credential, 0, len(schema.Accounts))
	for i, a := range schema.Accounts {
		c, err := NewCredential(a.Username, a.Password, a.SharedSecret)
		if err != nil {
			DestroyAll(creds)
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		creds = append(creds, c)
	}
	return creds, nil
}
