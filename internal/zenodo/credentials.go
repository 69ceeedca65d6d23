package zenodo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

const (
	tokenProperty        = "zenodo-access-token"
	sandboxTokenProperty = "zenodo-access-token-test"
)

// TokenProperty is the credentials-file key holding the token for an endpoint.
func TokenProperty(sandbox bool) string {
	if sandbox {
		return sandboxTokenProperty
	}
	return tokenProperty
}

// DefaultCredentialsPath is <home>/.boutiques.
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".boutiques"), nil
}

// Credentials is the JSON object stored at Path. Keys other than the token
// properties belong to other tools and are carried through writes untouched.
type Credentials struct {
	Path string
}

// Load never fails: a missing or unparsable file reads as empty.
func (c Credentials) Load() map[string]any {
	out := map[string]any{}
	b, err := os.ReadFile(c.Path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// Token returns the stored token for the endpoint, or "" if none.
func (c Credentials) Token(sandbox bool) string {
	v, _ := c.Load()[TokenProperty(sandbox)].(string)
	return strings.TrimSpace(v)
}

// SaveToken merges the token into the file, keeping every other property.
func (c Credentials) SaveToken(sandbox bool, token string) error {
	creds := c.Load()
	creds[TokenProperty(sandbox)] = token

	if dir := filepath.Dir(c.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// Map keys marshal sorted.
	b, err := json.MarshalIndent(creds, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, b, 0o600)
}
