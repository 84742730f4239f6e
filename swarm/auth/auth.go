// ABOUTME: Credential resolution: --keys file (or, without one, ~/.nano_agent_team/auth.json),
// ABOUTME: then <PROVIDER>_API_KEY environment variables, in that order.

// Package auth resolves LLM provider API keys the way the swarm's CLI
// entry points need them resolved, generalizing the teacher's
// llm.Client.FromEnv (env-var-only) into the layered credential-file
// lookup the coordination layer requires.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const defaultAuthFileMode = 0o600

// rawKey is the on-disk shape a key.json/auth.json entry may take: either a
// bare string or {"type": "api", "key": "..."}.
type rawKey struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// keyFile is a provider-name -> value map, where value is either a JSON
// string or a rawKey object.
type keyFile map[string]json.RawMessage

// Resolver looks up API keys for named providers, trying an explicit
// --keys file (or, when none is given, the user's auth.json), then
// environment variables.
type Resolver struct {
	keysPath string
	fromFile map[string]string
}

// NewResolver loads keysPath (if non-empty) or, otherwise,
// ~/.nano_agent_team/auth.json (created empty and chmod 0600 if absent),
// and returns a Resolver ready to answer Lookup calls. A keysPath that
// cannot be read or parsed is an error; a missing or unreadable auth.json
// is not — resolution simply falls through to environment variables.
func NewResolver(keysPath string) (*Resolver, error) {
	r := &Resolver{keysPath: keysPath, fromFile: map[string]string{}}

	if keysPath != "" {
		if err := r.loadFile(keysPath); err != nil {
			return nil, fmt.Errorf("auth: reading %s: %w", keysPath, err)
		}
		return r, nil
	}

	path, err := defaultAuthPath()
	if err != nil {
		return r, nil //nolint:nilerr // no home dir resolvable, fall through to env vars
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if mkErr := ensureAuthFile(path); mkErr != nil {
			return r, nil //nolint:nilerr // best-effort create; env vars remain the fallback
		}
		return r, nil
	}
	_ = r.loadFile(path) // corrupt/unreadable auth.json falls through to env vars
	return r, nil
}

func defaultAuthPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nano_agent_team", "auth.json"), nil
}

func ensureAuthFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("{}"), defaultAuthFileMode)
}

func (r *Resolver) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for provider, raw := range kf {
		if key, ok := decodeKey(raw); ok {
			r.fromFile[provider] = key
		}
	}
	return nil
}

// decodeKey accepts either a bare JSON string or a {"type":"api","key":...} object.
func decodeKey(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var rk rawKey
	if err := json.Unmarshal(raw, &rk); err == nil {
		return rk.Key, rk.Key != ""
	}
	return "", false
}

// Lookup resolves provider's API key: the loaded key file first, then the
// <PROVIDER>_API_KEY environment variable (provider upper-cased). Returns
// false if no key was found anywhere.
func (r *Resolver) Lookup(provider string) (string, bool) {
	if key, ok := r.fromFile[provider]; ok && key != "" {
		return key, true
	}
	envVar := envVarName(provider)
	if key := os.Getenv(envVar); key != "" {
		return key, true
	}
	return "", false
}

func envVarName(provider string) string {
	upper := make([]byte, len(provider))
	for i := 0; i < len(provider); i++ {
		c := provider[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	return string(upper) + "_API_KEY"
}
