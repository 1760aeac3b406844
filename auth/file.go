package auth

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// AnyRealm is the realms key whose users are accepted in every realm that
// has no entry of its own for them.
const AnyRealm = "*"

// credentialsFile is the on-disk layout:
//
//	realms:
//	  prod:
//	    alice: "$2a$10$..."
//	  "*":
//	    ops: "argon2id$3$65536$4$<salt>$<key>"
type credentialsFile struct {
	Realms map[string]map[string]string `yaml:"realms"`
}

// FileAuthenticator checks passwords against bcrypt or argon2id hashes read
// from a YAML credentials file. It is safe for concurrent use and can be
// reloaded while serving.
type FileAuthenticator struct {
	path string

	mu     sync.RWMutex
	realms map[string]map[string]string
}

var _ Authenticator = (*FileAuthenticator)(nil)

// LoadFile reads and validates the credentials file at path.
func LoadFile(path string) (*FileAuthenticator, error) {
	f := &FileAuthenticator{path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Parse builds an authenticator from credentials file contents. The result
// cannot be reloaded.
func Parse(data []byte) (*FileAuthenticator, error) {
	realms, err := parseCredentials(data)
	if err != nil {
		return nil, err
	}
	return &FileAuthenticator{realms: realms}, nil
}

// Reload re-reads the credentials file. On error the previous contents stay
// in effect.
func (f *FileAuthenticator) Reload() error {
	if f.path == "" {
		return fmt.Errorf("credentials were not loaded from a file")
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading credentials file: %w", err)
	}
	realms, err := parseCredentials(data)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}
	f.mu.Lock()
	f.realms = realms
	f.mu.Unlock()
	return nil
}

// Users returns the number of configured (realm, user) entries.
func (f *FileAuthenticator) Users() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, users := range f.realms {
		n += len(users)
	}
	return n
}

func (f *FileAuthenticator) CheckUser(ctx context.Context, realm, user, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if user == "" || password == "" {
		return false, nil
	}
	f.mu.RLock()
	encoded, ok := f.realms[realm][user]
	if !ok {
		encoded, ok = f.realms[AnyRealm][user]
	}
	f.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return verifyPassword(encoded, password)
}

func parseCredentials(data []byte) (map[string]map[string]string, error) {
	var cf credentialsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	realms := make(map[string]map[string]string, len(cf.Realms))
	for realm, users := range cf.Realms {
		if realm == "" {
			return nil, fmt.Errorf("credentials: empty realm name")
		}
		m := make(map[string]string, len(users))
		for user, encoded := range users {
			if user == "" {
				return nil, fmt.Errorf("credentials: realm %q: empty user name", realm)
			}
			if _, err := algorithmOf(encoded); err != nil {
				return nil, fmt.Errorf("credentials: realm %q user %q: %w", realm, user, err)
			}
			m[user] = encoded
		}
		realms[realm] = m
	}
	return realms, nil
}
