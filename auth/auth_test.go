package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/sks/internal/util"
)

func bcryptHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func argonHash(t *testing.T, password string) string {
	t.Helper()
	h, err := util.EncodeArgon2idHash(util.NormalizeBytes([]byte(password)), util.Argon2idParams{
		Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32,
	})
	require.NoError(t, err)
	return h
}

func credentialsYAML(t *testing.T) []byte {
	t.Helper()
	return []byte(fmt.Sprintf(`realms:
  prod:
    alice: %q
    bob: %q
  "*":
    ops: %q
`, bcryptHash(t, "wonderland"), argonHash(t, "builder"), bcryptHash(t, "pager")))
}

func TestFuncAndDenyAll(t *testing.T) {
	ctx := context.Background()

	var called bool
	f := Func(func(_ context.Context, realm, user, password string) (bool, error) {
		called = true
		return realm == "r" && user == "u" && password == "p", nil
	})
	ok, err := f.CheckUser(ctx, "r", "u", "p")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, called)

	ok, err = DenyAll.CheckUser(ctx, "r", "u", "p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileAuthenticator(t *testing.T) {
	ctx := context.Background()
	a, err := Parse(credentialsYAML(t))
	require.NoError(t, err)
	assert.Equal(t, 3, a.Users())

	tests := []struct {
		name     string
		realm    string
		user     string
		password string
		want     bool
	}{
		{"bcrypt match", "prod", "alice", "wonderland", true},
		{"bcrypt mismatch", "prod", "alice", "looking-glass", false},
		{"argon2id match", "prod", "bob", "builder", true},
		{"argon2id mismatch", "prod", "bob", "fixer", false},
		{"wrong realm", "staging", "alice", "wonderland", false},
		{"any realm fallback", "staging", "ops", "pager", true},
		{"any realm fallback in named realm", "prod", "ops", "pager", true},
		{"unknown user", "prod", "mallory", "wonderland", false},
		{"empty password", "prod", "alice", "", false},
		{"empty user", "prod", "", "wonderland", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.CheckUser(ctx, tt.realm, tt.user, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		ok, err := a.CheckUser(cctx, "prod", "alice", "wonderland")
		assert.False(t, ok)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestNormalizedPasswords(t *testing.T) {
	ctx := context.Background()
	// Precomposed and decomposed forms of the same password must both verify.
	hash, err := HashPassword("caf\u00e9", Bcrypt)
	require.NoError(t, err)
	a, err := Parse([]byte(fmt.Sprintf("realms:\n  r:\n    u: %q\n", hash)))
	require.NoError(t, err)

	ok, err := a.CheckUser(ctx, "r", "u", "caf\u00e9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.CheckUser(ctx, "r", "u", "cafe\u0301")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseRejectsBadFiles(t *testing.T) {
	for name, data := range map[string]string{
		"not yaml":     "realms: [",
		"unknown hash": "realms:\n  r:\n    u: plaintext\n",
		"empty user":   "realms:\n  r:\n    \"\": \"$2a$04$abc\"\n",
		"empty realm":  "realms:\n  \"\":\n    u: \"$2a$04$abc\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}

	t.Run("unknown hash is ErrUnknownHash", func(t *testing.T) {
		_, err := Parse([]byte("realms:\n  r:\n    u: plaintext\n"))
		assert.ErrorIs(t, err, ErrUnknownHash)
	})
}

func TestLoadFileAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, credentialsYAML(t), 0o600))

	a, err := LoadFile(path)
	require.NoError(t, err)
	ok, err := a.CheckUser(ctx, "prod", "alice", "wonderland")
	require.NoError(t, err)
	assert.True(t, ok)

	// Replace alice's password and reload.
	updated := fmt.Sprintf("realms:\n  prod:\n    alice: %q\n", bcryptHash(t, "rabbit"))
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, a.Reload())

	ok, err = a.CheckUser(ctx, "prod", "alice", "wonderland")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = a.CheckUser(ctx, "prod", "alice", "rabbit")
	require.NoError(t, err)
	assert.True(t, ok)

	// A broken file keeps the previous credentials.
	require.NoError(t, os.WriteFile(path, []byte("realms: ["), 0o600))
	require.Error(t, a.Reload())
	ok, err = a.CheckUser(ctx, "prod", "alice", "rabbit")
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("Missing", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("ParsedCannotReload", func(t *testing.T) {
		p, err := Parse([]byte("realms: {}\n"))
		require.NoError(t, err)
		assert.Error(t, p.Reload())
	})
}

func TestHashPassword(t *testing.T) {
	t.Run("Bcrypt", func(t *testing.T) {
		h, err := HashPassword("s3cret", Bcrypt)
		require.NoError(t, err)
		ok, err := verifyPassword(h, "s3cret")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Argon2id", func(t *testing.T) {
		h, err := HashPassword("s3cret", Argon2id)
		require.NoError(t, err)
		alg, err := algorithmOf(h)
		require.NoError(t, err)
		assert.Equal(t, Argon2id, alg)
		ok, err := verifyPassword(h, "s3cret")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = verifyPassword(h, "guess")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := HashPassword("", Bcrypt)
		assert.Error(t, err)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := HashPassword("s3cret", Algorithm("md5"))
		assert.Error(t, err)
	})
}
