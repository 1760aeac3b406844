package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/sks/internal/util"
)

// Algorithm names a supported password hash scheme.
type Algorithm string

const (
	Bcrypt   Algorithm = "bcrypt"
	Argon2id Algorithm = "argon2id"
)

// ErrUnknownHash is returned for a stored hash in no recognised format.
var ErrUnknownHash = errors.New("unrecognised password hash")

// HashPassword returns an encoded hash of password suitable for a
// credentials file. The password is NFKD-normalized first.
func HashPassword(password string, alg Algorithm) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	buf := memguard.NewBufferFromBytes(util.NormalizeBytes([]byte(password)))
	defer buf.Destroy()

	switch alg {
	case Bcrypt, "":
		h, err := bcrypt.GenerateFromPassword(buf.Bytes(), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(h), nil
	case Argon2id:
		return util.EncodeArgon2idHash(buf.Bytes(), util.DefaultArgon2idParams())
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

// algorithmOf identifies the scheme of an encoded hash.
func algorithmOf(encoded string) (Algorithm, error) {
	switch {
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return Bcrypt, nil
	case strings.HasPrefix(encoded, util.Argon2idPrefix):
		return Argon2id, nil
	default:
		return "", ErrUnknownHash
	}
}

// verifyPassword compares password with an encoded hash. The normalized
// password only ever lives in a locked buffer.
func verifyPassword(encoded, password string) (bool, error) {
	alg, err := algorithmOf(encoded)
	if err != nil {
		return false, err
	}
	buf := memguard.NewBufferFromBytes(util.NormalizeBytes([]byte(password)))
	defer buf.Destroy()

	switch alg {
	case Bcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(encoded), buf.Bytes())
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("bcrypt: %w", err)
		}
		return true, nil
	default:
		params, salt, key, err := util.ParseArgon2idHash(encoded)
		if err != nil {
			return false, err
		}
		return util.CompareArgon2idKey(buf.Bytes(), salt, params, key)
	}
}
