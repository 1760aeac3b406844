package util

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2idPrefix starts every encoded argon2id password hash:
//
//	argon2id$<time>$<memory KiB>$<parallelism>$<salt hex>$<key hex>
const Argon2idPrefix = "argon2id$"

type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

// DefaultArgon2idParams follows the OWASP minimums for interactive logins.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

func DeriveArgon2idKey(password, salt []byte, params Argon2idParams) ([]byte, error) {
	if params.KeyLen != 32 {
		return nil, fmt.Errorf("argon2id key length must be 32 bytes")
	}
	if params.Time == 0 || params.MemoryKiB == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("argon2id parameters must be non-zero")
	}
	return argon2.IDKey(password, salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}

func CompareArgon2idKey(password, salt []byte, params Argon2idParams, expectedKey []byte) (bool, error) {
	key, err := DeriveArgon2idKey(password, salt, params)
	if err != nil {
		return false, err
	}
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}

// EncodeArgon2idHash derives a key from password with a fresh 16-byte salt and
// returns it in the Argon2idPrefix format.
func EncodeArgon2idHash(password []byte, params Argon2idParams) (string, error) {
	salt, err := RandomBytes(16)
	if err != nil {
		return "", err
	}
	key, err := DeriveArgon2idKey(password, salt, params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d$%d$%d$%s$%s", Argon2idPrefix,
		params.Time, params.MemoryKiB, params.Parallelism, HexEncode(salt), HexEncode(key)), nil
}

// ParseArgon2idHash splits an encoded hash into its parameters, salt and key.
func ParseArgon2idHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	var params Argon2idParams
	if !strings.HasPrefix(encoded, Argon2idPrefix) {
		return params, nil, nil, fmt.Errorf("not an argon2id hash")
	}
	parts := strings.Split(strings.TrimPrefix(encoded, Argon2idPrefix), "$")
	if len(parts) != 5 {
		return params, nil, nil, fmt.Errorf("argon2id hash: expected 5 fields, got %d", len(parts))
	}
	t, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return params, nil, nil, fmt.Errorf("argon2id hash: time: %w", err)
	}
	m, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return params, nil, nil, fmt.Errorf("argon2id hash: memory: %w", err)
	}
	p, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return params, nil, nil, fmt.Errorf("argon2id hash: parallelism: %w", err)
	}
	salt, err := HexDecode(parts[3])
	if err != nil {
		return params, nil, nil, fmt.Errorf("argon2id hash: salt: %w", err)
	}
	key, err := HexDecode(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("argon2id hash: key: %w", err)
	}
	params = Argon2idParams{
		Time:        uint32(t),
		MemoryKiB:   uint32(m),
		Parallelism: uint8(p),
		KeyLen:      uint32(len(key)),
	}
	return params, salt, key, nil
}
