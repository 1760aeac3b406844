package token

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// RealmID is the digest of a realm string. Only RealmIDs are persisted; the
// realm text itself is never written to the store.
type RealmID string

// domainKey is a 32-byte BLAKE3 key. Keyed hashing separates realm digests
// from token derivation so the same input never yields the same value in
// both. Changing a key orphans every record written under it.
type domainKey [32]byte

var (
	realmDomainKey = domainKey{
		's', 'k', 's', '.', 'r', 'e', 'a', 'l', 'm', 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	tokenDomainKey = domainKey{
		's', 'k', 's', '.', 't', 'o', 'k', 'e', 'n', 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

func keyedHash(key domainKey, parts ...[]byte) [32]byte {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("token: invalid BLAKE3 domain key: " + err.Error())
	}
	for _, p := range parts {
		h.Write(p)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// DigestRealm reduces a realm string to its stable namespace identifier.
func DigestRealm(realm string) RealmID {
	sum := keyedHash(realmDomainKey, []byte(realm))
	return RealmID(hex.EncodeToString(sum[:]))
}

// Generator produces a fresh token.
type Generator func() (string, error)

// NewToken digests two fresh random (version 4) UUIDs into a 64-character
// hex token.
func NewToken() (string, error) {
	a, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	b, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	sum := keyedHash(tokenDomainKey, a[:], b[:])
	return hex.EncodeToString(sum[:]), nil
}
