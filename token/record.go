package token

import (
	"strings"
)

// Provenance markers stored in session records.
const (
	SourceStored = "stored"
	SourcePAM    = "pam"
)

// RevokedMarker replaces the current-token index value when the current
// token is revoked. It never equals a live token, so every older token for
// the user keeps validating as superseded.
const RevokedMarker = "revoked"

// Key layout:
//
//	session:{realm}:{token} -> "{user}\n{source}[\n{aux}]"
//	current:{realm}:{user}  -> "{token}" | "revoked"
const (
	sessionPrefix = "session:"
	currentPrefix = "current:"
)

func sessionKey(realm RealmID, tok string) string {
	return sessionPrefix + string(realm) + ":" + tok
}

func currentKey(realm RealmID, user string) string {
	return currentPrefix + string(realm) + ":" + user
}

// record is the decoded value of a session key.
type record struct {
	User   string
	Source string
	Aux    string
}

func (r record) encode() string {
	v := r.User + "\n" + r.Source
	if r.Aux != "" {
		v += "\n" + r.Aux
	}
	return v
}

// decodeRecord parses a session value. A value without both a user and a
// source line is not a usable record.
func decodeRecord(v string) (record, bool) {
	parts := strings.SplitN(v, "\n", 3)
	if len(parts) < 2 || parts[1] == "" {
		return record{}, false
	}
	r := record{User: parts[0], Source: parts[1]}
	if len(parts) == 3 {
		r.Aux = strings.TrimSuffix(parts[2], "\n")
	}
	return r, true
}
