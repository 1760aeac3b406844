package util

import (
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// NormalizeBytes returns the NFKD form of b in a new slice.
func NormalizeBytes(b []byte) []byte {
	return norm.NFKD.Bytes(b)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
