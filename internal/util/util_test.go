package util

import (
	"bytes"
	"strings"
	"testing"
)

func testArgon2idParams() Argon2idParams {
	return Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32}
}

func TestArgon2id(t *testing.T) {
	params := testArgon2idParams()
	password := []byte("correct horse battery staple")
	salt := []byte("random salt")

	key, err := DeriveArgon2idKey(password, salt, params)
	if err != nil {
		t.Fatalf("DeriveArgon2idKey failed: %v", err)
	}

	if len(key) != 32 {
		t.Errorf("expected key length 32, got %d", len(key))
	}

	match, err := CompareArgon2idKey(password, salt, params, key)
	if err != nil {
		t.Fatalf("CompareArgon2idKey failed: %v", err)
	}
	if !match {
		t.Error("expected CompareArgon2idKey to return true")
	}

	match, _ = CompareArgon2idKey([]byte("wrong password"), salt, params, key)
	if match {
		t.Error("expected CompareArgon2idKey to return false for wrong password")
	}

	t.Run("BadKeyLen", func(t *testing.T) {
		p := params
		p.KeyLen = 16
		if _, err := DeriveArgon2idKey(password, salt, p); err == nil {
			t.Error("expected error for 16-byte key length")
		}
	})

	t.Run("ZeroParams", func(t *testing.T) {
		p := params
		p.Time = 0
		if _, err := DeriveArgon2idKey(password, salt, p); err == nil {
			t.Error("expected error for zero time")
		}
	})
}

func TestArgon2idHashEncoding(t *testing.T) {
	params := testArgon2idParams()
	encoded, err := EncodeArgon2idHash([]byte("hunter2"), params)
	if err != nil {
		t.Fatalf("EncodeArgon2idHash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, Argon2idPrefix) {
		t.Fatalf("expected %q prefix, got %q", Argon2idPrefix, encoded)
	}

	got, salt, key, err := ParseArgon2idHash(encoded)
	if err != nil {
		t.Fatalf("ParseArgon2idHash failed: %v", err)
	}
	if got != params {
		t.Errorf("expected params %+v, got %+v", params, got)
	}
	if len(salt) != 16 {
		t.Errorf("expected 16-byte salt, got %d", len(salt))
	}
	ok, err := CompareArgon2idKey([]byte("hunter2"), salt, got, key)
	if err != nil || !ok {
		t.Fatalf("expected encoded hash to verify, ok=%v err=%v", ok, err)
	}

	again, err := EncodeArgon2idHash([]byte("hunter2"), params)
	if err != nil {
		t.Fatalf("EncodeArgon2idHash failed: %v", err)
	}
	if again == encoded {
		t.Error("expected a fresh salt per hash")
	}

	for _, bad := range []string{
		"",
		"bcrypt$1$2$3$aa$bb",
		"argon2id$1$2$3$aa",
		"argon2id$x$1024$1$aa$bb",
		"argon2id$1$x$1$aa$bb",
		"argon2id$1$1024$300$aa$bb",
		"argon2id$1$1024$1$zz$bb",
		"argon2id$1$1024$1$aa$zz",
	} {
		if _, _, _, err := ParseArgon2idHash(bad); err == nil {
			t.Errorf("expected error parsing %q", bad)
		}
	}
}

func TestDefaultArgon2idParams_MeetsOWASPMinimums(t *testing.T) {
	p := DefaultArgon2idParams()
	if p.Time < 3 {
		t.Errorf("default Time=%d is below OWASP recommended minimum of 3", p.Time)
	}
	if p.MemoryKiB < 64*1024 {
		t.Errorf("default MemoryKiB=%d is below OWASP recommended minimum of %d (64 MiB)", p.MemoryKiB, 64*1024)
	}
	if p.KeyLen != 32 {
		t.Errorf("default KeyLen=%d, want 32", p.KeyLen)
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte("secret")
	WipeBytes(b)
	if !bytes.Equal(b, make([]byte, 6)) {
		t.Errorf("expected zeroed slice, got %v", b)
	}
}

func TestEncoding(t *testing.T) {
	s := "test string"
	encoded := HexEncode([]byte(s))
	decoded, err := HexDecode(encoded)
	if err != nil {
		t.Fatalf("HexDecode failed: %v", err)
	}
	if string(decoded) != s {
		t.Errorf("expected %s, got %s", s, string(decoded))
	}

	if got := string(NormalizeBytes([]byte("caf\u00e9"))); got != "cafe\u0301" {
		t.Errorf("NormalizeBytes failed, got %q", got)
	}
}

func TestRandomBytes(t *testing.T) {
	b1, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b2, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	if len(b1) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(b1))
	}
	if bytes.Equal(b1, b2) {
		t.Error("RandomBytes should produce different outputs")
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert failed: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatal("expected parsed leaf certificate")
	}
	if err := cert.Leaf.VerifyHostname("localhost"); err != nil {
		t.Errorf("expected certificate to be valid for localhost: %v", err)
	}
	if cert.PrivateKey == nil {
		t.Error("expected private key")
	}
}
