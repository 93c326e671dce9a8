package crypto

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	encoded, err := HashPassword("pw1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if strings.Contains(encoded, "pw1") {
		t.Fatal("encoded hash contains the plaintext password")
	}
	if !strings.HasPrefix(encoded, "argon2id$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if !VerifyPassword("pw1", encoded) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong", encoded) {
		t.Error("wrong password accepted")
	}
	if VerifyPassword("", encoded) {
		t.Error("empty password accepted")
	}
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical; salt is not random")
	}
	if !VerifyPassword("same", a) || !VerifyPassword("same", b) {
		t.Error("either hash fails verification")
	}
}

func TestVerifyPasswordMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"argon2id$zz$zz",
		"bcrypt$00$00",
		"argon2id$abcd",
	} {
		if VerifyPassword("pw", encoded) {
			t.Errorf("VerifyPassword accepted malformed hash %q", encoded)
		}
	}
}

func TestNewVoiceToken(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 32; i++ {
		tok, err := NewVoiceToken()
		if err != nil {
			t.Fatalf("NewVoiceToken: %v", err)
		}
		if tok == 0 {
			t.Fatal("voice token must be non-zero")
		}
		seen[tok] = true
	}
	if len(seen) < 2 {
		t.Error("voice tokens do not vary")
	}
}
