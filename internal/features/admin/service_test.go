package admin

import (
	"encoding/base64"
	"fmt"
	"testing"

	"golang.org/x/crypto/argon2"
)

// encodeArgon2id собирает хеш в том же формате, что scripts/generate_hash.go.
func encodeArgon2id(password string, salt []byte) string {
	var (
		memory      uint32 = 65536
		iterations  uint32 = 3
		parallelism uint8  = 2
	)
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, 32)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func TestVerifyArgon2id(t *testing.T) {
	salt := []byte("0123456789abcdef")
	encoded := encodeArgon2id("correct horse", salt)

	if !verifyArgon2id("correct horse", encoded) {
		t.Error("верный пароль отклонён")
	}
	if verifyArgon2id("wrong horse", encoded) {
		t.Error("неверный пароль принят")
	}
}

func TestVerifyArgon2idMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=3,p=2$onlyfourparts",
		"$argon2id$v=19$bad-params$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$не-base64!$aGFzaA",
	}
	for _, h := range cases {
		if verifyArgon2id("password", h) {
			t.Errorf("битый хеш %q принят", h)
		}
	}
}

func TestGenerateSecureToken(t *testing.T) {
	a := generateSecureToken()
	b := generateSecureToken()
	if a == b {
		t.Error("токены совпали")
	}
	if len(a) < 32 {
		t.Errorf("токен подозрительно короткий: %d символов", len(a))
	}
}
