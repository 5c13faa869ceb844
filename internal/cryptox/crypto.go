// Package cryptox implements password hashing for stored credentials using
// argon2id with a per-password random salt.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	algorithm = "argon2id"

	saltSize   = 16
	keySize    = 32
	iterations = 1
	memory     = 64 * 1024
	threads    = 4
)

// UnusablePassword marks an account that cannot log in with a password.
const UnusablePassword = "!"

var ErrMalformedHash = errors.New("malformed password hash")

var b64 = base64.RawStdEncoding

// DeriveKey stretches password with salt using the default argon2id cost.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, iterations, memory, threads, keySize)
}

// HashPassword returns an encoded hash of the form
// argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>.
func HashPassword(password string) (string, error) {
	salt := common.GenerateRandByteArray(saltSize)
	if salt == nil {
		return "", common.ErrorInternal
	}
	pw := []byte(password)
	defer common.WipeByteArray(pw)

	key := DeriveKey(pw, salt)

	return fmt.Sprintf("%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version, memory, iterations, threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// CheckPassword reports whether password matches the encoded hash.
// Malformed or unusable hashes never match.
func CheckPassword(password, encoded string) bool {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, p.t, p.m, p.p, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

type params struct {
	m uint32
	t uint32
	p uint8
}

func decode(encoded string) (params, []byte, []byte, error) {
	var p params

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != algorithm {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrMalformedHash
	}
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &p.m, &p.t, &p.p); err != nil {
		return p, nil, nil, ErrMalformedHash
	}

	salt, err := b64.DecodeString(parts[3])
	if err != nil {
		return p, nil, nil, ErrMalformedHash
	}
	key, err := b64.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrMalformedHash
	}

	return p, salt, key, nil
}
