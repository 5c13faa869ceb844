// Package auth mints and checks the signed one-off keys mailed to users:
// email confirmation keys and password reset tokens. Both are HS256 JWTs
// bound to a purpose and to a fingerprint of the state they act on, so a key
// stops working once that state changes.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Purpose scopes a key to a single flow.
type Purpose string

const (
	PurposeEmailConfirmation Purpose = "email-confirmation"
	PurposePasswordReset     Purpose = "password-reset"
)

// Claims are the registered claims plus the purpose and state fingerprint.
// Subject holds the identity id (confirmation) or user id (reset).
type Claims struct {
	jwt.RegisteredClaims
	Purpose     Purpose `json:"pur"`
	Fingerprint string  `json:"fp"`
}

// GenerateKey signs a key for subject that is valid for validity and only
// while the subject's state still equals state.
func GenerateKey(purpose Purpose, subject, state string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Purpose:     purpose,
		Fingerprint: Fingerprint(state, secretKey),
	})

	return token.SignedString(secretKey)
}

// ParseKey verifies signature, expiry and purpose. Expired keys yield
// common.ErrTokenExpired; anything else wrong yields common.ErrInvalidToken.
func ParseKey(key string, purpose Purpose, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(key, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Purpose != purpose || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// Matches reports whether the key was issued for the given state.
func (c *Claims) Matches(state string, secretKey []byte) bool {
	return hmac.Equal([]byte(c.Fingerprint), []byte(Fingerprint(state, secretKey)))
}

// Fingerprint is a keyed digest of state, safe to embed in a mailed key.
func Fingerprint(state string, secretKey []byte) string {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(state))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}

// EncodeUID renders a user id the way it travels in reset links.
func EncodeUID(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(uid string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil || len(b) == 0 {
		return "", common.ErrInvalidToken
	}
	return string(b), nil
}
