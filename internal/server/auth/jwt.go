// Package auth implements token issuance/verification and password hashing
// for the gateway. Tokens are stateless HS256 JWTs: validity is determined
// purely by signature and expiry, nothing is stored server-side.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mlevkov/chatgate/internal/common"
)

// Claims embeds the registered claim set; the user id travels in Subject.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken mints a signed token with sub=userID and exp=now+validityDuration.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserIDFromToken verifies signature and expiry and returns the subject.
// Every failure mode (bad signature, expired, missing subject) collapses into
// common.ErrInvalidToken so callers cannot distinguish forged from expired.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secretKey, nil
	})
	if err != nil {
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
