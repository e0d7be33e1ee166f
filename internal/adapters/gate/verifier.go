package gate

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

// TokenVerifier checks the bearer credential presented at handshake time.
// Tokens are HS256-signed; the subject claim carries the user id.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Verify returns the credential's subject. Absence, malformation, a bad
// signature, a wrong issuer or an elapsed expiry all refuse the connection.
func (v *TokenVerifier) Verify(credential string) (domain.UserID, error) {
	if credential == "" {
		return "", core.ErrNoCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", core.ErrInvalidCredential
	}
	if claims.Subject == "" {
		return "", core.ErrInvalidCredential
	}
	return domain.UserID(claims.Subject), nil
}

// Mint issues a token for the given user. Used by the dev tooling and tests;
// production credentials come from the account service.
func Mint(secret, issuer string, user domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
