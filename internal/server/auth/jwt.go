// Package auth implements JWT generation and verification for the two token
// kinds the service issues: short-lived access tokens and refresh tokens
// bound to a server-side session.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Token type values carried in the claims, so an access token can never be
// redeemed on the refresh path or vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims includes the standard registered claims plus the identity fields and
// the token type. SessionID is set only on refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	SessionID string `json:"sid,omitempty"`
}

func generate(claims Claims, secretKey []byte, validity time.Duration) (string, error) {
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validity))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// GenerateAccessToken mints a signed access token for the given identity.
func GenerateAccessToken(userID, email string, secretKey []byte, validity time.Duration) (string, error) {
	return generate(Claims{
		UserID:    userID,
		Email:     email,
		TokenType: TokenTypeAccess,
	}, secretKey, validity)
}

// GenerateRefreshToken mints a signed refresh token carrying the session id
// it can be redeemed against.
func GenerateRefreshToken(userID, email, sessionID string, secretKey []byte, validity time.Duration) (string, error) {
	return generate(Claims{
		UserID:    userID,
		Email:     email,
		TokenType: TokenTypeRefresh,
		SessionID: sessionID,
	}, secretKey, validity)
}

// ParseToken verifies the signature and expiry of tokenString and returns its
// claims. Any verification failure maps to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Join(common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// ParseTokenOfType is ParseToken plus a check that the token carries the
// expected type claim.
func ParseTokenOfType(tokenString, tokenType string, secretKey []byte) (*Claims, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
