package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrEmptyToken is returned for a blank bearer token.
	ErrEmptyToken = errors.New("auth: empty token")
	// ErrEmptySecret is returned when no signing secret is configured.
	ErrEmptySecret = errors.New("auth: empty secret")
	// ErrInvalidRole is returned when the role claim is unknown.
	ErrInvalidRole = errors.New("auth: invalid role")
)

// Claims are the token claims accepted by the API.
type Claims struct {
	Workspace string `json:"workspace,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// ParseJWT validates an HS256 token and returns its claims. Expiry is
// enforced by the parser when the exp claim is present.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, ErrInvalidRole
	}
	return claims, nil
}

// IssueToken signs a token, used by the CLI to mint local credentials.
func IssueToken(secret []byte, claims Claims) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return "", ErrInvalidRole
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
