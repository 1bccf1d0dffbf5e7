package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"quizroom-service/internal/domain"
)

// ErrInvalidCredential is returned for any credential that does not map to a
// stable identity.
var ErrInvalidCredential = errors.New("invalid credential")

// Verifier maps an opaque credential to a verified identity. It is consulted
// exactly once, at connection-accept time; identities are never re-verified
// mid-session.
type Verifier interface {
	Verify(credential string) (domain.Identity, error)
}

// JWTVerifier validates HS256 bearer tokens. Claims: sub (user id, required),
// name and avatar (optional).
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(credential string) (domain.Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidCredential
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.Identity{}, ErrInvalidCredential
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = sub
	}
	avatar, _ := claims["avatar"].(string)

	return domain.Identity{UserID: sub, DisplayName: name, Avatar: avatar}, nil
}

// InsecureVerifier treats the credential itself as the user id. Demo and test
// wiring only, used when no auth secret is configured.
type InsecureVerifier struct{}

func (InsecureVerifier) Verify(credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, ErrInvalidCredential
	}
	return domain.Identity{UserID: credential, DisplayName: credential}, nil
}
