// README: HS256 bearer-token verifier used when Firebase auth is not configured.
package infra

import (
	"context"
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) VerifyIDToken(_ context.Context, raw string) (*AuthToken, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	tok, err := jwt.ParseWithClaims(raw, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*jwtClaims)
	if !ok || !tok.Valid || c.Subject == "" {
		return nil, errors.New("invalid token")
	}
	claims := map[string]interface{}{"role": c.Role}
	if c.Name != "" {
		claims["name"] = c.Name
	}
	return &AuthToken{UID: c.Subject, Claims: claims}, nil
}

// Sign issues a token for uid with the given role. Used by tooling and tests.
func (v *JWTVerifier) Sign(uid, role string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = uid
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{Role: role, RegisteredClaims: claims}).SignedString(v.secret)
}
