package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the recipient profile in an HS256 bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Role      string `json:"role,omitempty"`
}

type JWTValidator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTValidator(secret, issuer string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTValidator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

func (v *JWTValidator) Validate(_ context.Context, token string) (Identity, bool) {
	claims, err := v.Parse(token)
	if err != nil {
		return Identity{}, false
	}
	subject := claims.Subject
	if subject == "" {
		subject = claims.Name
	}
	if subject == "" {
		return Identity{}, false
	}
	return Identity{Subject: subject, Roles: splitRoles(claims.Role)}, true
}

func (v *JWTValidator) Parse(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("parse bearer token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid bearer token")
	}
	return claims, nil
}

// Issue signs a token for the claims, expiring after ttl.
func (v *JWTValidator) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}
	now := v.now().UTC()
	expiresAt := now.Add(ttl).Truncate(time.Second)
	claims.Issuer = v.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	if claims.Subject == "" {
		claims.Subject = claims.Name
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign bearer token: %w", err)
	}
	return signed, expiresAt, nil
}
