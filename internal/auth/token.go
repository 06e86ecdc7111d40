package auth

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// EnvSecret names the environment variable holding the HMAC signing key.
	EnvSecret = "DIPDIVE_AUTH_SECRET"

	defaultIssuer = "dipdive"
	defaultTTL    = 30 * time.Minute
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the token payload. Subject carries the account id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type IssuerOption func(*TokenIssuer)

func WithIssuer(name string) IssuerOption {
	return func(t *TokenIssuer) { t.issuer = name }
}

func WithTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) { t.ttl = ttl }
}

func WithClock(fn func() time.Time) IssuerOption {
	return func(t *TokenIssuer) { t.now = fn }
}

func NewTokenIssuer(secret []byte, opts ...IssuerOption) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: signing secret too short")
	}
	t := &TokenIssuer{
		secret: secret,
		issuer: defaultIssuer,
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

var (
	envIssuer     *TokenIssuer
	envIssuerErr  error
	envIssuerOnce sync.Once
)

// IssuerFromEnv builds a process-wide issuer from DIPDIVE_AUTH_SECRET.
func IssuerFromEnv() (*TokenIssuer, error) {
	envIssuerOnce.Do(func() {
		secret := os.Getenv(EnvSecret)
		if secret == "" {
			envIssuerErr = fmt.Errorf("auth: %s is not set", EnvSecret)
			return
		}
		envIssuer, envIssuerErr = NewTokenIssuer([]byte(secret))
	})
	return envIssuer, envIssuerErr
}

// GenerateToken signs a token for the account. The returned expiry is the
// absolute deadline embedded in the claims.
func (t *TokenIssuer) GenerateToken(accountID, email string) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseAndValidate verifies the signature and the time-based claims.
func (t *TokenIssuer) ParseAndValidate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
