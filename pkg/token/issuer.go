package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/samlbridge/pkg/identity"
)

// DefaultTTL bounds issued tokens when no lifetime is configured.
const DefaultTTL = time.Hour

// minSecretLength rejects secrets too short to be a useful HMAC key.
const minSecretLength = 16

// SigningError reports a signing-key misconfiguration or a failure to
// produce a signature.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("token: signing failed: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// Claims is the claims set carried by issued tokens. Contents never exceed
// what the resolved user exposes.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the application-level credential handed to the
// downstream SPA after a successful login. Issue is a pure function of its
// inputs plus the clock.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithTTL overrides the default token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) { i.ttl = ttl }
}

// WithAudience sets the aud claim on issued tokens.
func WithAudience(aud string) Option {
	return func(i *Issuer) { i.audience = aud }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates a token issuer signing with the given HMAC secret.
func NewIssuer(secret, issuerName string, opts ...Option) (*Issuer, error) {
	if len(secret) < minSecretLength {
		return nil, &SigningError{Err: fmt.Errorf("secret must be at least %d bytes", minSecretLength)}
	}

	iss := &Issuer{
		secret: []byte(secret),
		issuer: issuerName,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}

	if iss.ttl <= 0 {
		return nil, &SigningError{Err: errors.New("token TTL must be positive")}
	}
	return iss, nil
}

// Issue signs a time-bounded token for the resolved user.
func (i *Issuer) Issue(user *identity.User) (string, error) {
	if user == nil {
		return "", &SigningError{Err: errors.New("user is required")}
	}

	now := i.now().UTC()
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.SubjectID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", &SigningError{Err: err}
	}
	return signed, nil
}

// Verify parses and validates a token previously produced by Issue.
// Accepted algorithms are restricted to HS256 so an attacker cannot swap
// in an asymmetric token and have the secret treated as a public key.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	}

	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("token: verification failed: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("token: invalid token")
	}
	return claims, nil
}
