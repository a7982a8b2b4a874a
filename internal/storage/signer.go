// Package storage holds media objects and issues time-limited signed access to them.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operation is what a signed grant allows.
type Operation string

const (
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
)

// ErrInvalidGrant is returned for tokens that are malformed, expired, or bound
// to a different key or operation.
var ErrInvalidGrant = errors.New("invalid storage grant")

// Grant is the verified content of a signed storage token.
type Grant struct {
	Key         string
	Op          Operation
	ContentType string
	MaxBytes    int64
	ExpiresAt   time.Time
}

type grantClaims struct {
	Op          Operation `json:"op"`
	ContentType string    `json:"ct,omitempty"`
	MaxBytes    int64     `json:"max,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints and checks HMAC-signed storage grants.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer using secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Sign issues a token for g that expires after ttl.
func (s *Signer) Sign(g Grant, ttl time.Duration) (string, time.Time, error) {
	if g.Key == "" {
		return "", time.Time{}, fmt.Errorf("sign grant: empty key")
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := grantClaims{
		Op:          g.Op,
		ContentType: g.ContentType,
		MaxBytes:    g.MaxBytes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   g.Key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign grant: %w", err)
	}
	return signed, exp, nil
}

// Verify checks token and that it grants op on key.
func (s *Signer) Verify(token, key string, op Operation) (*Grant, error) {
	claims := &grantClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidGrant
	}
	if claims.Subject != key || claims.Op != op {
		return nil, ErrInvalidGrant
	}
	g := &Grant{
		Key:         claims.Subject,
		Op:          claims.Op,
		ContentType: claims.ContentType,
		MaxBytes:    claims.MaxBytes,
	}
	if claims.ExpiresAt != nil {
		g.ExpiresAt = claims.ExpiresAt.Time
	}
	return g, nil
}
