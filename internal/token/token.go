// Package token issues and verifies the short-lived access tokens embedded
// into full host boot disks.
//
// Tokens are HS256 signed JWTs. They are self-contained: nothing is stored on
// the server and a token stays valid until it expires or the signing key
// changes.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Scope is the only scope a boot disk token is ever issued for.
const Scope = "bootdisk"

const MinKeySize = 32

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenMalformed = errors.New("token malformed")
)

// Error describes why a token was rejected. Use errors.Is with one of
// ErrTokenExpired, ErrTokenInvalid or ErrTokenMalformed to tell the cases
// apart.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

type claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

type Codec struct {
	key   []byte
	ttl   time.Duration
	clock func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *Codec) {
		c.clock = clock
	}
}

func New(key []byte, ttl time.Duration, opts ...Option) (*Codec, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeySize, len(key))
	}
	// exp and iat only have second precision
	if ttl < time.Second {
		return nil, fmt.Errorf("token lifetime must be at least one second, got %s", ttl)
	}
	c := &Codec{
		key:   append([]byte(nil), key...),
		ttl:   ttl,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateKey returns a fresh random signing key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, MinKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("error generating signing key: %v", err)
	}
	return key, nil
}

// LoadKey reads a signing key from path. The file content is used verbatim.
func LoadKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading signing key: %v", err)
	}
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("signing key %s is too short: %d bytes, need at least %d", path, len(key), MinKeySize)
	}
	return key, nil
}

// Expiry returns the expiry a token issued right now would carry.
func (c *Codec) Expiry() time.Time {
	return jwt.NewNumericDate(c.clock().Add(c.ttl)).Time
}

// Issue returns a new token for subject and its expiry.
func (c *Codec) Issue(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject must not be empty")
	}
	now := c.clock()
	cl := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.New().String(),
		},
		Scope: Scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %v", err)
	}
	return signed, cl.ExpiresAt.Time, nil
}

// Verify checks raw and returns its subject.
func (c *Codec) Verify(raw string) (string, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return "", &Error{Kind: ErrTokenMalformed, Reason: "expected three segments"}
	}

	// Compare the encoded signature instead of the decoded bytes so that
	// every altered character is caught, including unused trailing bits.
	want, err := jwt.SigningMethodHS256.Sign(parts[0]+"."+parts[1], c.key)
	if err != nil {
		return "", fmt.Errorf("error computing signature: %v", err)
	}
	if !hmac.Equal([]byte(want), []byte(parts[2])) {
		return "", &Error{Kind: ErrTokenInvalid, Reason: "signature mismatch"}
	}

	var cl claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	t, _, err := parser.ParseUnverified(raw, &cl)
	if err != nil {
		return "", &Error{Kind: ErrTokenMalformed, Reason: err.Error()}
	}
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return "", &Error{Kind: ErrTokenInvalid, Reason: "unexpected signing method " + t.Method.Alg()}
	}
	if cl.Subject == "" || cl.IssuedAt == nil || cl.ExpiresAt == nil {
		return "", &Error{Kind: ErrTokenMalformed, Reason: "missing claims"}
	}
	if !cl.ExpiresAt.After(cl.IssuedAt.Time) {
		return "", &Error{Kind: ErrTokenMalformed, Reason: "expiry before issue time"}
	}
	if cl.Scope != Scope {
		return "", &Error{Kind: ErrTokenInvalid, Reason: fmt.Sprintf("scope %q", cl.Scope)}
	}
	if c.clock().After(cl.ExpiresAt.Time) {
		return "", &Error{Kind: ErrTokenExpired, Reason: "expired at " + cl.ExpiresAt.UTC().Format(time.RFC3339)}
	}
	return cl.Subject, nil
}

// Suffix formats an expiry for use in file names, e.g. _20240131_1745.
func Suffix(exp time.Time) string {
	return "_" + exp.UTC().Format("20060102_1504")
}
