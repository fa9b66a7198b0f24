package token_test

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-bootdisk/internal/token"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func newCodec(t *testing.T, ttl time.Duration) (*token.Codec, *clock) {
	clk := &clock{now: time.Date(2024, 1, 31, 17, 45, 12, 0, time.UTC)}
	c, err := token.New(testKey, ttl, token.WithClock(clk.Now))
	require.NoError(t, err)
	return c, clk
}

func TestNew(t *testing.T) {
	_, err := token.New([]byte("short"), time.Hour)
	require.Error(t, err)

	_, err = token.New(testKey, 500*time.Millisecond)
	require.Error(t, err)

	c, err := token.New(testKey, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestIssueVerify(t *testing.T) {
	for _, ttl := range []time.Duration{time.Second, time.Minute, 6 * time.Hour, 30 * 24 * time.Hour} {
		c, clk := newCodec(t, ttl)
		for _, subject := range []string{"1", "node1.example.com", "7c1f0a8e-5e0b-4c1d-9a54-0d1f2a3b4c5d"} {
			raw, exp, err := c.Issue(subject)
			require.NoError(t, err)
			require.Equal(t, clk.now.Add(ttl), exp)

			got, err := c.Verify(raw)
			require.NoError(t, err)
			require.Equal(t, subject, got)
		}
	}
}

func TestIssueEmptySubject(t *testing.T) {
	c, _ := newCodec(t, time.Hour)
	_, _, err := c.Issue("")
	require.Error(t, err)
}

func TestExpired(t *testing.T) {
	c, clk := newCodec(t, time.Hour)
	raw, _, err := c.Issue("node1")
	require.NoError(t, err)

	// still valid at the exact expiry
	clk.now = clk.now.Add(time.Hour)
	_, err = c.Verify(raw)
	require.NoError(t, err)

	clk.now = clk.now.Add(time.Second)
	_, err = c.Verify(raw)
	require.True(t, errors.Is(err, token.ErrTokenExpired), err)

	var tokenErr *token.Error
	require.True(t, errors.As(err, &tokenErr))
}

func TestAlteredByte(t *testing.T) {
	c, _ := newCodec(t, time.Hour)
	raw, _, err := c.Issue("node1")
	require.NoError(t, err)

	for i := range raw {
		if raw[i] == '.' {
			continue
		}
		replacement := byte('A')
		if raw[i] == 'A' {
			replacement = 'B'
		}
		altered := raw[:i] + string(replacement) + raw[i+1:]
		_, err := c.Verify(altered)
		require.Truef(t, errors.Is(err, token.ErrTokenInvalid), "byte %d: %v", i, err)
	}
}

func TestOtherKey(t *testing.T) {
	c, _ := newCodec(t, time.Hour)
	raw, _, err := c.Issue("node1")
	require.NoError(t, err)

	other, err := token.New([]byte("fedcba9876543210fedcba9876543210"), time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(raw)
	require.True(t, errors.Is(err, token.ErrTokenInvalid))
}

func TestMalformed(t *testing.T) {
	c, _ := newCodec(t, time.Hour)

	for _, raw := range []string{"", "abc", "a.b", "a.b.c.d"} {
		_, err := c.Verify(raw)
		assert.Truef(t, errors.Is(err, token.ErrTokenMalformed), "%q: %v", raw, err)
	}
}

// sign builds a correctly signed token with arbitrary claims.
func sign(t *testing.T, claims jwt.MapClaims) string {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)
	return raw
}

func TestSignedButMalformedClaims(t *testing.T) {
	c, clk := newCodec(t, time.Hour)
	now := clk.now.Unix()

	cases := map[string]jwt.MapClaims{
		"no subject":     {"iat": now, "exp": now + 60, "scope": token.Scope},
		"no iat":         {"sub": "node1", "exp": now + 60, "scope": token.Scope},
		"no exp":         {"sub": "node1", "iat": now, "scope": token.Scope},
		"exp before iat": {"sub": "node1", "iat": now, "exp": now - 60, "scope": token.Scope},
		"exp equals iat": {"sub": "node1", "iat": now, "exp": now, "scope": token.Scope},
		"string iat":     {"sub": "node1", "iat": "yesterday", "exp": now + 60, "scope": token.Scope},
	}
	for name, cl := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Verify(sign(t, cl))
			require.True(t, errors.Is(err, token.ErrTokenMalformed), err)
		})
	}

	t.Run("garbage payload", func(t *testing.T) {
		header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`not json`))
		sig, err := jwt.SigningMethodHS256.Sign(header+"."+payload, testKey)
		require.NoError(t, err)
		_, err = c.Verify(header + "." + payload + "." + sig)
		require.True(t, errors.Is(err, token.ErrTokenMalformed), err)
	})
}

func TestWrongScope(t *testing.T) {
	c, clk := newCodec(t, time.Hour)
	now := clk.now.Unix()

	_, err := c.Verify(sign(t, jwt.MapClaims{"sub": "node1", "iat": now, "exp": now + 60, "scope": "api"}))
	require.True(t, errors.Is(err, token.ErrTokenInvalid), err)
}

func TestExpiryTruncatedToSeconds(t *testing.T) {
	c, clk := newCodec(t, time.Minute)
	clk.now = clk.now.Add(750 * time.Millisecond)

	_, exp, err := c.Issue("node1")
	require.NoError(t, err)
	require.Equal(t, c.Expiry(), exp)
	require.Zero(t, exp.Nanosecond())
}

func TestSuffix(t *testing.T) {
	exp := time.Date(2024, 1, 31, 18, 45, 59, 0, time.FixedZone("CET", 3600))
	require.Equal(t, "_20240131_1745", token.Suffix(exp))
}

func TestKeys(t *testing.T) {
	key, err := token.GenerateKey()
	require.NoError(t, err)
	require.Len(t, key, token.MinKeySize)

	other, err := token.GenerateKey()
	require.NoError(t, err)
	require.NotEqual(t, key, other)

	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(path, key, 0600))
	loaded, err := token.LoadKey(path)
	require.NoError(t, err)
	require.Equal(t, key, loaded)

	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 8)), 0600))
	_, err = token.LoadKey(path)
	require.Error(t, err)

	_, err = token.LoadKey(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
