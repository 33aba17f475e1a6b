package jwtx_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	exampleIssuer = "modelgate"
	secretA       = "alpha-secret-0123456789abcdef"
	secretB       = "bravo-secret-0123456789abcdef"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newManager(t *testing.T, clock *fakeClock, secrets ...jwtx.SecretSpec) *jwtx.KeyManager {
	t.Helper()
	if len(secrets) == 0 {
		secrets = []jwtx.SecretSpec{{KID: "k1", Secret: secretA}}
	}
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer:  exampleIssuer,
		Secrets: secrets,
		Now:     clock.Now,
	})
	require.NoError(t, err)
	return km
}

func TestHS256SignAndVerify(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, clock)

	claims := jwtx.NewAccessClaims("alice", []string{"predict", "model:read"}, time.Minute, exampleIssuer, clock.t)
	token, err := km.Signer.Sign(claims)
	require.NoError(t, err)
	require.Equal(t, "HS256", km.Signer.Alg())
	require.Equal(t, "k1", km.Signer.KID())

	got, err := km.Verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Subject)
	require.Equal(t, claims.ID, got.ID)
	require.ElementsMatch(t, claims.Scopes, got.Scopes)
}

func TestHS256Verify_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, clock)

	token, err := km.Signer.Sign(jwtx.NewAccessClaims("alice", nil, time.Minute, exampleIssuer, clock.t))
	require.NoError(t, err)

	clock.t = clock.t.Add(59 * time.Second)
	_, err = km.Verifier.Verify(token)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Second)
	_, err = km.Verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestHS256Verify_Rejections(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, clock)

	good, err := km.Signer.Sign(jwtx.NewAccessClaims("alice", nil, time.Minute, exampleIssuer, clock.t))
	require.NoError(t, err)
	parts := strings.Split(good, ".")

	other := newManager(t, clock, jwtx.SecretSpec{KID: "k1", Secret: secretB})
	foreign, err := other.Signer.Sign(jwtx.NewAccessClaims("alice", nil, time.Minute, exampleIssuer, clock.t))
	require.NoError(t, err)

	unknownKID := newManager(t, clock, jwtx.SecretSpec{KID: "k9", Secret: secretA})
	foreignKID, err := unknownKID.Signer.Sign(jwtx.NewAccessClaims("alice", nil, time.Minute, exampleIssuer, clock.t))
	require.NoError(t, err)

	wrongIssuer, err := km.Signer.Sign(jwtx.NewAccessClaims("alice", nil, time.Minute, "someone-else", clock.t))
	require.NoError(t, err)

	noneHeader := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","kid":"k1"}`))

	future, err := km.Signer.Sign(jwtx.NewAccessClaims("alice", nil, time.Minute, exampleIssuer, clock.t.Add(time.Minute)))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", jwtx.ErrMalformed},
		{"two segments", parts[0] + "." + parts[1], jwtx.ErrMalformed},
		{"garbage header", "!!!." + parts[1] + "." + parts[2], jwtx.ErrMalformed},
		{"signed with another secret", foreign, jwtx.ErrInvalidSig},
		{"unknown kid", foreignKID, jwtx.ErrUnknownKID},
		{"alg none", noneHeader + "." + parts[1] + "." + parts[2], jwtx.ErrAlgMismatch},
		{"tampered payload", parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"mallory"}`)) + "." + parts[2], jwtx.ErrInvalidSig},
		{"unreadable payload with bad mac", parts[0] + ".e30x." + parts[2], jwtx.ErrInvalidSig},
		{"wrong issuer", wrongIssuer, jwtx.ErrIssuer},
		{"issued in the future", future, jwtx.ErrNotYetValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := km.Verifier.Verify(tt.token)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHS256Verify_MissingSubject(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, clock)

	c := jwtx.NewAccessClaims("", nil, time.Minute, exampleIssuer, clock.t)
	token, err := km.Signer.Sign(c)
	require.NoError(t, err)

	_, err = km.Verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
}

func TestKeyRotation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}

	old := newManager(t, clock, jwtx.SecretSpec{KID: "2025", Secret: secretA})
	oldToken, err := old.Signer.Sign(jwtx.NewAccessClaims("alice", nil, time.Hour, exampleIssuer, clock.t))
	require.NoError(t, err)

	rotated := newManager(t, clock,
		jwtx.SecretSpec{KID: "2026", Secret: secretB},
		jwtx.SecretSpec{KID: "2025", Secret: secretA},
	)
	require.Equal(t, "2026", rotated.Signer.KID())

	_, err = rotated.Verifier.Verify(oldToken)
	require.NoError(t, err, "tokens from the retiring key stay valid")
}

func TestNewKeyManager_Validation(t *testing.T) {
	_, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Secrets: []jwtx.SecretSpec{{KID: "k1", Secret: secretA}}})
	require.Error(t, err, "issuer required")

	_, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer})
	require.Error(t, err, "secrets required")

	_, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer:  exampleIssuer,
		Secrets: []jwtx.SecretSpec{{KID: "k1", Secret: "short"}},
	})
	require.Error(t, err, "weak secret")

	_, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer:  exampleIssuer,
		Secrets: []jwtx.SecretSpec{{KID: "k1", Secret: secretA}, {KID: "k1", Secret: secretB}},
	})
	require.Error(t, err, "duplicate kid")
}

// Flipping any single byte of the signature segment must be reported as a
// signature failure, never as expiry or malformation.
func TestHS256Verify_SignatureTamperProperty(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, clock)

	rapid.Check(t, func(rt *rapid.T) {
		subject := rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "subject")
		token, err := km.Signer.Sign(jwtx.NewAccessClaims(subject, nil, time.Minute, exampleIssuer, clock.t))
		require.NoError(rt, err)

		parts := strings.Split(token, ".")
		sig, err := base64.RawURLEncoding.DecodeString(parts[2])
		require.NoError(rt, err)

		i := rapid.IntRange(0, len(sig)-1).Draw(rt, "byte")
		flip := byte(rapid.IntRange(1, 255).Draw(rt, "mask"))
		sig[i] ^= flip

		tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(sig)
		_, err = km.Verifier.Verify(tampered)
		require.ErrorIs(rt, err, jwtx.ErrInvalidSig)
		require.True(rt, jwtx.IsSignatureError(err))
	})
}

func TestHS256Verify_RoundTripProperty(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := &fakeClock{t: base}
	km := newManager(t, clock)

	rapid.Check(t, func(rt *rapid.T) {
		ttl := time.Duration(rapid.IntRange(1, 3600).Draw(rt, "ttl")) * time.Second
		elapsed := time.Duration(rapid.IntRange(0, 7200).Draw(rt, "elapsed")) * time.Second

		clock.t = base
		token, err := km.Signer.Sign(jwtx.NewAccessClaims("alice", nil, ttl, exampleIssuer, base))
		require.NoError(rt, err)

		clock.t = base.Add(elapsed)
		got, err := km.Verifier.Verify(token)
		if elapsed < ttl {
			require.NoError(rt, err)
			require.Equal(rt, "alice", got.Subject)
		} else {
			require.ErrorIs(rt, err, jwtx.ErrExpired)
		}
	})
}

var _ jwt.Claims = jwtx.Claims{}
