package credential

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() *domain.Credentials {
	return &domain.Credentials{
		AccessToken:  "ya29.token",
		RefreshToken: "1//refresh",
		TokenURI:     "https://oauth2.googleapis.com/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{"openid", "https://www.googleapis.com/auth/gmail.send"},
		Expiry:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func newTestSealer(t *testing.T, fill byte) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{fill}, keySize))
	require.NoError(t, err)
	return s
}

func TestSealRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSealer(t, 1)
	sealed, err := s.Seal(testCreds())
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "ya29.token")

	got, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", got.AccessToken)
	assert.Equal(t, "1//refresh", got.RefreshToken)
	assert.Equal(t, testCreds().Scopes, got.Scopes)
	assert.True(t, got.Expiry.Equal(testCreds().Expiry))
}

func TestSealUsesFreshNonce(t *testing.T) {
	t.Parallel()

	s := newTestSealer(t, 1)
	a, err := s.Seal(testCreds())
	require.NoError(t, err)
	b, err := s.Seal(testCreds())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	t.Parallel()

	sealed, err := newTestSealer(t, 1).Seal(testCreds())
	require.NoError(t, err)

	_, err = newTestSealer(t, 2).Open(sealed)
	require.Error(t, err)
	assert.Equal(t, shared.KindStore, shared.KindOf(err))
}

func TestOpenRejectsTamperedAndTruncatedData(t *testing.T) {
	t.Parallel()

	s := newTestSealer(t, 1)
	sealed, err := s.Seal(testCreds())
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = s.Open(tampered)
	assert.Error(t, err)

	_, err = s.Open(sealed[:4])
	assert.ErrorIs(t, err, errTruncated)
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	t.Parallel()

	_, err := NewSealer([]byte("short"))
	assert.ErrorIs(t, err, errKeySize)
}

func TestLoadKeyFromEnv(t *testing.T) {
	t.Parallel()

	want := bytes.Repeat([]byte{7}, keySize)
	got, err := LoadKey(KeySource{EnvKey: base64.StdEncoding.EncodeToString(want)})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = LoadKey(KeySource{EnvKey: base64.StdEncoding.EncodeToString([]byte("too short"))})
	assert.ErrorIs(t, err, errKeySize)
}

func TestLoadKeyGeneratesAndReusesFileKeyringKey(t *testing.T) {
	t.Parallel()

	src := KeySource{KeyringDir: t.TempDir(), KeyringPassword: "test-password", FileOnly: true}

	first, err := LoadKey(src)
	require.NoError(t, err)
	require.Len(t, first, keySize)

	second, err := LoadKey(src)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
