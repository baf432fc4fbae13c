package tokenizer

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestTokenizer(t *testing.T, clock *fakeClock) *Tokenizer {
	t.Helper()
	tok, err := New(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return tok
}

func TestTokenizer_RoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)}
	tok := newTestTokenizer(t, clock)

	for _, c := range []struct{ number, expiry string }{
		{"4111111111111111", "12/28"},
		{"378282246310005", "03/2030"},
		{"6011111111111117", "01/27"},
	} {
		token, ciphertext, err := tok.Tokenize(c.number, c.expiry)
		require.NoError(t, err)

		payload, err := tok.Detokenize(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, c.number, payload.CardNumber)
		assert.Equal(t, c.expiry, payload.Expiry)
		assert.Equal(t, Token(ciphertext), token)
	}
}

func TestTokenizer_WireFormat(t *testing.T) {
	tok := newTestTokenizer(t, &fakeClock{now: time.Now()})

	token, ciphertext, err := tok.Tokenize("4111111111111111", "12/28")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), token)

	parts := strings.Split(ciphertext, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 32, "128-bit iv")
	assert.Len(t, parts[1], 32, "128-bit tag")
	assert.NotEmpty(t, parts[2])
	assert.NotContains(t, ciphertext, "4111111111111111")
}

func TestTokenizer_FreshMaterialPerCall(t *testing.T) {
	tok := newTestTokenizer(t, &fakeClock{now: time.Now()})

	t1, c1, err := tok.Tokenize("4111111111111111", "12/28")
	require.NoError(t, err)
	t2, c2, err := tok.Tokenize("4111111111111111", "12/28")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
	assert.NotEqual(t, t1, t2)
	assert.Equal(t, tok.Fingerprint("4111111111111111"), tok.Fingerprint("4111111111111111"))
	assert.NotEqual(t, tok.Fingerprint("4111111111111111"), tok.Fingerprint("5555555555554444"))
}

func TestTokenizer_Expired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)}
	tok := newTestTokenizer(t, clock)

	_, ciphertext, err := tok.Tokenize("4111111111111111", "12/28")
	require.NoError(t, err)

	clock.now = clock.now.Add(24 * time.Hour)
	_, err = tok.Detokenize(ciphertext)
	assert.NoError(t, err, "exactly at the TTL is still valid")

	clock.now = clock.now.Add(time.Second)
	_, err = tok.Detokenize(ciphertext)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenizer_Tampered(t *testing.T) {
	tok := newTestTokenizer(t, &fakeClock{now: time.Now()})

	_, ciphertext, err := tok.Tokenize("4111111111111111", "12/28")
	require.NoError(t, err)

	parts := strings.Split(ciphertext, ":")
	body := []byte(parts[2])
	if body[0] == 'a' {
		body[0] = 'b'
	} else {
		body[0] = 'a'
	}
	tampered := strings.Join([]string{parts[0], parts[1], string(body)}, ":")

	_, err = tok.Detokenize(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tok.Detokenize("not-a-ciphertext")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tok.Detokenize("zz:zz:zz")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other, err := New([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	_, err = other.Detokenize(ciphertext)
	assert.ErrorIs(t, err, ErrTokenInvalid, "wrong key")
}

func TestTokenizer_SealOpen(t *testing.T) {
	tok := newTestTokenizer(t, &fakeClock{now: time.Now()})

	blob, err := tok.Seal([]byte("000123456789"))
	require.NoError(t, err)
	plain, err := tok.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "000123456789", string(plain))
}

func TestNew_WeakSecret(t *testing.T) {
	_, err := New([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)
}
