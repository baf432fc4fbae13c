// Package tokenizer encrypts card data and derives opaque, indexable tokens.
//
// Ciphertext wire format is iv_hex:tag_hex:ciphertext_hex using AES-256-GCM with
// a 128-bit IV and a 128-bit tag. The token is the first 128 bits of the SHA-256
// of that serialized blob, hex encoded.
package tokenizer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	ivSize    = 16
	tagSize   = 16
	nonceSize = 16
	tokenLen  = 32

	// DefaultTTL bounds how long a ciphertext may be detokenized after issue.
	DefaultTTL = 24 * time.Hour

	hkdfSalt = "payment-lifecycle-engine/tokenizer"
	hkdfInfo = "card-data-v1"
)

var (
	ErrTokenInvalid = errors.New("token ciphertext failed authentication")
	ErrTokenExpired = errors.New("token has expired")
	ErrWeakSecret   = errors.New("tokenizer secret must be at least 32 bytes")
)

// CardPayload is the plaintext sealed into card ciphertext.
type CardPayload struct {
	CardNumber string    `json:"cardNumber"`
	Expiry     string    `json:"expiry"`
	IssuedAt   time.Time `json:"issuedAt"`
	Nonce      string    `json:"nonce"`
}

// Tokenizer is safe for concurrent use.
type Tokenizer struct {
	aead      cipher.AEAD
	fingerKey []byte
	ttl       time.Duration
	now       func() time.Time
	rand      io.Reader
}

// Option customizes a Tokenizer.
type Option func(*Tokenizer)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tokenizer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tokenizer) { t.now = now }
}

// New derives the AES-256 key and the fingerprint key from secret with HKDF-SHA256.
func New(secret []byte, opts ...Option) (*Tokenizer, error) {
	if len(secret) < keySize {
		return nil, ErrWeakSecret
	}
	keys := make([]byte, 2*keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, []byte(hkdfSalt), []byte(hkdfInfo)), keys); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(keys[:keySize])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	t := &Tokenizer{aead: aead, fingerKey: keys[keySize:], ttl: DefaultTTL, now: time.Now, rand: rand.Reader}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Tokenize seals the card number and expiry and returns the token and ciphertext.
func (t *Tokenizer) Tokenize(cardNumber, expiry string) (token, ciphertext string, err error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(t.rand, nonce); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	payload, err := json.Marshal(CardPayload{
		CardNumber: cardNumber,
		Expiry:     expiry,
		IssuedAt:   t.now().UTC(),
		Nonce:      hex.EncodeToString(nonce),
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal payload: %w", err)
	}

	ciphertext, err = t.Seal(payload)
	if err != nil {
		return "", "", err
	}
	return Token(ciphertext), ciphertext, nil
}

// Detokenize opens ciphertext and enforces the TTL.
func (t *Tokenizer) Detokenize(ciphertext string) (CardPayload, error) {
	plain, err := t.Open(ciphertext)
	if err != nil {
		return CardPayload{}, err
	}
	var payload CardPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return CardPayload{}, fmt.Errorf("%w: malformed payload", ErrTokenInvalid)
	}
	if t.now().Sub(payload.IssuedAt) > t.ttl {
		return CardPayload{}, ErrTokenExpired
	}
	return payload, nil
}

// Seal encrypts arbitrary plaintext into the iv:tag:ciphertext format.
func (t *Tokenizer) Seal(plaintext []byte) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(t.rand, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := t.aead.Seal(nil, iv, plaintext, nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(body),
	}, ":"), nil
}

// Open reverses Seal. Any parse or authentication failure is ErrTokenInvalid.
func (t *Tokenizer) Open(blob string) ([]byte, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected iv:tag:ciphertext", ErrTokenInvalid)
	}
	iv, err1 := hex.DecodeString(parts[0])
	tag, err2 := hex.DecodeString(parts[1])
	body, err3 := hex.DecodeString(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil || len(iv) != ivSize || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: malformed encoding", ErrTokenInvalid)
	}
	plain, err := t.aead.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return plain, nil
}

// Token derives the 32-character lowercase hex token for a ciphertext.
func Token(ciphertext string) string {
	sum := sha256.Sum256([]byte(ciphertext))
	return hex.EncodeToString(sum[:])[:tokenLen]
}

// Fingerprint is a stable keyed hash of a card number, used to de-duplicate payment methods.
func (t *Tokenizer) Fingerprint(cardNumber string) string {
	mac := hmac.New(sha256.New, t.fingerKey)
	mac.Write([]byte(cardNumber))
	return fmt.Sprintf("%x", mac.Sum(nil))
}
