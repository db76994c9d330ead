// Package tokencodec encrypts the bearer credential stored in the client cookie jar.
//
// The format is the OpenSSL "Salted__" envelope produced by passphrase-based AES
// in browser crypto libraries: base64("Salted__" | salt[8] | AES-256-CBC(PKCS#7)),
// with key and IV derived by EVP_BytesToKey(MD5). It offers confidentiality of the
// cookie at rest only; there is no authentication tag.
package tokencodec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nkkko/lista/pkg/proto"
)

var (
	// ErrMalformed is returned when a ciphertext cannot be decoded
	ErrMalformed = errors.New("tokencodec: malformed ciphertext")

	// ErrEmptySecret is returned when encoding an empty credential
	ErrEmptySecret = errors.New("tokencodec: empty secret")

	// ErrInvalidSecret is returned when encoding a credential that is not valid UTF-8
	ErrInvalidSecret = errors.New("tokencodec: secret is not valid UTF-8")

	// ErrNotJWT is returned when a decoded credential is not a three-segment JWT
	ErrNotJWT = errors.New("tokencodec: credential is not a JWT")
)

const (
	saltHeader = "Salted__"
	saltLen    = 8
	keyLen     = 32
)

// DevPassphrase is used when no key is configured. It is public and
// only suitable for local development.
const DevPassphrase = "lista-dev-token-key"

// Codec encodes and decodes credentials with a fixed passphrase
type Codec struct {
	passphrase []byte
	random     io.Reader
}

// New creates a codec for the given passphrase
func New(passphrase string) (*Codec, error) {
	if passphrase == "" {
		return nil, errors.New("tokencodec: empty passphrase")
	}
	return &Codec{passphrase: []byte(passphrase), random: rand.Reader}, nil
}

// Encode encrypts a credential. Decode only accepts UTF-8 text, so Encode
// refuses anything else.
func (c *Codec) Encode(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if !utf8.ValidString(secret) {
		return "", ErrInvalidSecret
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return "", fmt.Errorf("tokencodec: read salt: %w", err)
	}

	key, iv := deriveKeyIV(c.passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("tokencodec: %w", err)
	}

	plain := pad([]byte(secret), aes.BlockSize)
	out := make([]byte, len(saltHeader)+saltLen+len(plain))
	copy(out, saltHeader)
	copy(out[len(saltHeader):], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(saltHeader)+saltLen:], plain)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decode decrypts a credential. Any malformed input yields ErrMalformed.
func (c *Codec) Decode(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", ErrMalformed
	}

	headerLen := len(saltHeader) + saltLen
	if len(raw) < headerLen+aes.BlockSize || !bytes.HasPrefix(raw, []byte(saltHeader)) {
		return "", ErrMalformed
	}
	body := raw[headerLen:]
	if len(body)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}

	key, iv := deriveKeyIV(c.passphrase, raw[len(saltHeader):headerLen])
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrMalformed
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, ok := unpad(plain, aes.BlockSize)
	if !ok || len(plain) == 0 || !utf8.Valid(plain) {
		return "", ErrMalformed
	}

	return string(plain), nil
}

// DecodeJWT decrypts a credential and checks that it is a well-formed JWT.
// The signature is not verified; that is the content API's job.
func (c *Codec) DecodeJWT(ciphertext string) (string, *Claims, error) {
	token, err := c.Decode(ciphertext)
	if err != nil {
		return "", nil, err
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Claims are the fields the client reads from the bearer token
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	// CMS JWT plugins nest the user under data.user
	Data struct {
		User struct {
			Id proto.ID `json:"id"`
		} `json:"user"`
	} `json:"data"`
}

// UserID returns the local actor id carried by the token
func (c *Claims) UserID() proto.ID {
	if !c.Data.User.Id.IsZero() {
		return c.Data.User.Id
	}
	id, err := proto.ParseID(c.Subject)
	if err != nil {
		return 0
	}
	return id
}

// ParseClaims reads the claims of a JWT without verifying its signature
func ParseClaims(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrNotJWT
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}
	return claims, nil
}

// deriveKeyIV implements OpenSSL EVP_BytesToKey with MD5 and one iteration
func deriveKeyIV(passphrase, salt []byte) ([]byte, []byte) {
	var (
		derived []byte
		prev    []byte
	)
	for len(derived) < keyLen+aes.BlockSize {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+aes.BlockSize]
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
