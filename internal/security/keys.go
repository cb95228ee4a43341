package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// minSecretLen is the shortest HMAC secret accepted.
const minSecretLen = 32

// Key is what provider tokens are verified (and optionally signed) with: an HS256 secret,
// or an RSA/ECDSA key for RS256/ES256.
type Key struct {
	method jwt.SigningMethod
	verify any
	sign   any
}

// HMACKey returns an HS256 key. The secret must be at least 32 bytes.
func HMACKey(secret string) (Key, error) {
	if len(secret) < minSecretLen {
		return Key{}, ErrInvalidKey
	}
	b := []byte(secret)
	return Key{method: jwt.SigningMethodHS256, verify: b, sign: b}, nil
}

// PublicKey returns a verify-only key from a PEM public key. s may be inline PEM or a file path.
func PublicKey(s string) (Key, error) {
	block, err := decodePEM(s)
	if err != nil {
		return Key{}, err
	}
	var pub any
	switch block.Type {
	case "RSA PUBLIC KEY":
		pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		pub, err = x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return Key{}, ErrInvalidKey
	}
	if err != nil {
		return Key{}, err
	}
	method := methodFor(pub)
	if method == nil {
		return Key{}, ErrInvalidKey
	}
	return Key{method: method, verify: pub}, nil
}

// PrivateKey returns a signing key from a PEM private key (PKCS#1, PKCS#8 or SEC 1).
func PrivateKey(s string) (Key, error) {
	block, err := decodePEM(s)
	if err != nil {
		return Key{}, err
	}
	var signer crypto.Signer
	switch block.Type {
	case "RSA PRIVATE KEY":
		signer, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		signer, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var k any
		k, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			var ok bool
			if signer, ok = k.(crypto.Signer); !ok {
				return Key{}, ErrInvalidKey
			}
		}
	default:
		return Key{}, ErrInvalidKey
	}
	if err != nil {
		return Key{}, err
	}
	method := methodFor(signer.Public())
	if method == nil {
		return Key{}, ErrInvalidKey
	}
	return Key{method: method, verify: signer.Public(), sign: signer}, nil
}

// Alg is the JWT alg of the key, or "" for the zero Key.
func (k Key) Alg() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// CanSign reports whether the key can issue tokens.
func (k Key) CanSign() bool {
	return k.sign != nil
}

// LoadPEM returns s when it is inline PEM (literal "\n" sequences become newlines); otherwise it reads the file at s.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

func decodePEM(s string) (*pem.Block, error) {
	b, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}

func methodFor(pub any) jwt.SigningMethod {
	switch pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		return jwt.SigningMethodES256
	default:
		return nil
	}
}
