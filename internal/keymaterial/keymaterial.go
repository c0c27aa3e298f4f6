// Package keymaterial loads the key material a caller supplies to an
// encrypted MAUS/MAUZ container: a password, a raw key file, or an RSA
// private/public key pair in PEM form. This is audit-critical code —
// changes here directly affect which key ends up driving PBKDF2/AES.
package keymaterial

import (
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"os"

	cerrors "mauz/internal/errors"
)

// Password wraps a caller-supplied password as raw UTF-8 bytes and zeros
// it on Close.
type Password struct {
	bytes  []byte
	closed bool
}

// NewPassword copies pw into owned storage.
func NewPassword(pw string) *Password {
	b := []byte(pw)
	return &Password{bytes: b}
}

// Bytes returns the password's UTF-8 bytes. Do not retain past Close.
func (p *Password) Bytes() []byte { return p.bytes }

// Close securely zeros the password bytes.
func (p *Password) Close() {
	if p == nil || p.closed {
		return
	}
	secureZero(p.bytes)
	p.bytes = nil
	p.closed = true
}

func secureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// LoadRawKey reads an exact-length binary key from path, used with
// Container.SetKey/WriteConfig.RawKey to bypass PBKDF2 entirely.
func LoadRawKey(path string, wantLen int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Wrap(err, "read key file")
	}
	if len(data) != wantLen {
		return nil, cerrors.NewFormatError("key file length", cerrors.ErrInvalidData)
	}
	return data, nil
}

// LoadRSAPrivateKey parses a PEM-encoded PKCS#1 or PKCS#8 RSA private key
// from path.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Wrap(err, "read rsa private key")
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, cerrors.NewFormatError("rsa private key pem", cerrors.ErrInvalidData)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, cerrors.NewFormatError("rsa private key", cerrors.ErrInvalidData)
	}
	key, ok := generic.(*rsa.PrivateKey)
	if !ok {
		return nil, cerrors.NewFormatError("rsa private key (not RSA)", cerrors.ErrInvalidData)
	}
	return key, nil
}

// LoadRSAPublicKey parses a PEM-encoded PKIX RSA public key from path,
// used to wrap a content key for an encrypted container's `RSAk` option.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Wrap(err, "read rsa public key")
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, cerrors.NewFormatError("rsa public key pem", cerrors.ErrInvalidData)
	}
	generic, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, cerrors.NewFormatError("rsa public key", cerrors.ErrInvalidData)
	}
	key, ok := generic.(*rsa.PublicKey)
	if !ok {
		return nil, cerrors.NewFormatError("rsa public key (not RSA)", cerrors.ErrInvalidData)
	}
	return key, nil
}
