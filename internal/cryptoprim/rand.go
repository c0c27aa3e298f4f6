// Package cryptoprim wraps the cryptographic primitives the MAUS/MAUZ
// codecs build on: PBKDF2 key derivation, AES-CBC, HMAC, hashing, RSA-OAEP
// key wrapping, and RNG. Nothing here is format-aware; internal/maus and
// internal/mauz drive these primitives according to the wire protocol.
package cryptoprim

import (
	"crypto/rand"

	cerrors "mauz/internal/errors"
)

// RandomBytes returns n cryptographically secure random bytes, used for
// salts and IVs. A run of all-zero bytes (astronomically unlikely) is
// treated as an RNG fault rather than silently accepted.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, cerrors.NewCryptoError("rand", err)
	}
	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero && n > 0 {
		return nil, cerrors.NewCryptoError("rand", cerrors.ErrCrypto)
	}
	return b, nil
}
