package cryptoprim

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	cerrors "mauz/internal/errors"
)

// RSAOAEPWrap wraps keyMaterial (typically the entry's content key) under
// pub using RSA-OAEP with SHA-256, producing the `RSAk` option blob.
func RSAOAEPWrap(pub *rsa.PublicKey, keyMaterial []byte) ([]byte, error) {
	blob, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, keyMaterial, nil)
	if err != nil {
		return nil, cerrors.NewCryptoError("rsa-oaep-wrap", err)
	}
	return blob, nil
}

// RSAOAEPUnwrap reverses RSAOAEPWrap using the caller-supplied private
// key. A decryption failure here (wrong key) surfaces as ErrCrypto, per
// §7 ("recoverable by supplying correct keys").
func RSAOAEPUnwrap(priv *rsa.PrivateKey, blob []byte) ([]byte, error) {
	keyMaterial, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, blob, nil)
	if err != nil {
		return nil, cerrors.NewCryptoError("rsa-oaep-unwrap", err)
	}
	return keyMaterial, nil
}

// RSASign produces a PKCS#1 v1.5 signature over the SHA-256 digest of
// data, for the `RSAsch` option.
func RSASign(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, cerrors.NewCryptoError("rsa-sign", err)
	}
	return sig, nil
}

// RSAVerify verifies a signature produced by RSASign. A mismatch is
// surfaced as ErrCrypto (§7: "recoverable by supplying correct keys").
func RSAVerify(pub *rsa.PublicKey, data, sig []byte) error {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return cerrors.NewCryptoError("rsa-verify", err)
	}
	return nil
}

