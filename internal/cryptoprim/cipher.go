package cryptoprim

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"

	cerrors "mauz/internal/errors"
)

// BlockSize is the AES block size in bytes, fixed by §4.2/§6.
const BlockSize = aes.BlockSize // 16

// ValidKeyBits reports whether bits is one of the three supported AES key
// sizes (§4.2, §6).
func ValidKeyBits(bits int) bool {
	switch bits {
	case 128, 192, 256:
		return true
	default:
		return false
	}
}

// KeyBytes converts a supported key-size-in-bits value to bytes.
func KeyBytes(bits int) int { return bits / 8 }

// pkcs7Pad appends PKCS#7 padding so data becomes a multiple of
// BlockSize. If data is already block-aligned, a full block of padding
// is appended (standard PKCS#7 behavior, required so Unpad is
// unambiguous).
func pkcs7Pad(data []byte) []byte {
	padLen := BlockSize - len(data)%BlockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad removes PKCS#7 padding, validating the padding bytes.
func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, cerrors.NewCryptoError("aes-cbc-unpad", cerrors.ErrInvalidData)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > BlockSize || padLen > len(data) {
		return nil, cerrors.NewCryptoError("aes-cbc-unpad", cerrors.ErrInvalidData)
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, cerrors.NewCryptoError("aes-cbc-unpad", cerrors.ErrInvalidData)
	}
	return data[:len(data)-padLen], nil
}

// AESCBCEncrypt PKCS#7-pads plaintext and encrypts it under AES-CBC with
// the given key and IV. len(key) selects the AES variant (128/192/256);
// len(iv) must equal BlockSize.
func AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cerrors.NewCryptoError("aes-cbc-encrypt", err)
	}
	if len(iv) != BlockSize {
		return nil, cerrors.NewCryptoError("aes-cbc-encrypt", cerrors.ErrInvalidData)
	}
	padded := pkcs7Pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// AESCBCDecrypt decrypts ciphertext under AES-CBC and removes PKCS#7
// padding. Returns an error (classified as ErrCrypto) on malformed
// padding or a ciphertext that is not block-aligned; callers must not
// treat this as proof of a wrong key on its own — the HMAC verdict is
// authoritative (§4.5 step 7, §7).
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cerrors.NewCryptoError("aes-cbc-decrypt", err)
	}
	if len(iv) != BlockSize || len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, cerrors.NewCryptoError("aes-cbc-decrypt", cerrors.ErrInvalidData)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	return pkcs7Unpad(padded)
}
