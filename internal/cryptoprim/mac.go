package cryptoprim

import (
	"crypto/hmac"
	"crypto/subtle"
	"hash"
)

// HMAC computes HMAC(hashFn, key, data).
func HMAC(hashFn HashFunc, key, data []byte) ([]byte, error) {
	newHasher := func() hash.Hash {
		h, err := hashFn.New()
		if err != nil {
			panic(err)
		}
		return h
	}
	mac := hmac.New(newHasher, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

// ConstantTimeEqual compares two byte slices in constant time, used for
// every tag comparison in the engine (HMAC verification, payload hash
// check).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
