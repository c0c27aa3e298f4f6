package cryptoprim

import (
	"hash"

	"golang.org/x/crypto/pbkdf2"

	cerrors "mauz/internal/errors"
)

// BaseCycles is the constant added to the stored PBKDF2 cycle-count field
// to obtain the real iteration count (§4.2, §6). The field itself is
// therefore constrained to [0, MaxCycleField].
const BaseCycles = 9001

// MaxCycleField is the largest value the stored cycle-count field may
// hold: INT32_MAX - BaseCycles, per §4.2.
const MaxCycleField = int64(1<<31-1) - BaseCycles

// CyclesFromField converts a stored cycle-count field to the real PBKDF2
// iteration count, validating the field's range.
func CyclesFromField(field int64) (int, error) {
	if field < 0 || field > MaxCycleField {
		return 0, cerrors.NewFormatError("pbkdf2 cycle field", cerrors.ErrInvalidData)
	}
	return int(field + BaseCycles), nil
}

// FieldFromCycles converts a real PBKDF2 iteration count back to the
// stored field value.
func FieldFromCycles(cycles int) (int64, error) {
	field := int64(cycles) - BaseCycles
	if field < 0 || field > MaxCycleField {
		return 0, cerrors.NewFormatError("pbkdf2 cycle field", cerrors.ErrInvalidData)
	}
	return field, nil
}

// DeriveKey derives a key of keyLen bytes from password and salt using
// PBKDF2-HMAC with the given hash function and the real (already
// BaseCycles-adjusted) iteration count.
//
// CRITICAL: the hash function, cycle count, salt, and keyLen together are
// the entire key-derivation contract; changing any of them silently
// produces a different key for the same password.
func DeriveKey(hashFn HashFunc, password, salt []byte, cycles int, keyLen int) ([]byte, error) {
	if cycles <= 0 {
		return nil, cerrors.NewCryptoError("pbkdf2", cerrors.ErrInvalidData)
	}
	newHasher := func() hash.Hash {
		h, err := hashFn.New()
		if err != nil {
			// hashFn was validated by the caller before reaching here;
			// pbkdf2.Key has no error return, so panic is the only way
			// to surface a contract violation from inside its callback.
			panic(err)
		}
		return h
	}
	key := pbkdf2.Key(password, salt, cycles, keyLen, newHasher)

	zero := true
	for _, b := range key {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return nil, cerrors.NewCryptoError("pbkdf2", cerrors.ErrCrypto)
	}
	return key, nil
}
