package cryptoprim

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/jzelinskie/whirlpool"
	"golang.org/x/crypto/sha3"

	cerrors "mauz/internal/errors"
)

// HashFunc identifies one of the hash functions §4.2 requires support for.
// The zero value is invalid; use one of the named constants.
type HashFunc uint8

const (
	SHA256 HashFunc = iota + 1
	SHA384
	SHA512
	SHA3_256
	SHA3_384
	SHA3_512
	Whirlpool
)

// Keyword is the option-list identifier string stored for this hash
// function (the `Hsh` option argument, §4.5).
func (h HashFunc) Keyword() string {
	switch h {
	case SHA256:
		return "SHA256"
	case SHA384:
		return "SHA384"
	case SHA512:
		return "SHA512"
	case SHA3_256:
		return "SHA3-256"
	case SHA3_384:
		return "SHA3-384"
	case SHA3_512:
		return "SHA3-512"
	case Whirlpool:
		return "WHIRLPOOL"
	default:
		return ""
	}
}

// HashFuncFromKeyword resolves a stored `Hsh` option argument back to a
// HashFunc. Returns ErrUnsupported for anything not recognized.
func HashFuncFromKeyword(s string) (HashFunc, error) {
	for _, h := range []HashFunc{SHA256, SHA384, SHA512, SHA3_256, SHA3_384, SHA3_512, Whirlpool} {
		if h.Keyword() == s {
			return h, nil
		}
	}
	return 0, cerrors.NewFormatError("hash function", cerrors.ErrUnsupported)
}

// New constructs a fresh hash.Hash for this function.
func (h HashFunc) New() (hash.Hash, error) {
	switch h {
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA3_256:
		return sha3.New256(), nil
	case SHA3_384:
		return sha3.New384(), nil
	case SHA3_512:
		return sha3.New512(), nil
	case Whirlpool:
		return whirlpool.New(), nil
	default:
		return nil, cerrors.NewFormatError("hash function", cerrors.ErrUnsupported)
	}
}

// Size returns the digest size in bytes, used to size the stored
// authentication tag / hash field.
func (h HashFunc) Size() int {
	switch h {
	case SHA256:
		return sha256.Size
	case SHA384:
		return sha512.Size384
	case SHA512:
		return sha512.Size
	case SHA3_256:
		return 32
	case SHA3_384:
		return 48
	case SHA3_512:
		return 64
	case Whirlpool:
		return whirlpool.Size
	default:
		return 0
	}
}

// Hash computes hash function h over data in one call.
func Hash(h HashFunc, data []byte) ([]byte, error) {
	hasher, err := h.New()
	if err != nil {
		return nil, err
	}
	hasher.Write(data)
	return hasher.Sum(nil), nil
}
