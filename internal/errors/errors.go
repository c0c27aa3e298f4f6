// Package errors provides the typed error surface for the MAUS/MAUZ
// container engine. Callers use errors.Is()/errors.As() against the
// sentinels below rather than matching on error strings.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors corresponding to the container engine's error-code
// surface. Wrap one of these with fmt.Errorf("...: %w", ...) or one of
// the typed errors below to attach context.
var (
	// ErrInvalidData covers malformed magic, out-of-range version, bad
	// option framing, and any other structurally invalid input.
	ErrInvalidData = errors.New("invalid container data")

	// ErrUnsupported covers unknown option keywords, unsupported
	// versions, and unsupported compression/encryption/hash formats.
	ErrUnsupported = errors.New("unsupported format")

	// ErrBadKey is returned when HMAC verification of decrypted
	// plaintext fails. Recoverable: the caller may set a different
	// password/key and retry Decrypt.
	ErrBadKey = errors.New("incorrect key or tampered ciphertext")

	// ErrChecksumMismatch is returned when the unencrypted payload hash
	// does not match the stored tag. Fatal - the container is corrupt.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrTruncated is returned on any short read of a length-prefixed
	// field or a fixed-size record.
	ErrTruncated = errors.New("truncated input")

	// ErrPathConflict covers every path-arbiter rejection: duplicate
	// path, file covered by an existing file/directory prefix, or a
	// directory that would not be empty.
	ErrPathConflict = errors.New("path conflict")

	// ErrInvalidState is returned when an operation is attempted outside
	// the state it is valid in (e.g. writing to a read-mode container).
	ErrInvalidState = errors.New("invalid container state")

	// ErrIO wraps failures from the underlying byte stream that are not
	// otherwise classified.
	ErrIO = errors.New("container i/o error")

	// ErrCrypto covers primitive failures that are not a key/tamper
	// verdict: RSA unwrap with the wrong key, signature verification
	// mismatch, RNG failure.
	ErrCrypto = errors.New("cryptographic operation failed")
)

// FormatError describes a structural decode failure at a specific field.
type FormatError struct {
	Field string // e.g. "magic", "version", "option keyword"
	Err   error  // one of the sentinels above, or a wrapped detail
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: invalid", e.Field)
}

func (e *FormatError) Unwrap() error { return e.Err }

// NewFormatError builds a FormatError rooted at ErrInvalidData unless err
// already wraps a more specific sentinel.
func NewFormatError(field string, err error) *FormatError {
	for _, s := range []error{ErrInvalidData, ErrUnsupported, ErrBadKey, ErrChecksumMismatch, ErrTruncated, ErrPathConflict, ErrInvalidState, ErrIO, ErrCrypto} {
		if errors.Is(err, s) {
			return &FormatError{Field: field, Err: err}
		}
	}
	if err == nil {
		return &FormatError{Field: field, Err: ErrInvalidData}
	}
	return &FormatError{Field: field, Err: fmt.Errorf("%w: %v", ErrInvalidData, err)}
}

// StateError describes an operation attempted in the wrong lifecycle state.
type StateError struct {
	Op    string // operation attempted, e.g. "AddFile"
	State string // current state, e.g. "Closed"
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// NewStateError builds a StateError.
func NewStateError(op, state string) *StateError {
	return &StateError{Op: op, State: state}
}

// PathError describes a rejected path-arbiter operation.
type PathError struct {
	Path   string
	Reason string // "exists", "covered-by-file", "non-empty-directory", "invalid-segment", "reserved"
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: %s", e.Path, e.Reason)
}

func (e *PathError) Unwrap() error { return ErrPathConflict }

// NewPathError builds a PathError.
func NewPathError(path, reason string) *PathError {
	return &PathError{Path: path, Reason: reason}
}

// CryptoError wraps a cryptographic primitive failure with the operation
// name that triggered it.
type CryptoError struct {
	Op  string // e.g. "pbkdf2", "aes-cbc-decrypt", "rsa-oaep-unwrap", "rsa-verify", "rand", "set-key"
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("crypto %s failed", e.Op)
}

func (e *CryptoError) Unwrap() error { return ErrCrypto }

// NewCryptoError builds a CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// Is reports whether err matches target, per errors.Is semantics.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain assignable to target.
func As(err error, target any) bool { return errors.As(err, target) }

// Wrap attaches a message to err, preserving the chain for errors.Is/As.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsRecoverable reports whether err represents a condition the caller can
// retry from (wrong password/key), as opposed to a fatal structural or
// checksum failure.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrBadKey) || errors.Is(err, ErrCrypto)
}
