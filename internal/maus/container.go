// Package maus implements the MAUS single-entry container codec (§4.5):
// header and options parsing, the compress/encrypt/authenticate pipeline,
// and the read/write state machines. internal/mauz drives one maus
// Container per archive entry; the root package exposes the public
// Container/Entry API over both.
package maus

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"io"

	"mauz/internal/bufstream"
	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
	"mauz/internal/ioprim"
	"mauz/internal/log"
)

// Magic is the 4-byte MAUS header magic, written/read verbatim (§6,
// §8 scenario 1: "begins with 6D 41 75 53").
var Magic = [4]byte{'m', 'A', 'u', 'S'}

const (
	MinVersion     = 1
	CurrentVersion = 3
)

// State is the MAUS container lifecycle (§4.5, "State machine").
type State int

const (
	StateFresh State = iota
	StateHeaderParsed
	StateDecrypted
	StatePayloadRead
	StateWriting
	StateFinalized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "Fresh"
	case StateHeaderParsed:
		return "HeaderParsed"
	case StateDecrypted:
		return "Decrypted"
	case StatePayloadRead:
		return "PayloadRead"
	case StateWriting:
		return "Writing"
	case StateFinalized:
		return "Finalized"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Container is one MAUS stream, open for either reading or writing.
type Container struct {
	state State
	write bool

	Version   uint16
	Outer     *Options
	Inner     *Options
	Effective *Options

	compressedLength   int64
	uncompressedLength int64
	pbkdf2Cycles       int

	tag  []byte
	salt []byte
	iv   []byte

	rawPayload []byte // compressed payload bytes, pre-decompression
	ciphertext []byte // stored only until Decrypt() runs

	password []byte
	rawKey   []byte
	rsaPriv  *rsa.PrivateKey

	// write-mode state
	cfg            WriteConfig
	compressedStage *bufstream.Stream
	compWriter     compress.CompressWriter
	plainLen       int64
	out            io.Writer
}

// CompressedLength returns the header's declared compressed payload
// length, available once the header has been parsed.
func (c *Container) CompressedLength() int64 { return c.compressedLength }

// WriteConfig configures a container opened for writing.
type WriteConfig struct {
	Compression     compress.Format
	CompressionOpts compress.Options

	Encrypt      bool
	KeyBits      int
	Password     []byte
	RawKey       []byte
	RSAPub       *rsa.PublicKey
	PBKDF2Cycles int // real iteration count; 0 selects a sane default

	Hash cryptoprim.HashFunc

	Options  *Options // filename, comment, timestamps, signatures, etc.
	MoveTags OptionTag
}

const defaultPBKDF2Cycles = 200000

// maxPlausibleLength bounds compressed/uncompressed length fields read
// from an untrusted header (§4.5 step 3: "reject ... implausibly large
// values"). 256 TiB comfortably exceeds any real container while still
// catching corrupted/adversarial length fields.
const maxPlausibleLength = int64(256) << 40

// OpenRead parses a MAUS header from r. If skipMagic is true, the caller
// has already consumed and validated the 4-byte magic (used when MAUZ
// wraps a bare MAUS stream, §4.6 step 1).
func OpenRead(r io.Reader, skipMagic bool) (*Container, error) {
	if !skipMagic {
		var magic [4]byte
		if err := ioprim.ReadFull(r, magic[:]); err != nil {
			return nil, err
		}
		if magic != Magic {
			return nil, cerrors.NewFormatError("magic", cerrors.ErrInvalidData)
		}
	}

	version, err := ioprim.ReadUint16(r)
	if err != nil {
		return nil, err
	}
	if version < MinVersion || version > CurrentVersion {
		return nil, cerrors.NewFormatError("version", cerrors.ErrUnsupported)
	}

	outer, err := ParseOptions(r)
	if err != nil {
		return nil, err
	}
	if !outer.HasHash {
		return nil, cerrors.NewFormatError("missing hash function option", cerrors.ErrInvalidData)
	}

	compressedLength, err := ioprim.ReadInt64(r)
	if err != nil {
		return nil, err
	}
	if compressedLength <= 0 || compressedLength > maxPlausibleLength {
		return nil, cerrors.NewFormatError("compressed length", cerrors.ErrInvalidData)
	}

	c := &Container{
		state:            StateHeaderParsed,
		Version:          version,
		Outer:            outer,
		compressedLength: compressedLength,
	}

	if outer.HasAES {
		cycleField, err := ioprim.ReadInt64(r)
		if err != nil {
			return nil, err
		}
		cycles, err := cryptoprim.CyclesFromField(cycleField)
		if err != nil {
			return nil, err
		}
		c.pbkdf2Cycles = cycles
	} else {
		uncompressedLength, err := ioprim.ReadInt64(r)
		if err != nil {
			return nil, err
		}
		if uncompressedLength <= 0 || uncompressedLength > maxPlausibleLength {
			return nil, cerrors.NewFormatError("uncompressed length", cerrors.ErrInvalidData)
		}
		c.uncompressedLength = uncompressedLength
	}

	tag := make([]byte, outer.Hash.Size())
	if err := ioprim.ReadFull(r, tag); err != nil {
		return nil, err
	}
	c.tag = tag

	keyBytes := cryptoprim.KeyBytes(outer.AESKeyBits)
	if outer.HasAES {
		if !cryptoprim.ValidKeyBits(outer.AESKeyBits) {
			return nil, cerrors.NewFormatError("aes key size", cerrors.ErrInvalidData)
		}
		salt := make([]byte, keyBytes)
		if err := ioprim.ReadFull(r, salt); err != nil {
			return nil, err
		}
		iv := make([]byte, cryptoprim.BlockSize)
		if err := ioprim.ReadFull(r, iv); err != nil {
			return nil, err
		}
		c.salt, c.iv = salt, iv
	}

	payload := make([]byte, compressedLength)
	if err := ioprim.ReadFull(r, payload); err != nil {
		return nil, err
	}

	if !outer.HasAES {
		digest, err := cryptoprim.Hash(outer.Hash, payload)
		if err != nil {
			return nil, err
		}
		if !cryptoprim.ConstantTimeEqual(digest, tag) {
			return nil, cerrors.ErrChecksumMismatch
		}
		c.Effective = outer
		c.rawPayload = payload
		return c, nil
	}

	// Encrypted: the payload region redundantly frames salt || iv ||
	// ciphertext; both copies must agree byte-for-byte (§4.5: "the
	// duplication is deliberate and must round-trip bit-exactly").
	if len(payload) < keyBytes+cryptoprim.BlockSize {
		return nil, cerrors.NewFormatError("encrypted payload", cerrors.ErrTruncated)
	}
	payloadSalt := payload[:keyBytes]
	payloadIV := payload[keyBytes : keyBytes+cryptoprim.BlockSize]
	if !bytes.Equal(payloadSalt, c.salt) || !bytes.Equal(payloadIV, c.iv) {
		return nil, cerrors.NewFormatError("duplicated salt/iv", cerrors.ErrInvalidData)
	}
	c.ciphertext = payload[keyBytes+cryptoprim.BlockSize:]
	return c, nil
}

// SetPassword supplies a password for key derivation. Per the documented
// precedence (§9 open question c, extended here to a total order):
// password beats a caller-supplied raw key, which beats RSA unwrap.
func (c *Container) SetPassword(pw []byte) { c.password = pw }

// SetKey supplies the raw content key directly, bypassing PBKDF2.
func (c *Container) SetKey(key []byte) { c.rawKey = key }

// SetRSAKey supplies the RSA private key used to unwrap the `RSAk`
// option, when present.
func (c *Container) SetRSAKey(priv *rsa.PrivateKey) { c.rsaPriv = priv }

// Decrypt derives or unwraps the content key, decrypts the payload, and
// verifies its HMAC. A tag mismatch returns ErrBadKey and leaves the
// container in HeaderParsed state so the caller may supply different key
// material and retry (§7).
func (c *Container) Decrypt() error {
	if c.state != StateHeaderParsed || !c.Outer.HasAES {
		return cerrors.NewStateError("Decrypt", c.state.String())
	}

	keyBytes := cryptoprim.KeyBytes(c.Outer.AESKeyBits)
	key, err := c.resolveContentKey(keyBytes)
	if err != nil {
		return err
	}

	plaintext, err := cryptoprim.AESCBCDecrypt(key, c.iv, c.ciphertext)
	if err != nil {
		// Malformed padding is not itself proof of a wrong key (§4.5
		// step 7) — report it as the same verification failure an HMAC
		// mismatch gives (ErrBadKey) rather than as a padding error.
		log.Debug("maus: aes-cbc decrypt error treated as bad key", log.Err(err))
		return cerrors.ErrBadKey
	}

	computed, err := cryptoprim.HMAC(c.Outer.Hash, key, plaintext)
	if err != nil {
		return err
	}
	if !cryptoprim.ConstantTimeEqual(computed, c.tag) {
		return cerrors.ErrBadKey
	}

	inner, rest, err := splitInnerOptionsAndPayload(plaintext)
	if err != nil {
		return err
	}
	effective, err := MergeOptions(c.Outer, inner)
	if err != nil {
		return err
	}

	c.Inner = inner
	c.Effective = effective
	c.rawPayload = rest
	c.ciphertext = nil
	c.state = StateDecrypted
	return nil
}

func (c *Container) resolveContentKey(keyBytes int) ([]byte, error) {
	switch {
	case len(c.password) > 0:
		return cryptoprim.DeriveKey(c.Outer.Hash, c.password, c.salt, c.pbkdf2Cycles, keyBytes)
	case len(c.rawKey) > 0:
		if len(c.rawKey) != keyBytes {
			return nil, cerrors.NewCryptoError("set-key", cerrors.ErrInvalidData)
		}
		return c.rawKey, nil
	case c.rsaPriv != nil && c.Outer.HasRSAWrappedKey:
		return cryptoprim.RSAOAEPUnwrap(c.rsaPriv, c.Outer.RSAWrappedKey)
	default:
		return nil, cerrors.NewStateError("Decrypt", "no-key-material")
	}
}

// splitInnerOptionsAndPayload parses the inner options list prefixed to
// plaintext and returns the remaining compressed-payload bytes.
func splitInnerOptionsAndPayload(plaintext []byte) (*Options, []byte, error) {
	r := bytes.NewReader(plaintext)
	inner, err := ParseOptions(r)
	if err != nil {
		return nil, nil, err
	}
	rest := plaintext[len(plaintext)-r.Len():]
	return inner, rest, nil
}

// Payload returns a reader over the decompressed entry content. Valid
// once the header has been parsed (unencrypted) or decryption has
// succeeded (encrypted). Each call returns a fresh reader over the same
// content, until Close.
func (c *Container) Payload() (compress.DecompressReader, error) {
	if c.state != StateHeaderParsed && c.state != StateDecrypted && c.state != StatePayloadRead {
		return nil, cerrors.NewStateError("Payload", c.state.String())
	}
	dr, err := compress.NewReader(c.Effective.Compression, bytes.NewReader(c.rawPayload))
	if err != nil {
		return nil, err
	}
	c.state = StatePayloadRead
	return dr, nil
}

// Close releases any buffers held by the container. Safe to call more
// than once.
func (c *Container) Close() error {
	c.rawPayload = nil
	c.ciphertext = nil
	if len(c.password) > 0 {
		zero(c.password)
	}
	if len(c.rawKey) > 0 {
		zero(c.rawKey)
	}
	c.state = StateClosed
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// NewWriter opens a Container for writing, buffering compressed output
// into an in-memory stage until Finalize is called.
func NewWriter(w io.Writer, cfg WriteConfig) (*Container, error) {
	if cfg.Options == nil {
		cfg.Options = &Options{}
	}
	if cfg.Encrypt && !cryptoprim.ValidKeyBits(cfg.KeyBits) {
		return nil, cerrors.NewFormatError("aes key size", cerrors.ErrInvalidData)
	}
	if cfg.Hash.Size() == 0 {
		return nil, cerrors.NewFormatError("hash function", cerrors.ErrUnsupported)
	}
	stage := bufstream.New()
	cw, err := compress.NewWriter(cfg.Compression, stage, cfg.CompressionOpts)
	if err != nil {
		return nil, err
	}
	return &Container{
		state:           StateWriting,
		write:           true,
		cfg:             cfg,
		compressedStage: stage,
		compWriter:      cw,
		out:             w,
	}, nil
}

// Write stages plaintext content, compressing it into the internal
// buffer as it arrives.
func (c *Container) Write(p []byte) (int, error) {
	if c.state != StateWriting {
		return 0, cerrors.NewStateError("Write", c.state.String())
	}
	n, err := c.compWriter.Write(p)
	c.plainLen += int64(n)
	return n, err
}

// Finalize compresses, optionally encrypts and authenticates, and emits
// the complete framed MAUS stream to the writer supplied to NewWriter.
func (c *Container) Finalize() error {
	if c.state != StateWriting {
		return cerrors.NewStateError("Finalize", c.state.String())
	}
	if err := c.compWriter.Close(); err != nil {
		return cerrors.Wrap(err, "finalize compression")
	}
	compressedPayload := c.compressedStage.Bytes()

	outer, inner := SplitOptions(c.cfg.Options, c.cfg.MoveTags)
	outer.Compression, outer.HasCompression = c.cfg.Compression, true
	outer.Hash, outer.HasHash = c.cfg.Hash, true

	// Buffer the whole framed header+payload before writing anything, so
	// a failure here never leaves a partially written stream (§7).
	var out bytes.Buffer
	out.Write(Magic[:])
	if err := ioprim.WriteUint16(&out, CurrentVersion); err != nil {
		return err
	}

	if !c.cfg.Encrypt {
		tag, err := cryptoprim.Hash(c.cfg.Hash, compressedPayload)
		if err != nil {
			return err
		}
		if err := WriteOptions(&out, outer); err != nil {
			return err
		}
		if err := ioprim.WriteInt64(&out, int64(len(compressedPayload))); err != nil {
			return err
		}
		if err := ioprim.WriteInt64(&out, c.plainLen); err != nil {
			return err
		}
		out.Write(tag)
		out.Write(compressedPayload)
	} else {
		keyBytes := cryptoprim.KeyBytes(c.cfg.KeyBits)
		key, salt, cycles, err := c.deriveWriteKey(keyBytes)
		if err != nil {
			return err
		}
		iv, err := cryptoprim.RandomBytes(cryptoprim.BlockSize)
		if err != nil {
			return err
		}

		if c.cfg.RSAPub != nil {
			wrapped, err := cryptoprim.RSAOAEPWrap(c.cfg.RSAPub, key)
			if err != nil {
				return err
			}
			outer.RSAWrappedKey, outer.HasRSAWrappedKey = wrapped, true
		}
		outer.AESKeyBits, outer.HasAES = c.cfg.KeyBits, true

		var innerBuf bytes.Buffer
		if err := WriteOptions(&innerBuf, inner); err != nil {
			return err
		}
		plaintext := append(innerBuf.Bytes(), compressedPayload...)

		tag, err := cryptoprim.HMAC(c.cfg.Hash, key, plaintext)
		if err != nil {
			return err
		}
		ciphertext, err := cryptoprim.AESCBCEncrypt(key, iv, plaintext)
		if err != nil {
			return err
		}

		cycleField, err := cryptoprim.FieldFromCycles(cycles)
		if err != nil {
			return err
		}

		if err := WriteOptions(&out, outer); err != nil {
			return err
		}
		payloadRegion := append(append(append([]byte{}, salt...), iv...), ciphertext...)
		if err := ioprim.WriteInt64(&out, int64(len(payloadRegion))); err != nil {
			return err
		}
		if err := ioprim.WriteInt64(&out, cycleField); err != nil {
			return err
		}
		out.Write(tag)
		out.Write(salt)
		out.Write(iv)
		out.Write(payloadRegion)
	}

	if _, err := c.out.Write(out.Bytes()); err != nil {
		return cerrors.Wrap(err, "write maus stream")
	}
	c.state = StateFinalized
	return nil
}

// deriveWriteKey resolves the content key for the write path using the
// same password > raw key > (RSA has no "derive", only wrap) precedence
// as the read path.
func (c *Container) deriveWriteKey(keyBytes int) (key, salt []byte, cycles int, err error) {
	switch {
	case len(c.cfg.Password) > 0:
		salt, err = cryptoprim.RandomBytes(keyBytes)
		if err != nil {
			return nil, nil, 0, err
		}
		cycles = c.cfg.PBKDF2Cycles
		if cycles <= 0 {
			cycles = defaultPBKDF2Cycles
		}
		key, err = cryptoprim.DeriveKey(c.cfg.Hash, c.cfg.Password, salt, cycles, keyBytes)
		return key, salt, cycles, err
	case len(c.cfg.RawKey) > 0:
		if len(c.cfg.RawKey) != keyBytes {
			return nil, nil, 0, cerrors.NewCryptoError("set-key", cerrors.ErrInvalidData)
		}
		salt, err = cryptoprim.RandomBytes(keyBytes)
		if err != nil {
			return nil, nil, 0, err
		}
		return c.cfg.RawKey, salt, cryptoprim.BaseCycles, nil
	default:
		return nil, nil, 0, fmt.Errorf("maus: encrypt requested with no key material: %w", cerrors.ErrInvalidState)
	}
}
