// Package manifest implements the signed integrity table carried as the
// reserved `/Manifest.dat` archive entry (§3, §9): a table mapping every
// other entry's path to a hash of its plaintext content, optionally
// signed so a recipient can verify the whole archive's contents were not
// substituted even if individual entry hashes were disabled.
package manifest

import (
	"bytes"
	"crypto/rsa"

	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
	"mauz/internal/ioprim"
)

// ReservedPath is the fixed path every MAUZ archive's manifest entry is
// stored under (§3).
const ReservedPath = "/Manifest.dat"

// Record is one (path, hash) row.
type Record struct {
	Path string
	Hash []byte
}

// Manifest is the decoded integrity table, optionally signed (§9).
type Manifest struct {
	HashFunc  cryptoprim.HashFunc
	Records   []Record
	Signature []byte // RSA-PKCS1v15 signature over the unsigned table, or nil if unsigned
}

// Builder accumulates per-entry hashes as an archive is written, then
// produces the final Manifest in a second pass once every other entry's
// plaintext is known (§9: "construction needs two passes").
type Builder struct {
	hashFn  cryptoprim.HashFunc
	records []Record
	signKey *rsa.PrivateKey
}

// NewBuilder starts a manifest build using hashFn for every entry digest.
func NewBuilder(hashFn cryptoprim.HashFunc) *Builder {
	return &Builder{hashFn: hashFn}
}

// SignWith configures Build to sign the finished table with priv (§9's
// "signed integrity table"). A nil priv (the default) leaves the
// manifest unsigned.
func (b *Builder) SignWith(priv *rsa.PrivateKey) {
	b.signKey = priv
}

// Add records path's plaintext hash. Callers must not pass ReservedPath.
func (b *Builder) Add(path string, plaintext []byte) error {
	if path == ReservedPath {
		return cerrors.NewPathError(path, "reserved")
	}
	digest, err := cryptoprim.Hash(b.hashFn, plaintext)
	if err != nil {
		return err
	}
	b.records = append(b.records, Record{Path: path, Hash: digest})
	return nil
}

// Build finalizes the Manifest from every recorded entry, signing the
// table if SignWith was called.
func (b *Builder) Build() (*Manifest, error) {
	m := &Manifest{HashFunc: b.hashFn, Records: append([]Record{}, b.records...)}
	if b.signKey == nil {
		return m, nil
	}
	table, err := encodeTable(m)
	if err != nil {
		return nil, err
	}
	sig, err := cryptoprim.RSASign(b.signKey, table)
	if err != nil {
		return nil, err
	}
	m.Signature = sig
	return m, nil
}

// encodeTable serializes the unsigned table: hash-function keyword,
// count:u16, then each record as path (string16) + digest (string8,
// since every supported hash's output is ≤64 bytes). This is exactly
// what a signature, if any, covers.
func encodeTable(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := ioprim.WriteString8(&buf, []byte(m.HashFunc.Keyword())); err != nil {
		return nil, err
	}
	if len(m.Records) > 65535 {
		return nil, cerrors.NewFormatError("manifest record count", cerrors.ErrInvalidData)
	}
	if err := ioprim.WriteUint16(&buf, uint16(len(m.Records))); err != nil {
		return nil, err
	}
	for _, rec := range m.Records {
		if err := ioprim.WriteString16(&buf, []byte(rec.Path)); err != nil {
			return nil, err
		}
		if err := ioprim.WriteString8(&buf, rec.Hash); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Encode serializes m as the unsigned table (see encodeTable) followed
// by a presence byte and, only when set, a string16-framed signature
// (string16 can't itself carry a zero-length value, §4.1's length-0-
// means-max-length convention, so presence needs its own byte).
func Encode(m *Manifest) ([]byte, error) {
	table, err := encodeTable(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(table)
	if len(m.Signature) == 0 {
		if err := ioprim.WriteUint8(&buf, 0); err != nil {
			return nil, err
		}
	} else {
		if err := ioprim.WriteUint8(&buf, 1); err != nil {
			return nil, err
		}
		if err := ioprim.WriteString16(&buf, m.Signature); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode parses the byte form Encode produces.
func Decode(data []byte) (*Manifest, error) {
	r := bytes.NewReader(data)
	kw, err := ioprim.ReadString8(r)
	if err != nil {
		return nil, err
	}
	hashFn, err := cryptoprim.HashFuncFromKeyword(string(kw))
	if err != nil {
		return nil, err
	}
	count, err := ioprim.ReadUint16(r)
	if err != nil {
		return nil, err
	}
	m := &Manifest{HashFunc: hashFn, Records: make([]Record, 0, count)}
	for i := uint16(0); i < count; i++ {
		path, err := ioprim.ReadString16(r)
		if err != nil {
			return nil, err
		}
		hash, err := ioprim.ReadString8(r)
		if err != nil {
			return nil, err
		}
		m.Records = append(m.Records, Record{Path: string(path), Hash: hash})
	}
	hasSig, err := ioprim.ReadUint8(r)
	if err != nil {
		return nil, err
	}
	if hasSig != 0 {
		sig, err := ioprim.ReadString16(r)
		if err != nil {
			return nil, err
		}
		m.Signature = sig
	}
	return m, nil
}

// Verify checks that every record in m matches the corresponding entry's
// plaintext, via the lookup function supplied by the caller (typically
// backed by the already-open archive). Returns the first path that fails
// to verify, or "" if every record matched. If pub is non-nil, the
// table's signature is checked first against pub and a missing or
// invalid signature fails the whole verification (returned as a non-nil
// error with an empty failedPath, since the failure isn't localized to
// one entry).
func Verify(m *Manifest, lookup func(path string) ([]byte, bool), pub *rsa.PublicKey) (failedPath string, err error) {
	if pub != nil {
		if len(m.Signature) == 0 {
			return "", cerrors.NewCryptoError("manifest-verify", cerrors.ErrInvalidData)
		}
		table, err := encodeTable(m)
		if err != nil {
			return "", err
		}
		if err := cryptoprim.RSAVerify(pub, table, m.Signature); err != nil {
			return "", err
		}
	}
	for _, rec := range m.Records {
		plaintext, ok := lookup(rec.Path)
		if !ok {
			return rec.Path, cerrors.NewFormatError("manifest entry missing", cerrors.ErrInvalidData)
		}
		digest, err := cryptoprim.Hash(m.HashFunc, plaintext)
		if err != nil {
			return rec.Path, err
		}
		if !cryptoprim.ConstantTimeEqual(digest, rec.Hash) {
			return rec.Path, cerrors.ErrChecksumMismatch
		}
	}
	return "", nil
}
