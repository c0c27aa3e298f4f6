// Package mauz implements the MAUZ multi-entry archive codec (§4.6):
// archive framing around many MAUS sub-streams, the entries/offsets
// index, archive-level encryption, and entry classification. It drives
// internal/maus for each sub-stream and internal/patharbiter for
// structural path invariants.
package mauz

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"io"

	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
	"mauz/internal/ioprim"
	"mauz/internal/log"
	"mauz/internal/manifest"
	"mauz/internal/maus"
	"mauz/internal/patharbiter"
)

// Magic is the 4-byte MAUZ header magic. §6 gives the magic as the i32
// 0x5a75416d stored little-endian, which decomposes to these four bytes
// in file order.
var Magic = [4]byte{'m', 'A', 'u', 'Z'}

// Structural markers inside a MAUZ body (§6), read/written as raw
// little-endian u32 values.
const (
	MarkerAllEntries = 0x54414403
	MarkerCurEntry   = 0x74616403
	MarkerAllOffsets = 0x52455603
	MarkerCurOffset  = 0x72657603
)

const (
	MinVersion     = 1
	CurrentVersion = 2
)

// DefaultHashFunc is the hash function assumed for a MAUZ archive when
// no `Hsh` option is present (§4.6 step 3).
const DefaultHashFunc = cryptoprim.SHA512

// Kind classifies an archive entry (§3, §4.6).
type Kind int

const (
	File Kind = iota
	EmptyDirectory
	Unknown
)

// Entry is one archive member: its path, classification, byte offset
// within the archive, and (once available) its MAUS sub-stream.
type Entry struct {
	Index     int64
	Path      string
	Kind      Kind
	Offset    int64
	Container *maus.Container
}

// State mirrors the MAUZ read/write lifecycle, parallel to maus.State
// but at the archive level.
type State int

const (
	StateFresh State = iota
	StateHeaderParsed
	StateDecrypted
	StateWriting
	StateFinalized
	StateClosed
)

// Archive is one open MAUZ container.
type Archive struct {
	state State

	Version uint16
	Outer   *maus.Options

	totalSize int64

	pbkdf2Cycles int
	tag          []byte
	salt         []byte
	iv           []byte
	ciphertext   []byte

	password []byte
	rawKey   []byte
	rsaPriv  *rsa.PrivateKey

	Entries []*Entry
	arbiter *patharbiter.Arbiter
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// OpenRead parses a MAUZ (or bare single-entry MAUS) stream from r.
func OpenRead(r io.Reader) (*Archive, error) {
	cr := &countingReader{r: r}
	var magic [4]byte
	if err := ioprim.ReadFull(cr, magic[:]); err != nil {
		return nil, err
	}

	if magic == maus.Magic {
		c, err := maus.OpenRead(cr, true)
		if err != nil {
			return nil, err
		}
		name := ""
		if c.Outer.HasFilename {
			name = c.Outer.Filename
		}
		return &Archive{
			state: StateHeaderParsed,
			Entries: []*Entry{{
				Index:     0,
				Path:      name,
				Kind:      File,
				Container: c,
			}},
		}, nil
	}
	if magic != Magic {
		return nil, cerrors.NewFormatError("magic", cerrors.ErrInvalidData)
	}

	version, err := ioprim.ReadUint16(cr)
	if err != nil {
		return nil, err
	}
	if version < MinVersion || version > CurrentVersion {
		return nil, cerrors.NewFormatError("version", cerrors.ErrUnsupported)
	}
	totalSize, err := ioprim.ReadInt64(cr)
	if err != nil {
		return nil, err
	}
	bodyStart := cr.n // totalSize counts bytes from here onward

	outer, err := maus.ParseOptions(cr)
	if err != nil {
		return nil, err
	}
	if !outer.HasHash {
		outer.Hash, outer.HasHash = DefaultHashFunc, true
	}

	a := &Archive{
		state:     StateHeaderParsed,
		Version:   version,
		Outer:     outer,
		totalSize: totalSize,
		arbiter:   patharbiter.New(),
	}

	if !outer.HasAES {
		bodyLen := totalSize - (cr.n - bodyStart)
		if bodyLen <= 0 {
			return nil, cerrors.NewFormatError("total size", cerrors.ErrInvalidData)
		}
		body := make([]byte, bodyLen)
		if err := ioprim.ReadFull(cr, body); err != nil {
			return nil, err
		}
		bodyCr := &countingReader{r: bytes.NewReader(body)}
		if err := a.readBody(bodyCr, nil); err != nil {
			return nil, err
		}
		log.Info("mauz: archive opened", log.Int("entries", len(a.Entries)), log.Bool("encrypted", false))
		return a, nil
	}

	cycleField, err := ioprim.ReadInt64(cr)
	if err != nil {
		return nil, err
	}
	cycles, err := cryptoprim.CyclesFromField(cycleField)
	if err != nil {
		return nil, err
	}
	a.pbkdf2Cycles = cycles

	tag := make([]byte, outer.Hash.Size())
	if err := ioprim.ReadFull(cr, tag); err != nil {
		return nil, err
	}
	a.tag = tag

	keyBytes := cryptoprim.KeyBytes(outer.AESKeyBits)
	salt := make([]byte, keyBytes)
	if err := ioprim.ReadFull(cr, salt); err != nil {
		return nil, err
	}
	iv := make([]byte, cryptoprim.BlockSize)
	if err := ioprim.ReadFull(cr, iv); err != nil {
		return nil, err
	}
	a.salt, a.iv = salt, iv

	remaining := totalSize - (cr.n - bodyStart)
	if remaining <= 0 {
		return nil, cerrors.NewFormatError("ciphertext length", cerrors.ErrInvalidData)
	}
	ciphertext := make([]byte, remaining)
	if err := ioprim.ReadFull(cr, ciphertext); err != nil {
		return nil, err
	}
	a.ciphertext = ciphertext
	return a, nil
}

// SetPassword, SetKey, SetRSAKey mirror maus.Container's key-material
// setters, applied at the archive level.
func (a *Archive) SetPassword(pw []byte)        { a.password = pw }
func (a *Archive) SetKey(key []byte)            { a.rawKey = key }
func (a *Archive) SetRSAKey(priv *rsa.PrivateKey) { a.rsaPriv = priv }

// Decrypt derives the archive key, decrypts the body, verifies its HMAC,
// and parses the entries/offsets structure from the plaintext (§4.6
// step 5). A tag mismatch returns ErrBadKey without invalidating the
// archive, matching maus.Container's retry semantics (§7).
func (a *Archive) Decrypt() error {
	if a.state != StateHeaderParsed || !a.Outer.HasAES {
		return cerrors.NewStateError("Decrypt", "not-encrypted-or-wrong-state")
	}
	keyBytes := cryptoprim.KeyBytes(a.Outer.AESKeyBits)
	key, err := a.resolveContentKey(keyBytes)
	if err != nil {
		return err
	}

	plaintext, err := cryptoprim.AESCBCDecrypt(key, a.iv, a.ciphertext)
	if err != nil {
		log.Warn("mauz: aes-cbc decrypt error treated as bad key", log.Err(err))
		return cerrors.ErrBadKey
	}
	computed, err := cryptoprim.HMAC(a.Outer.Hash, key, plaintext)
	if err != nil {
		return err
	}
	if !cryptoprim.ConstantTimeEqual(computed, a.tag) {
		log.Warn("mauz: archive hmac tag mismatch")
		return cerrors.ErrBadKey
	}

	// Unlike a MAUS entry, a MAUZ archive has no encrypted inner-options
	// layer of its own: every archive-level option (compression is
	// absent here, AES/Hash/RSAk) is structural and already lives in the
	// outer options read in OpenRead. The decrypted plaintext is the
	// entries/offsets body directly.
	a.arbiter = patharbiter.New()
	cr := &countingReader{r: bytes.NewReader(plaintext)}
	if err := a.readBody(cr, key); err != nil {
		return err
	}
	a.ciphertext = nil
	a.state = StateDecrypted
	log.Info("mauz: archive decrypted", log.Int("entries", len(a.Entries)))
	return nil
}

func (a *Archive) resolveContentKey(keyBytes int) ([]byte, error) {
	switch {
	case len(a.password) > 0:
		return cryptoprim.DeriveKey(a.Outer.Hash, a.password, a.salt, a.pbkdf2Cycles, keyBytes)
	case len(a.rawKey) > 0:
		if len(a.rawKey) != keyBytes {
			return nil, cerrors.NewCryptoError("set-key", cerrors.ErrInvalidData)
		}
		return a.rawKey, nil
	case a.rsaPriv != nil && a.Outer.HasRSAWrappedKey:
		return cryptoprim.RSAOAEPUnwrap(a.rsaPriv, a.Outer.RSAWrappedKey)
	default:
		return nil, cerrors.NewStateError("Decrypt", "no-key-material")
	}
}

// readBody parses the entry_count / All-Entries / All-Offsets / meta
// structure (§4.6 step 4) from cr, which is positioned at the start of
// that structure (immediately after the outer options, or at the start
// of the decrypted plaintext; there is no inner options block).
func (a *Archive) readBody(cr *countingReader, _ []byte) error {
	count, err := ioprim.ReadInt64(cr)
	if err != nil {
		return err
	}
	if count < 0 || count > 1<<20 {
		return cerrors.NewFormatError("entry count", cerrors.ErrInvalidData)
	}

	if err := expectMarker(cr, MarkerAllEntries, "All-Entries"); err != nil {
		return err
	}

	type rawEntry struct {
		index  int64
		path   string
		offset int64
		entry  *Entry
	}
	raw := make([]rawEntry, 0, count)
	seen := make(map[int64]bool, count)

	for i := int64(0); i < count; i++ {
		if err := expectMarker(cr, MarkerCurEntry, "Cur-Entry"); err != nil {
			return err
		}
		index, err := ioprim.ReadInt64(cr)
		if err != nil {
			return err
		}
		if index < 0 || index >= count || seen[index] {
			return cerrors.NewFormatError("entry index", cerrors.ErrInvalidData)
		}
		seen[index] = true

		pathBytes, err := ioprim.ReadString8(cr)
		if err != nil {
			return err
		}
		offset := cr.n

		sub, err := maus.OpenRead(cr, false)
		if err != nil {
			return err
		}

		entry := classifyEntry(string(pathBytes), sub)
		entry.Index = index
		entry.Offset = offset
		raw = append(raw, rawEntry{index: index, path: string(pathBytes), offset: offset, entry: entry})
	}

	if err := expectMarker(cr, MarkerAllOffsets, "All-Offsets"); err != nil {
		return err
	}
	metaOffset := cr.n - 4 // position at which the All-Offsets marker began

	byIndex := make(map[int64]rawEntry, len(raw))
	for _, re := range raw {
		byIndex[re.index] = re
	}

	for i := int64(0); i < count; i++ {
		if err := expectMarker(cr, MarkerCurOffset, "Cur-Offset"); err != nil {
			return err
		}
		index, err := ioprim.ReadInt64(cr)
		if err != nil {
			return err
		}
		path, err := ioprim.ReadString8(cr)
		if err != nil {
			return err
		}
		offset, err := ioprim.ReadInt64(cr)
		if err != nil {
			return err
		}
		re, ok := byIndex[index]
		if !ok {
			return cerrors.NewFormatError("offset record index", cerrors.ErrInvalidData)
		}
		if re.path != string(path) {
			return cerrors.NewFormatError("offset record path mismatch", cerrors.ErrInvalidData)
		}
		if re.offset != offset {
			return cerrors.NewFormatError("offset record offset mismatch", cerrors.ErrInvalidData)
		}
	}

	gotMeta, err := ioprim.ReadInt64(cr)
	if err != nil {
		return err
	}
	if gotMeta != metaOffset {
		return cerrors.NewFormatError("meta offset", cerrors.ErrInvalidData)
	}

	var extra [1]byte
	if n, err := cr.Read(extra[:]); n > 0 {
		return cerrors.NewFormatError("trailing body bytes", cerrors.ErrInvalidData)
	} else if err != nil && err != io.EOF {
		return err
	}

	a.Entries = make([]*Entry, len(raw))
	for i, re := range raw {
		// Placeholder paths (`//V<index>`) used to hide real filenames in
		// an encrypted archive deliberately fall outside §4.7's path
		// grammar (they are not real paths); exclusivity is enforced on
		// the true filename once each entry's own MAUS stream decrypts
		// its `Name` option, not on the placeholder.
		if !isEncryptedPlaceholder(re.path) {
			if _, err := a.arbiter.Insert(re.path, kindToArbiterKind(re.entry.Kind), int(re.index)); err != nil {
				return err
			}
		}
		a.Entries[i] = re.entry
	}
	return nil
}

func kindToArbiterKind(k Kind) patharbiter.Kind {
	if k == EmptyDirectory {
		return patharbiter.EmptyDirectory
	}
	return patharbiter.File
}

// classifyEntry implements §4.6's "Entry classification during load".
func classifyEntry(path string, sub *maus.Container) *Entry {
	e := &Entry{Path: path, Container: sub}
	switch {
	case len(path) > 0 && path[len(path)-1] == '/':
		e.Kind = EmptyDirectory
	case isEncryptedPlaceholder(path):
		maxKeyBytes := cryptoprim.KeyBytes(256)
		bound := patharbiter.MaxEmptyDirectoryPayload(maxKeyBytes, cryptoprim.BlockSize)
		if sub.CompressedLength() <= bound {
			e.Kind = Unknown
		} else {
			e.Kind = File
		}
	default:
		e.Kind = File
	}
	return e
}

func isEncryptedPlaceholder(path string) bool {
	return len(path) >= 3 && path[0] == '/' && path[1] == '/' && path[2] == 'V'
}

func expectMarker(r io.Reader, want uint32, name string) error {
	got, err := ioprim.ReadUint32(r)
	if err != nil {
		return err
	}
	if got != want {
		return cerrors.NewFormatError(fmt.Sprintf("%s marker", name), cerrors.ErrInvalidData)
	}
	return nil
}

// Close releases every entry's buffers.
func (a *Archive) Close() error {
	for _, e := range a.Entries {
		if e.Container != nil {
			e.Container.Close()
		}
	}
	a.ciphertext = nil
	a.state = StateClosed
	return nil
}

// Find returns the entry at path, if any.
func (a *Archive) Find(path string) (*Entry, bool) {
	for _, e := range a.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return nil, false
}

// resolvedPath returns an entry's true path: its on-disk path, or its
// nested MAUS stream's decrypted Filename option when the on-disk path
// is an encrypted placeholder (§4.6).
func resolvedPath(e *Entry) string {
	if e.Container != nil && e.Container.Effective != nil && e.Container.Effective.HasFilename {
		return e.Container.Effective.Filename
	}
	return e.Path
}

// VerifyManifest locates the reserved manifest entry (§3, §9), decodes
// it, and checks every other entry's plaintext against its recorded
// hash. Returns the first path that fails to verify, or "" if the
// manifest entry is absent or every record matched. If signerPub is
// non-nil, the manifest's signature is checked against it first; a
// missing or invalid signature fails verification even if every record
// hash matches.
func (a *Archive) VerifyManifest(signerPub *rsa.PublicKey) (string, error) {
	var manifestEntry *Entry
	for _, e := range a.Entries {
		if resolvedPath(e) == manifest.ReservedPath {
			manifestEntry = e
			break
		}
	}
	if manifestEntry == nil {
		return "", nil
	}

	r, err := manifestEntry.Container.Payload()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m, err := manifest.Decode(data)
	if err != nil {
		return "", err
	}

	plaintexts := make(map[string][]byte, len(a.Entries))
	for _, e := range a.Entries {
		if e == manifestEntry || e.Kind == EmptyDirectory {
			continue
		}
		pr, err := e.Container.Payload()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(pr)
		if err != nil {
			return "", err
		}
		plaintexts[resolvedPath(e)] = content
	}

	lookup := func(path string) ([]byte, bool) {
		v, ok := plaintexts[path]
		return v, ok
	}
	failed, err := manifest.Verify(m, lookup, signerPub)
	if failed != "" {
		log.Warn("mauz: manifest verification failed", log.String("path", failed))
	}
	return failed, err
}
