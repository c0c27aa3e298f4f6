package mauz

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"io"

	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
	"mauz/internal/ioprim"
	"mauz/internal/log"
	"mauz/internal/manifest"
	"mauz/internal/maus"
	"mauz/internal/patharbiter"
)

// WriteConfig configures an archive opened for writing (§4.6's write
// side, §6's OpenCreate contract).
type WriteConfig struct {
	Encrypt      bool
	KeyBits      int
	Password     []byte
	RawKey       []byte
	RSAPub       *rsa.PublicKey
	PBKDF2Cycles int
	Hash         cryptoprim.HashFunc
	Options      *maus.Options

	// Manifest, if true, appends an integrity manifest.dat entry (§3,
	// §9) hashing every other entry's plaintext.
	Manifest bool

	// ManifestSignKey, if set alongside Manifest, has the manifest
	// table signed (§9's "signed integrity table") instead of left
	// unsigned.
	ManifestSignKey *rsa.PrivateKey
}

// Writer accumulates entries and emits a complete framed MAUZ archive on
// Finalize. Mirrors maus.Container's buffer-then-write-once discipline
// (§7): nothing reaches the underlying writer until Finalize succeeds.
type Writer struct {
	out      io.Writer
	cfg      WriteConfig
	arbiter  *patharbiter.Arbiter
	entries  []pendingEntryData
	manifest *manifest.Builder
	seq      int64 // monotonic placeholder/index counter, unaffected by pruning
}

type pendingEntryData struct {
	path     string // on-disk path (may be a //V<index> placeholder)
	realPath string // path as passed by the caller, pre-placeholder, for pruning
	data     []byte // fully-framed nested MAUS stream
}

// NewWriter starts a new MAUZ archive to be written to w.
func NewWriter(w io.Writer, cfg WriteConfig) (*Writer, error) {
	if cfg.Hash.Size() == 0 {
		cfg.Hash = DefaultHashFunc
	}
	if cfg.Encrypt && !cryptoprim.ValidKeyBits(cfg.KeyBits) {
		return nil, cerrors.NewFormatError("aes key size", cerrors.ErrInvalidData)
	}
	wr := &Writer{out: w, cfg: cfg, arbiter: patharbiter.New()}
	if cfg.Manifest {
		wr.manifest = manifest.NewBuilder(cfg.Hash)
		if cfg.ManifestSignKey != nil {
			wr.manifest.SignWith(cfg.ManifestSignKey)
		}
	}
	return wr, nil
}

// AddFile stages path's content as a new File entry, compressed and
// optionally per-entry encrypted via the nested MAUS stream (§4.6's
// single-MAUS-stream-as-one-entry model, applied per entry). When the
// archive itself is encrypted, the entry's on-disk path is replaced with
// the `//V<index>` placeholder (§4.6's filename-hiding convention) and
// the true path only survives inside the nested MAUS stream's `Name`
// option, which is itself encrypted.
func (w *Writer) AddFile(path string, plaintext []byte, mcfg maus.WriteConfig) error {
	idx := w.seq
	pruned, err := w.arbiter.Insert(path, patharbiter.File, int(idx))
	if err != nil {
		return err
	}
	w.seq++
	w.pruneEntries(pruned)
	if mcfg.Options == nil {
		mcfg.Options = &maus.Options{}
	}
	mcfg.Options.Filename, mcfg.Options.HasFilename = path, true

	var buf bytes.Buffer
	c, err := maus.NewWriter(&buf, mcfg)
	if err != nil {
		return err
	}
	if _, err := c.Write(plaintext); err != nil {
		return err
	}
	if err := c.Finalize(); err != nil {
		return err
	}

	onDiskPath := path
	if w.cfg.Encrypt {
		onDiskPath = fmt.Sprintf("//V%d", idx)
	}
	w.entries = append(w.entries, pendingEntryData{path: onDiskPath, realPath: path, data: buf.Bytes()})

	if w.manifest != nil {
		if err := w.manifest.Add(path, plaintext); err != nil {
			return err
		}
	}
	log.Debug("mauz: staged file entry", log.String("path", path), log.Int("index", int(idx)))
	return nil
}

// pruneEntries drops previously staged entries whose real (pre-
// placeholder) path is one the arbiter just reported as pruned (§3,
// §4.7: an empty-directory entry that became a covered ancestor of a
// later insert must not survive into the written archive).
func (w *Writer) pruneEntries(paths []string) {
	if len(paths) == 0 {
		return
	}
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}
	kept := w.entries[:0]
	for _, e := range w.entries {
		if !drop[e.realPath] {
			kept = append(kept, e)
		}
	}
	w.entries = kept
}

// addManifestEntry appends the built manifest as the final archive entry
// (§3's reserved path, §9's "construction needs two passes": every other
// entry must already be staged).
func (w *Writer) addManifestEntry() error {
	if w.manifest == nil {
		return nil
	}
	m, err := w.manifest.Build()
	if err != nil {
		return err
	}
	encoded, err := manifest.Encode(m)
	if err != nil {
		return err
	}

	idx := w.seq
	pruned, err := w.arbiter.Insert(manifest.ReservedPath, patharbiter.File, int(idx))
	if err != nil {
		return err
	}
	w.seq++
	w.pruneEntries(pruned)
	mcfg := maus.WriteConfig{
		Compression: compress.None,
		Hash:        w.cfg.Hash,
		Options:     &maus.Options{Filename: manifest.ReservedPath, HasFilename: true},
	}
	var buf bytes.Buffer
	c, err := maus.NewWriter(&buf, mcfg)
	if err != nil {
		return err
	}
	if _, err := c.Write(encoded); err != nil {
		return err
	}
	if err := c.Finalize(); err != nil {
		return err
	}
	onDiskPath := manifest.ReservedPath
	if w.cfg.Encrypt {
		onDiskPath = fmt.Sprintf("//V%d", idx)
	}
	w.entries = append(w.entries, pendingEntryData{path: onDiskPath, realPath: manifest.ReservedPath, data: buf.Bytes()})
	return nil
}

// AddEmptyDirectory stages an empty-directory marker entry (§3, §4.7):
// a zero-length nested MAUS stream whose path ends in "/".
func (w *Writer) AddEmptyDirectory(path string) error {
	dirPath := path
	if len(dirPath) == 0 || dirPath[len(dirPath)-1] != '/' {
		dirPath += "/"
	}
	idx := w.seq
	pruned, err := w.arbiter.Insert(dirPath, patharbiter.EmptyDirectory, int(idx))
	if err != nil {
		return err
	}
	w.seq++
	w.pruneEntries(pruned)

	mcfg := maus.WriteConfig{
		Compression: compress.None,
		Hash:        w.cfg.Hash,
		Options:     &maus.Options{Filename: dirPath, HasFilename: true},
	}
	var buf bytes.Buffer
	c, err := maus.NewWriter(&buf, mcfg)
	if err != nil {
		return err
	}
	if err := c.Finalize(); err != nil {
		return err
	}
	w.entries = append(w.entries, pendingEntryData{path: dirPath, realPath: dirPath, data: buf.Bytes()})
	return nil
}

// Finalize serializes the whole archive: header, outer options, the
// entry_count/All-Entries/All-Offsets/meta_offset structure, then (if
// encrypting) wraps the body in PBKDF2+AES-CBC+HMAC, with salt and IV
// written once after the tag. No inner (encrypted) options block is
// written: the encrypted plaintext starts directly with entry_count.
func (w *Writer) Finalize() error {
	if err := w.addManifestEntry(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := ioprim.WriteInt64(&body, int64(len(w.entries))); err != nil {
		return err
	}
	if err := ioprim.WriteUint32(&body, MarkerAllEntries); err != nil {
		return err
	}

	offsets := make([]int64, len(w.entries))
	for i, e := range w.entries {
		if err := ioprim.WriteUint32(&body, MarkerCurEntry); err != nil {
			return err
		}
		if err := ioprim.WriteInt64(&body, int64(i)); err != nil {
			return err
		}
		if err := ioprim.WriteString8(&body, []byte(e.path)); err != nil {
			return err
		}
		offsets[i] = int64(body.Len())
		body.Write(e.data)
	}

	metaOffset := int64(body.Len())
	if err := ioprim.WriteUint32(&body, MarkerAllOffsets); err != nil {
		return err
	}
	for i, e := range w.entries {
		if err := ioprim.WriteUint32(&body, MarkerCurOffset); err != nil {
			return err
		}
		if err := ioprim.WriteInt64(&body, int64(i)); err != nil {
			return err
		}
		if err := ioprim.WriteString8(&body, []byte(e.path)); err != nil {
			return err
		}
		if err := ioprim.WriteInt64(&body, offsets[i]); err != nil {
			return err
		}
	}
	if err := ioprim.WriteInt64(&body, metaOffset); err != nil {
		return err
	}

	outer := &maus.Options{}
	if !w.cfg.Encrypt {
		var out bytes.Buffer
		out.Write(Magic[:])
		if err := ioprim.WriteUint16(&out, CurrentVersion); err != nil {
			return err
		}
		outer.Hash, outer.HasHash = w.cfg.Hash, true
		var optBuf bytes.Buffer
		if err := maus.WriteOptions(&optBuf, outer); err != nil {
			return err
		}
		total := int64(optBuf.Len()) + int64(body.Len())
		if err := ioprim.WriteInt64(&out, total); err != nil {
			return err
		}
		out.Write(optBuf.Bytes())
		out.Write(body.Bytes())
		_, err := w.out.Write(out.Bytes())
		if err == nil {
			log.Info("mauz: archive written", log.Int("entries", len(w.entries)), log.Bool("encrypted", false))
		}
		return cerrors.Wrap(err, "write mauz archive")
	}

	keyBytes := cryptoprim.KeyBytes(w.cfg.KeyBits)
	key, salt, cycles, err := w.deriveKey(keyBytes)
	if err != nil {
		return err
	}
	iv, err := cryptoprim.RandomBytes(cryptoprim.BlockSize)
	if err != nil {
		return err
	}
	if w.cfg.RSAPub != nil {
		wrapped, err := cryptoprim.RSAOAEPWrap(w.cfg.RSAPub, key)
		if err != nil {
			return err
		}
		outer.RSAWrappedKey, outer.HasRSAWrappedKey = wrapped, true
	}
	outer.AESKeyBits, outer.HasAES = w.cfg.KeyBits, true
	outer.Hash, outer.HasHash = w.cfg.Hash, true

	tag, err := cryptoprim.HMAC(w.cfg.Hash, key, body.Bytes())
	if err != nil {
		return err
	}
	ciphertext, err := cryptoprim.AESCBCEncrypt(key, iv, body.Bytes())
	if err != nil {
		return err
	}
	cycleField, err := cryptoprim.FieldFromCycles(cycles)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	out.Write(Magic[:])
	if err := ioprim.WriteUint16(&out, CurrentVersion); err != nil {
		return err
	}
	var optBuf bytes.Buffer
	if err := maus.WriteOptions(&optBuf, outer); err != nil {
		return err
	}
	total := int64(optBuf.Len()) + 8 + int64(len(tag)) + int64(len(salt)) + int64(len(iv)) + int64(len(ciphertext))
	if err := ioprim.WriteInt64(&out, total); err != nil {
		return err
	}
	out.Write(optBuf.Bytes())
	if err := ioprim.WriteInt64(&out, cycleField); err != nil {
		return err
	}
	out.Write(tag)
	out.Write(salt)
	out.Write(iv)
	out.Write(ciphertext)

	_, err = w.out.Write(out.Bytes())
	if err == nil {
		log.Info("mauz: archive written", log.Int("entries", len(w.entries)), log.Bool("encrypted", true))
	}
	return cerrors.Wrap(err, "write mauz archive")
}

func (w *Writer) deriveKey(keyBytes int) (key, salt []byte, cycles int, err error) {
	switch {
	case len(w.cfg.Password) > 0:
		salt, err = cryptoprim.RandomBytes(keyBytes)
		if err != nil {
			return nil, nil, 0, err
		}
		cycles = w.cfg.PBKDF2Cycles
		if cycles <= 0 {
			cycles = 200000
		}
		key, err = cryptoprim.DeriveKey(w.cfg.Hash, w.cfg.Password, salt, cycles, keyBytes)
		return key, salt, cycles, err
	case len(w.cfg.RawKey) > 0:
		if len(w.cfg.RawKey) != keyBytes {
			return nil, nil, 0, cerrors.NewCryptoError("set-key", cerrors.ErrInvalidData)
		}
		salt, err = cryptoprim.RandomBytes(keyBytes)
		return w.cfg.RawKey, salt, cryptoprim.BaseCycles, err
	case w.cfg.RSAPub != nil:
		// RSA only: a random content key, wrapped under RSAPub by Finalize.
		key, err = cryptoprim.RandomBytes(keyBytes)
		if err != nil {
			return nil, nil, 0, err
		}
		salt, err = cryptoprim.RandomBytes(keyBytes)
		return key, salt, cryptoprim.BaseCycles, err
	default:
		return nil, nil, 0, cerrors.NewStateError("Finalize", "no-key-material")
	}
}
