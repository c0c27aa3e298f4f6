// Package mauz is the public entry point for reading and writing
// MAUS/MAUZ containers (§6). It adapts internal/maus (single-entry
// streams) and internal/mauz (multi-entry archives) behind one
// Container/Entry surface, so a caller never needs to know whether a
// given stream holds a bare MAUS stream or a full MAUZ archive.
package mauz

import (
	"crypto/rsa"
	"io"

	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
	"mauz/internal/maus"
	archive "mauz/internal/mauz"
)

// Entry is one archive member, exposed read-only to callers.
type Entry struct {
	Path      string
	Kind      archive.Kind
	Container *maus.Container
}

// Container is an open MAUS/MAUZ stream, for reading or writing.
type Container struct {
	stream    io.Reader
	leaveOpen bool

	readArchive *archive.Archive
	writer      *archive.Writer

	closer io.Closer
}

// OpenRead opens r for reading. The stream may be a bare MAUS stream or
// a full MAUZ archive (§4.6 step 1); both present the same Entries/Find
// surface, a bare stream simply reporting a single entry. If leaveOpen
// is false and r implements io.Closer, Close closes it too.
func OpenRead(r io.Reader, leaveOpen bool) (*Container, error) {
	a, err := archive.OpenRead(r)
	if err != nil {
		return nil, err
	}
	c := &Container{readArchive: a, leaveOpen: leaveOpen}
	if cl, ok := r.(io.Closer); ok {
		c.closer = cl
	}
	return c, nil
}

// CreateConfig configures a new archive (§6's OpenCreate contract).
type CreateConfig struct {
	Encrypt      bool
	KeyBits      int
	Password     []byte
	RawKey       []byte
	RSAPub       *rsa.PublicKey
	PBKDF2Cycles int
	Hash         cryptoprim.HashFunc

	// Manifest, if true, appends an integrity manifest entry hashing
	// every other entry's plaintext (§3, §9).
	Manifest bool

	// ManifestSignKey, if set alongside Manifest, has the manifest
	// table signed instead of left unsigned (§9).
	ManifestSignKey *rsa.PrivateKey
}

// OpenCreate starts a new MAUZ archive to be written to w.
func OpenCreate(w io.Writer, cfg CreateConfig, leaveOpen bool) (*Container, error) {
	wr, err := archive.NewWriter(w, archive.WriteConfig{
		Encrypt:         cfg.Encrypt,
		KeyBits:         cfg.KeyBits,
		Password:        cfg.Password,
		RawKey:          cfg.RawKey,
		RSAPub:          cfg.RSAPub,
		PBKDF2Cycles:    cfg.PBKDF2Cycles,
		Hash:            cfg.Hash,
		Manifest:        cfg.Manifest,
		ManifestSignKey: cfg.ManifestSignKey,
	})
	if err != nil {
		return nil, err
	}
	c := &Container{writer: wr, leaveOpen: leaveOpen}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c, nil
}

// SetPassword, SetKey, SetRSAKey supply key material for a container
// opened with OpenRead, ahead of calling Decrypt.
func (c *Container) SetPassword(pw []byte) {
	if c.readArchive != nil {
		c.readArchive.SetPassword(pw)
	}
}

func (c *Container) SetKey(key []byte) {
	if c.readArchive != nil {
		c.readArchive.SetKey(key)
	}
}

func (c *Container) SetRSAKey(priv *rsa.PrivateKey) {
	if c.readArchive != nil {
		c.readArchive.SetRSAKey(priv)
	}
}

// IsEncrypted reports whether a container opened with OpenRead carries
// an encrypted body. Always false for a write container.
func (c *Container) IsEncrypted() bool {
	return c.readArchive != nil && c.readArchive.Outer != nil && c.readArchive.Outer.HasAES
}

// Decrypt decrypts an encrypted container previously opened with
// OpenRead. A no-op (returns nil) if the container isn't encrypted.
func (c *Container) Decrypt() error {
	if c.readArchive == nil {
		return cerrors.NewStateError("Decrypt", "not-a-read-container")
	}
	if c.readArchive.Outer == nil || !c.readArchive.Outer.HasAES {
		return nil
	}
	return c.readArchive.Decrypt()
}

// FileOptions configures one AddFile call's nested MAUS stream.
type FileOptions struct {
	Compression     compress.Format
	CompressionOpts compress.Options
	Hash            cryptoprim.HashFunc
}

// AddFile stages path's full plaintext content as a new archive entry.
// Valid only on a container opened with OpenCreate.
func (c *Container) AddFile(path string, plaintext []byte, opts FileOptions) error {
	if c.writer == nil {
		return cerrors.NewStateError("AddFile", "not-a-write-container")
	}
	if opts.Hash.Size() == 0 {
		opts.Hash = archive.DefaultHashFunc
	}
	return c.writer.AddFile(path, plaintext, maus.WriteConfig{
		Compression:     opts.Compression,
		CompressionOpts: opts.CompressionOpts,
		Hash:            opts.Hash,
	})
}

// AddEmptyDirectory stages an empty-directory marker entry.
func (c *Container) AddEmptyDirectory(path string) error {
	if c.writer == nil {
		return cerrors.NewStateError("AddEmptyDirectory", "not-a-write-container")
	}
	return c.writer.AddEmptyDirectory(path)
}

// Entries returns a snapshot of every entry currently known. For a
// container opened with OpenRead, that means after a successful Decrypt
// (or immediately, if the container isn't encrypted).
func (c *Container) Entries() []Entry {
	if c.readArchive == nil {
		return nil
	}
	out := make([]Entry, len(c.readArchive.Entries))
	for i, e := range c.readArchive.Entries {
		out[i] = Entry{Path: e.Path, Kind: e.Kind, Container: e.Container}
	}
	return out
}

// Verify checks the archive's manifest entry, if any, against every
// other entry's plaintext. Returns the first path that fails to verify,
// or "" if there is no manifest entry or every record matched. If
// signerPub is non-nil, the manifest's signature is checked against it
// first; a missing or invalid signature fails verification even if every
// record hash matches. Valid only on a container opened with OpenRead,
// after a successful Decrypt.
func (c *Container) Verify(signerPub *rsa.PublicKey) (string, error) {
	if c.readArchive == nil {
		return "", cerrors.NewStateError("Verify", "not-a-read-container")
	}
	return c.readArchive.VerifyManifest(signerPub)
}

// Find looks up one entry by path.
func (c *Container) Find(path string) (Entry, bool) {
	if c.readArchive == nil {
		return Entry{}, false
	}
	e, ok := c.readArchive.Find(path)
	if !ok {
		return Entry{}, false
	}
	return Entry{Path: e.Path, Kind: e.Kind, Container: e.Container}, true
}

// Close finalizes a write container (emitting the complete archive) or
// releases a read container's buffers, then closes the underlying
// stream unless leaveOpen was set.
func (c *Container) Close() error {
	var err error
	switch {
	case c.writer != nil:
		err = c.writer.Finalize()
	case c.readArchive != nil:
		err = c.readArchive.Close()
	}
	if !c.leaveOpen && c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
