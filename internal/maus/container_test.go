package maus

import (
	"bytes"
	"io"
	"testing"

	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
)

func writeRoundTrip(t *testing.T, cfg WriteConfig, plaintext []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	c, err := NewWriter(&buf, cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := c.Write(plaintext); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return buf.Bytes()
}

func TestUnencryptedRoundTrip(t *testing.T) {
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	for _, format := range []compress.Format{compress.None, compress.Deflate, compress.Lzma} {
		cfg := WriteConfig{
			Compression: format,
			Hash:        cryptoprim.SHA256,
			Options:     &Options{Filename: "fox.txt", HasFilename: true},
		}
		raw := writeRoundTrip(t, cfg, plaintext)

		c, err := OpenRead(bytes.NewReader(raw), false)
		if err != nil {
			t.Fatalf("OpenRead(%v): %v", format, err)
		}
		r, err := c.Payload()
		if err != nil {
			t.Fatalf("Payload(%v): %v", format, err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll(%v): %v", format, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("format %v: round trip mismatch: %q", format, got)
		}
		if c.Effective == nil || !c.Effective.HasFilename || c.Effective.Filename != "fox.txt" {
			t.Errorf("format %v: filename not preserved: %+v", format, c.Effective)
		}
	}
}

func TestEncryptedRoundTripWithPassword(t *testing.T) {
	plaintext := bytes.Repeat([]byte("secret payload "), 100)
	cfg := WriteConfig{
		Compression:  compress.Deflate,
		Hash:         cryptoprim.SHA256,
		Encrypt:      true,
		KeyBits:      256,
		Password:     []byte("correct horse battery staple"),
		PBKDF2Cycles: 9001, // minimum valid real cycle count (stored field = 0)
		Options:      &Options{Comment: "hidden", HasComment: true},
		MoveTags:     TagComment,
	}
	raw := writeRoundTrip(t, cfg, plaintext)

	c, err := OpenRead(bytes.NewReader(raw), false)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	c.SetPassword([]byte("correct horse battery staple"))
	if err := c.Decrypt(); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	r, err := c.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch, got %d bytes want %d", len(got), len(plaintext))
	}
	if c.Effective == nil || c.Effective.Comment != "hidden" {
		t.Errorf("comment not recovered: %+v", c.Effective)
	}
}

func TestWrongPasswordYieldsBadKey(t *testing.T) {
	plaintext := []byte("top secret")
	cfg := WriteConfig{
		Compression:  compress.None,
		Hash:         cryptoprim.SHA256,
		Encrypt:      true,
		KeyBits:      128,
		Password:     []byte("right password"),
		PBKDF2Cycles: 9001,
	}
	raw := writeRoundTrip(t, cfg, plaintext)

	c, err := OpenRead(bytes.NewReader(raw), false)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	c.SetPassword([]byte("wrong password"))
	err = c.Decrypt()
	if !cerrors.Is(err, cerrors.ErrBadKey) {
		t.Fatalf("Decrypt with wrong password: got %v, want ErrBadKey", err)
	}
}

func TestTamperedCiphertextYieldsBadKey(t *testing.T) {
	plaintext := []byte("integrity matters")
	cfg := WriteConfig{
		Compression:  compress.None,
		Hash:         cryptoprim.SHA256,
		Encrypt:      true,
		KeyBits:      128,
		Password:     []byte("a password"),
		PBKDF2Cycles: 9001,
	}
	raw := writeRoundTrip(t, cfg, plaintext)
	raw[len(raw)-1] ^= 0xFF

	c, err := OpenRead(bytes.NewReader(raw), false)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	c.SetPassword([]byte("a password"))
	err = c.Decrypt()
	if !cerrors.Is(err, cerrors.ErrBadKey) {
		t.Fatalf("Decrypt with tampered ciphertext: got %v, want ErrBadKey", err)
	}
}
