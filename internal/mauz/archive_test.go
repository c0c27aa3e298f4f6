package mauz

import (
	"bytes"
	"io"
	"testing"

	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	"mauz/internal/maus"
)

func TestUnencryptedArchiveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriteConfig{Hash: cryptoprim.SHA256})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddFile("docs/a.txt", []byte("alpha content"), maus.WriteConfig{
		Compression: compress.Deflate,
		Hash:        cryptoprim.SHA256,
	}); err != nil {
		t.Fatalf("AddFile a.txt: %v", err)
	}
	if err := w.AddFile("docs/b.txt", []byte("bravo content"), maus.WriteConfig{
		Compression: compress.None,
		Hash:        cryptoprim.SHA256,
	}); err != nil {
		t.Fatalf("AddFile b.txt: %v", err)
	}
	if err := w.AddEmptyDirectory("docs/empty"); err != nil {
		t.Fatalf("AddEmptyDirectory: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	a, err := OpenRead(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	if len(a.Entries) != 3 {
		t.Fatalf("entry count = %d, want 3", len(a.Entries))
	}

	want := map[string]string{
		"docs/a.txt": "alpha content",
		"docs/b.txt": "bravo content",
	}
	for _, e := range a.Entries {
		if e.Kind == EmptyDirectory {
			if e.Path != "docs/empty/" {
				t.Errorf("unexpected directory path %q", e.Path)
			}
			continue
		}
		wantContent, ok := want[e.Path]
		if !ok {
			t.Fatalf("unexpected entry path %q", e.Path)
		}
		r, err := e.Container.Payload()
		if err != nil {
			t.Fatalf("Payload(%q): %v", e.Path, err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll(%q): %v", e.Path, err)
		}
		if string(got) != wantContent {
			t.Errorf("entry %q = %q, want %q", e.Path, got, wantContent)
		}
	}
}

func TestAddFilePrunesCoveredEmptyDirectory(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriteConfig{Hash: cryptoprim.SHA256})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddEmptyDirectory("a/b/"); err != nil {
		t.Fatalf("AddEmptyDirectory: %v", err)
	}
	if err := w.AddFile("a/b/c", []byte("content"), maus.WriteConfig{
		Compression: compress.None,
		Hash:        cryptoprim.SHA256,
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	a, err := OpenRead(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	if len(a.Entries) != 1 {
		t.Fatalf("entry count = %d, want 1 (pruned empty-directory ancestor)", len(a.Entries))
	}
	if a.Entries[0].Path != "a/b/c" {
		t.Errorf("surviving entry path = %q, want %q", a.Entries[0].Path, "a/b/c")
	}
}

func TestEncryptedArchiveHidesFilenames(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriteConfig{
		Hash:         cryptoprim.SHA256,
		Encrypt:      true,
		KeyBits:      256,
		Password:     []byte("archive password"),
		PBKDF2Cycles: 9001,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddFile("secret/plan.txt", []byte("the plan"), maus.WriteConfig{
		Compression: compress.Deflate,
		Hash:        cryptoprim.SHA256,
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	a, err := OpenRead(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	a.SetPassword([]byte("archive password"))
	if err := a.Decrypt(); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if len(a.Entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(a.Entries))
	}
	entry := a.Entries[0]
	r, err := entry.Container.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "the plan" {
		t.Errorf("content = %q, want %q", got, "the plan")
	}
	if entry.Container.Effective == nil || entry.Container.Effective.Filename != "secret/plan.txt" {
		t.Errorf("nested filename not recovered: %+v", entry.Container.Effective)
	}
}
