package manifest

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
)

func TestBuildEncodeDecodeVerify(t *testing.T) {
	b := NewBuilder(cryptoprim.SHA256)
	contents := map[string][]byte{
		"a.txt": []byte("alpha"),
		"b.txt": []byte("bravo"),
	}
	if err := b.Add("a.txt", contents["a.txt"]); err != nil {
		t.Fatalf("Add a.txt: %v", err)
	}
	if err := b.Add("b.txt", contents["b.txt"]); err != nil {
		t.Fatalf("Add b.txt: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.HashFunc != cryptoprim.SHA256 {
		t.Fatalf("hash func mismatch: %v", decoded.HashFunc)
	}
	if len(decoded.Records) != 2 {
		t.Fatalf("record count = %d, want 2", len(decoded.Records))
	}

	lookup := func(path string) ([]byte, bool) {
		c, ok := contents[path]
		return c, ok
	}
	if failed, err := Verify(decoded, lookup, nil); err != nil || failed != "" {
		t.Fatalf("Verify: failed=%q err=%v", failed, err)
	}
}

func TestVerifyDetectsTamperedContent(t *testing.T) {
	b := NewBuilder(cryptoprim.SHA256)
	if err := b.Add("a.txt", []byte("alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	lookup := func(path string) ([]byte, bool) { return []byte("tampered"), true }
	failed, err := Verify(m, lookup, nil)
	if failed != "a.txt" || !cerrors.Is(err, cerrors.ErrChecksumMismatch) {
		t.Fatalf("Verify tampered: failed=%q err=%v", failed, err)
	}
}

func TestSignedManifestRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	b := NewBuilder(cryptoprim.SHA256)
	b.SignWith(priv)
	if err := b.Add("a.txt", []byte("alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Signature) == 0 {
		t.Fatalf("Build with SignWith should produce a signature")
	}

	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	lookup := func(path string) ([]byte, bool) { return []byte("alpha"), true }
	if failed, err := Verify(decoded, lookup, &priv.PublicKey); err != nil || failed != "" {
		t.Fatalf("Verify with correct signer: failed=%q err=%v", failed, err)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey (other): %v", err)
	}
	if _, err := Verify(decoded, lookup, &other.PublicKey); err == nil {
		t.Fatalf("Verify with wrong signer should fail")
	}
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	b := NewBuilder(cryptoprim.SHA256)
	if err := b.Add("a.txt", []byte("alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	lookup := func(path string) ([]byte, bool) { return []byte("alpha"), true }
	if _, err := Verify(m, lookup, &priv.PublicKey); err == nil {
		t.Fatalf("Verify should fail when a signer key is supplied but the manifest is unsigned")
	}
}

func TestAddRejectsReservedPath(t *testing.T) {
	b := NewBuilder(cryptoprim.SHA256)
	if err := b.Add(ReservedPath, []byte("x")); err == nil {
		t.Fatalf("expected error adding reserved path")
	}
}
