package keymaterial

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestPasswordCloseZeroes(t *testing.T) {
	p := NewPassword("hunter2")
	b := p.Bytes()
	if string(b) != "hunter2" {
		t.Fatalf("Bytes() = %q, want hunter2", b)
	}
	p.Close()
	for _, c := range b {
		if c != 0 {
			t.Fatalf("password bytes not zeroed after Close: %v", b)
		}
	}
	p.Close() // must be safe to call twice
}

func TestLoadRawKeyLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadRawKey(path, 32); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestLoadRawKeyExactLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	want := bytes.Repeat([]byte{0x42}, 32)
	if err := os.WriteFile(path, want, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := LoadRawKey(path, 32)
	if err != nil {
		t.Fatalf("LoadRawKey: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("LoadRawKey = %x, want %x", got, want)
	}
}

func TestLoadRSAKeyPairPEM(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	dir := t.TempDir()
	privPath := filepath.Join(dir, "priv.pem")
	privBytes := x509.MarshalPKCS1PrivateKey(priv)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		t.Fatalf("WriteFile priv: %v", err)
	}

	pubPath := filepath.Join(dir, "pub.pem")
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	if err := os.WriteFile(pubPath, pubPEM, 0600); err != nil {
		t.Fatalf("WriteFile pub: %v", err)
	}

	gotPriv, err := LoadRSAPrivateKey(privPath)
	if err != nil {
		t.Fatalf("LoadRSAPrivateKey: %v", err)
	}
	if gotPriv.N.Cmp(priv.N) != 0 {
		t.Fatalf("private key modulus mismatch")
	}

	gotPub, err := LoadRSAPublicKey(pubPath)
	if err != nil {
		t.Fatalf("LoadRSAPublicKey: %v", err)
	}
	if gotPub.N.Cmp(priv.PublicKey.N) != 0 {
		t.Fatalf("public key modulus mismatch")
	}
}
