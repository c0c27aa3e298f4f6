package maus

import (
	"bytes"
	"testing"
	"time"

	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	"mauz/internal/ioprim"
)

func TestOptionsRoundTrip(t *testing.T) {
	opts := &Options{
		Compression:    compress.Deflate,
		HasCompression: true,
		AESKeyBits:     256,
		HasAES:         true,
		Filename:       "docs/readme.txt",
		HasFilename:    true,
		Created:        time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		HasCreated:     true,
		Comment:        "hello",
		HasComment:     true,
		Hash:           cryptoprim.SHA256,
		HasHash:        true,
	}

	var buf bytes.Buffer
	if err := WriteOptions(&buf, opts); err != nil {
		t.Fatalf("WriteOptions: %v", err)
	}
	got, err := ParseOptions(&buf)
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	if got.Compression != opts.Compression || !got.HasCompression {
		t.Errorf("compression mismatch: %+v", got)
	}
	if got.AESKeyBits != 256 || !got.HasAES {
		t.Errorf("aes key bits mismatch: %+v", got)
	}
	if got.Filename != "docs/readme.txt" {
		t.Errorf("filename mismatch: %q", got.Filename)
	}
	if !got.Created.Equal(opts.Created) {
		t.Errorf("created mismatch: %v", got.Created)
	}
	if got.Comment != "hello" {
		t.Errorf("comment mismatch: %q", got.Comment)
	}
	if got.Hash != cryptoprim.SHA256 {
		t.Errorf("hash mismatch: %v", got.Hash)
	}
}

func TestAESKeyArgBothEncodings(t *testing.T) {
	cases := []struct {
		arg  []byte
		bits int
	}{
		{[]byte("128"), 128},
		{[]byte("192"), 192},
		{[]byte("256"), 256},
		{[]byte{0x80, 0x00}, 128},
		{[]byte{0xC0, 0x00}, 192},
		{[]byte{0x00, 0x01}, 256},
	}
	for _, c := range cases {
		got, err := parseAESKeyArg(c.arg)
		if err != nil {
			t.Fatalf("parseAESKeyArg(%v): %v", c.arg, err)
		}
		if got != c.bits {
			t.Errorf("parseAESKeyArg(%v) = %d, want %d", c.arg, got, c.bits)
		}
	}
}

func TestParseOptionsRejectsContradictoryCompression(t *testing.T) {
	var buf bytes.Buffer
	if err := ioprim.WriteUint16(&buf, 2); err != nil {
		t.Fatalf("WriteUint16: %v", err)
	}
	if err := ioprim.WriteString8(&buf, []byte(kwDeflate)); err != nil {
		t.Fatalf("WriteString8: %v", err)
	}
	if err := ioprim.WriteString8(&buf, []byte(kwLzma)); err != nil {
		t.Fatalf("WriteString8: %v", err)
	}

	if _, err := ParseOptions(&buf); err == nil {
		t.Fatalf("expected contradictory compression error")
	}
}

func TestMergeOptionsRejectsStructuralInInner(t *testing.T) {
	outer := &Options{Hash: cryptoprim.SHA256, HasHash: true}
	inner := &Options{Compression: compress.Deflate, HasCompression: true}
	if _, err := MergeOptions(outer, inner); err == nil {
		t.Fatalf("expected error merging structural field from inner options")
	}
}

func TestSplitOptionsMovesRequestedTags(t *testing.T) {
	full := &Options{
		Filename:    "secret.txt",
		HasFilename: true,
		Comment:     "public comment",
		HasComment:  true,
		Hash:        cryptoprim.SHA256,
		HasHash:     true,
	}
	outer, inner := SplitOptions(full, TagFilename)
	if outer.HasFilename {
		t.Errorf("filename should have moved to inner")
	}
	if !inner.HasFilename || inner.Filename != "secret.txt" {
		t.Errorf("inner missing filename: %+v", inner)
	}
	if !outer.HasComment || outer.Comment != "public comment" {
		t.Errorf("comment should have stayed outer: %+v", outer)
	}
	if !outer.HasHash {
		t.Errorf("hash must always stay outer (structural)")
	}
}
