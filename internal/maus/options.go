package maus

import (
	"encoding/binary"
	"io"
	"strconv"
	"time"

	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	cerrors "mauz/internal/errors"
	"mauz/internal/ioprim"
)

// Option keyword byte strings, verbatim per §6.
const (
	kwNone    = "NK"
	kwDeflate = "DEF"
	kwLzma    = "LZMA"
	kwAES     = "AES"
	kwName    = "Name"
	kwDeL     = "DeL"
	kwErs     = "Ers"
	kwMod     = "Mod"
	kwKom     = "Kom"
	kwHsh     = "Hsh"
	kwRSAk    = "RSAk"
	kwRSAsch  = "RSAsch"
	kwDSAsch  = "DSAsch"
	kwECsch   = "ECsch"
	kwRSAid   = "RSAid"
	kwDSAid   = "DSAid"
	kwECid    = "ECid"
)

// SignatureScheme identifies which asymmetric scheme produced a
// Signature. Multiple signatures (RSA+DSA+ECDSA) on one entry are
// structurally permitted (§9) — do not assume exclusivity.
type SignatureScheme uint8

const (
	SigRSA SignatureScheme = iota + 1
	SigDSA
	SigECDSA
)

// Signature is one option-list `*sch` entry plus its optional signer-id
// pair.
type Signature struct {
	Scheme      SignatureScheme
	Blob        []byte
	SignerID    []byte
	HasSignerID bool
}

// OptionTag identifies a recognized option field. Used to classify which
// fields may be carried in the encrypted inner options block (§9,
// "settable-option sets").
type OptionTag uint32

const (
	TagCompression OptionTag = 1 << iota
	TagAES
	TagFilename
	TagLengthOverride
	TagCreated
	TagModified
	TagComment
	TagHash
	TagRSAWrappedKey
	TagSignature
)

// EncryptableTags is the set of options that may be moved into the
// encrypted inner options block. Compression format, AES key size, hash
// function, and the RSA-wrapped content key are structural: they must be
// readable before the payload is decrypted (hash function sizes the
// integrity tag; AES key size and the wrapped key are needed to derive
// the content key in the first place), so they are outer-only.
const EncryptableTags = TagFilename | TagLengthOverride | TagCreated | TagModified | TagComment | TagSignature

// Options holds the parsed contents of one options list (either the
// outer, pre-decryption list or the inner, post-decryption list).
type Options struct {
	Compression    compress.Format
	HasCompression bool

	AESKeyBits int
	HasAES     bool

	Filename    string
	HasFilename bool

	LengthOverride    int64
	HasLengthOverride bool

	Created    time.Time
	HasCreated bool

	Modified    time.Time
	HasModified bool

	Comment    string
	HasComment bool

	Hash    cryptoprim.HashFunc
	HasHash bool

	RSAWrappedKey    []byte
	HasRSAWrappedKey bool

	Signatures []Signature
}

func formatErr(field string) error {
	return cerrors.NewFormatError(field, cerrors.ErrInvalidData)
}

// parseAESKeyArg decodes the `AES` option argument, which the wire format
// allows in two forms: a 3-byte ASCII decimal ("128"/"192"/"256") or a
// 2-byte little-endian u16 using the keyword values from §6
// (0x0100⇒256, 0x0080⇒128, 0x00C0⇒192).
func parseAESKeyArg(arg []byte) (int, error) {
	switch len(arg) {
	case 3:
		n, err := strconv.Atoi(string(arg))
		if err != nil {
			return 0, formatErr("aes key size")
		}
		if !cryptoprim.ValidKeyBits(n) {
			return 0, formatErr("aes key size")
		}
		return n, nil
	case 2:
		switch binary.LittleEndian.Uint16(arg) {
		case 0x0100:
			return 256, nil
		case 0x0080:
			return 128, nil
		case 0x00C0:
			return 192, nil
		default:
			return 0, formatErr("aes key size")
		}
	default:
		return 0, formatErr("aes key size")
	}
}

// encodeAESKeyArg always emits the canonical 2-byte little-endian form.
func encodeAESKeyArg(bits int) []byte {
	var v uint16
	switch bits {
	case 256:
		v = 0x0100
	case 128:
		v = 0x0080
	case 192:
		v = 0x00C0
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func schemeKeyword(s SignatureScheme) string {
	switch s {
	case SigRSA:
		return kwRSAsch
	case SigDSA:
		return kwDSAsch
	case SigECDSA:
		return kwECsch
	default:
		return ""
	}
}

func signerIDKeyword(s SignatureScheme) string {
	switch s {
	case SigRSA:
		return kwRSAid
	case SigDSA:
		return kwDSAid
	case SigECDSA:
		return kwECid
	default:
		return ""
	}
}

// ParseOptions reads one options list from r: a u16 count of
// keyword-groups, followed by that many groups. Each keyword consumes a
// fixed, keyword-specific number of raw fields from r (§4.5 step 2) —
// unlike a flat list of uniform entries, a keyword's arguments are read
// directly with their own framing (fixed-width ticks/lengths, or u8/u16
// length-prefixed strings) since the wire format mixes both.
func ParseOptions(r io.Reader) (*Options, error) {
	count, err := ioprim.ReadUint16(r)
	if err != nil {
		return nil, err
	}
	opts := &Options{}
	for i := uint16(0); i < count; i++ {
		kwBytes, err := ioprim.ReadString8(r)
		if err != nil {
			return nil, err
		}
		kw := string(kwBytes)
		switch kw {
		case kwNone, kwDeflate, kwLzma:
			var f compress.Format
			switch kw {
			case kwNone:
				f = compress.None
			case kwDeflate:
				f = compress.Deflate
			case kwLzma:
				f = compress.Lzma
			}
			if opts.HasCompression && opts.Compression != f {
				return nil, formatErr("compression (contradictory)")
			}
			opts.Compression, opts.HasCompression = f, true

		case kwAES:
			arg, err := ioprim.ReadString8(r)
			if err != nil {
				return nil, err
			}
			bits, err := parseAESKeyArg(arg)
			if err != nil {
				return nil, err
			}
			if opts.HasAES && opts.AESKeyBits != bits {
				return nil, formatErr("aes key size (contradictory)")
			}
			opts.AESKeyBits, opts.HasAES = bits, true

		case kwName:
			arg, err := ioprim.ReadString16(r)
			if err != nil {
				return nil, err
			}
			if !ioprim.ValidUTF8(arg) {
				return nil, formatErr("filename")
			}
			if opts.HasFilename && opts.Filename != string(arg) {
				return nil, formatErr("filename (contradictory)")
			}
			opts.Filename, opts.HasFilename = string(arg), true

		case kwDeL:
			v, err := ioprim.ReadInt64(r)
			if err != nil {
				return nil, err
			}
			if v < 0 {
				return nil, formatErr("uncompressed length override")
			}
			if opts.HasLengthOverride && opts.LengthOverride != v {
				return nil, formatErr("uncompressed length override (contradictory)")
			}
			opts.LengthOverride, opts.HasLengthOverride = v, true

		case kwErs, kwMod:
			ticks, err := ioprim.ReadInt64(r)
			if err != nil {
				return nil, err
			}
			t, err := timeFromTicks(ticks)
			if err != nil {
				return nil, err
			}
			if kw == kwErs {
				if opts.HasCreated && !opts.Created.Equal(t) {
					return nil, formatErr("created time (contradictory)")
				}
				opts.Created, opts.HasCreated = t, true
			} else {
				if opts.HasModified && !opts.Modified.Equal(t) {
					return nil, formatErr("modified time (contradictory)")
				}
				opts.Modified, opts.HasModified = t, true
			}

		case kwKom:
			arg, err := ioprim.ReadString16(r)
			if err != nil {
				return nil, err
			}
			if len(arg) == 0 {
				return nil, formatErr("comment")
			}
			if opts.HasComment && opts.Comment != string(arg) {
				return nil, formatErr("comment (contradictory)")
			}
			opts.Comment, opts.HasComment = string(arg), true

		case kwHsh:
			arg, err := ioprim.ReadString8(r)
			if err != nil {
				return nil, err
			}
			h, err := cryptoprim.HashFuncFromKeyword(string(arg))
			if err != nil {
				return nil, err
			}
			if opts.HasHash && opts.Hash != h {
				return nil, formatErr("hash function (contradictory)")
			}
			opts.Hash, opts.HasHash = h, true

		case kwRSAk:
			arg, err := ioprim.ReadString16(r)
			if err != nil {
				return nil, err
			}
			opts.RSAWrappedKey, opts.HasRSAWrappedKey = arg, true

		case kwRSAsch, kwDSAsch, kwECsch:
			blob, err := ioprim.ReadString16(r)
			if err != nil {
				return nil, err
			}
			var scheme SignatureScheme
			switch kw {
			case kwRSAsch:
				scheme = SigRSA
			case kwDSAsch:
				scheme = SigDSA
			case kwECsch:
				scheme = SigECDSA
			}
			opts.Signatures = append(opts.Signatures, Signature{Scheme: scheme, Blob: blob})

		case kwRSAid, kwDSAid, kwECid:
			arg, err := ioprim.ReadString8(r)
			if err != nil {
				return nil, err
			}
			var scheme SignatureScheme
			switch kw {
			case kwRSAid:
				scheme = SigRSA
			case kwDSAid:
				scheme = SigDSA
			case kwECid:
				scheme = SigECDSA
			}
			idx := lastSignatureOf(opts.Signatures, scheme)
			if idx < 0 {
				return nil, formatErr("signer id without matching signature")
			}
			opts.Signatures[idx].SignerID = arg
			opts.Signatures[idx].HasSignerID = true

		default:
			return nil, cerrors.NewFormatError("option keyword", cerrors.ErrUnsupported)
		}
	}
	return opts, nil
}

func lastSignatureOf(sigs []Signature, scheme SignatureScheme) int {
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].Scheme == scheme && !sigs[i].HasSignerID {
			return i
		}
	}
	return -1
}

// WriteOptions serializes opts in the same keyword-group framing
// ParseOptions reads.
func WriteOptions(w io.Writer, opts *Options) error {
	type group struct {
		write func(io.Writer) error
	}
	var groups []group

	if opts.HasCompression {
		kw := opts.Compression.Keyword()
		groups = append(groups, group{func(w io.Writer) error {
			return ioprim.WriteString8(w, []byte(kw))
		}})
	}
	if opts.HasAES {
		bits := opts.AESKeyBits
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwAES)); err != nil {
				return err
			}
			return ioprim.WriteString8(w, encodeAESKeyArg(bits))
		}})
	}
	if opts.HasFilename {
		name := opts.Filename
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwName)); err != nil {
				return err
			}
			return ioprim.WriteString16(w, []byte(name))
		}})
	}
	if opts.HasLengthOverride {
		v := opts.LengthOverride
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwDeL)); err != nil {
				return err
			}
			return ioprim.WriteInt64(w, v)
		}})
	}
	if opts.HasCreated {
		ticks := ticksFromTime(opts.Created)
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwErs)); err != nil {
				return err
			}
			return ioprim.WriteInt64(w, ticks)
		}})
	}
	if opts.HasModified {
		ticks := ticksFromTime(opts.Modified)
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwMod)); err != nil {
				return err
			}
			return ioprim.WriteInt64(w, ticks)
		}})
	}
	if opts.HasComment {
		comment := opts.Comment
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwKom)); err != nil {
				return err
			}
			return ioprim.WriteString16(w, []byte(comment))
		}})
	}
	if opts.HasHash {
		kw := opts.Hash.Keyword()
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwHsh)); err != nil {
				return err
			}
			return ioprim.WriteString8(w, []byte(kw))
		}})
	}
	if opts.HasRSAWrappedKey {
		blob := opts.RSAWrappedKey
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(kwRSAk)); err != nil {
				return err
			}
			return ioprim.WriteString16(w, blob)
		}})
	}
	for _, sig := range opts.Signatures {
		sig := sig
		groups = append(groups, group{func(w io.Writer) error {
			if err := ioprim.WriteString8(w, []byte(schemeKeyword(sig.Scheme))); err != nil {
				return err
			}
			return ioprim.WriteString16(w, sig.Blob)
		}})
		if sig.HasSignerID {
			groups = append(groups, group{func(w io.Writer) error {
				if err := ioprim.WriteString8(w, []byte(signerIDKeyword(sig.Scheme))); err != nil {
					return err
				}
				return ioprim.WriteString8(w, sig.SignerID)
			}})
		}
	}

	if len(groups) > 65535 {
		return formatErr("option group count")
	}
	if err := ioprim.WriteUint16(w, uint16(len(groups))); err != nil {
		return err
	}
	for _, g := range groups {
		if err := g.write(w); err != nil {
			return err
		}
	}
	return nil
}

// MergeOptions combines outer (pre-decryption) and inner (post-decryption)
// options into the effective option set. Structural fields never appear
// in inner; an inner value for a non-encryptable tag, or a value that
// contradicts the corresponding outer value, is a format error (§4.5:
// "any duplicate keyword must agree with the earlier value").
func MergeOptions(outer, inner *Options) (*Options, error) {
	if inner == nil {
		return outer, nil
	}
	if inner.HasCompression || inner.HasAES || inner.HasHash || inner.HasRSAWrappedKey {
		return nil, formatErr("structural option in encrypted block")
	}

	merged := *outer

	if inner.HasFilename {
		if outer.HasFilename && outer.Filename != inner.Filename {
			return nil, formatErr("filename (contradictory)")
		}
		merged.Filename, merged.HasFilename = inner.Filename, true
	}
	if inner.HasLengthOverride {
		if outer.HasLengthOverride && outer.LengthOverride != inner.LengthOverride {
			return nil, formatErr("uncompressed length override (contradictory)")
		}
		merged.LengthOverride, merged.HasLengthOverride = inner.LengthOverride, true
	}
	if inner.HasCreated {
		if outer.HasCreated && !outer.Created.Equal(inner.Created) {
			return nil, formatErr("created time (contradictory)")
		}
		merged.Created, merged.HasCreated = inner.Created, true
	}
	if inner.HasModified {
		if outer.HasModified && !outer.Modified.Equal(inner.Modified) {
			return nil, formatErr("modified time (contradictory)")
		}
		merged.Modified, merged.HasModified = inner.Modified, true
	}
	if inner.HasComment {
		if outer.HasComment && outer.Comment != inner.Comment {
			return nil, formatErr("comment (contradictory)")
		}
		merged.Comment, merged.HasComment = inner.Comment, true
	}
	if len(inner.Signatures) > 0 {
		merged.Signatures = append(append([]Signature{}, outer.Signatures...), inner.Signatures...)
	}
	return &merged, nil
}

// SplitOptions partitions full into the outer (structural) and inner
// (encryptable, moved per moveTags) option sets for the write path.
func SplitOptions(full *Options, moveTags OptionTag) (outer, inner *Options) {
	outer = &Options{
		Compression:      full.Compression,
		HasCompression:    full.HasCompression,
		AESKeyBits:        full.AESKeyBits,
		HasAES:            full.HasAES,
		Hash:              full.Hash,
		HasHash:           full.HasHash,
		RSAWrappedKey:     full.RSAWrappedKey,
		HasRSAWrappedKey:  full.HasRSAWrappedKey,
	}
	inner = &Options{}

	place := func(tag OptionTag, toOuter, toInner func()) {
		if moveTags&tag != 0 {
			toInner()
		} else {
			toOuter()
		}
	}
	if full.HasFilename {
		place(TagFilename, func() { outer.Filename, outer.HasFilename = full.Filename, true },
			func() { inner.Filename, inner.HasFilename = full.Filename, true })
	}
	if full.HasLengthOverride {
		place(TagLengthOverride, func() { outer.LengthOverride, outer.HasLengthOverride = full.LengthOverride, true },
			func() { inner.LengthOverride, inner.HasLengthOverride = full.LengthOverride, true })
	}
	if full.HasCreated {
		place(TagCreated, func() { outer.Created, outer.HasCreated = full.Created, true },
			func() { inner.Created, inner.HasCreated = full.Created, true })
	}
	if full.HasModified {
		place(TagModified, func() { outer.Modified, outer.HasModified = full.Modified, true },
			func() { inner.Modified, inner.HasModified = full.Modified, true })
	}
	if full.HasComment {
		place(TagComment, func() { outer.Comment, outer.HasComment = full.Comment, true },
			func() { inner.Comment, inner.HasComment = full.Comment, true })
	}
	if len(full.Signatures) > 0 {
		if moveTags&TagSignature != 0 {
			inner.Signatures = full.Signatures
		} else {
			outer.Signatures = full.Signatures
		}
	}
	return outer, inner
}
