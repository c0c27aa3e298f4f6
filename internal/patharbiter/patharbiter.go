// Package patharbiter enforces the archive-wide path invariants every
// MAUZ write (and decrypted read) must satisfy (§4.7): well-formed
// segments, file/directory exclusivity, and empty-directory pruning.
package patharbiter

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	cerrors "mauz/internal/errors"
)

const maxSegmentBytes = 256

// Kind classifies an accepted path.
type Kind int

const (
	File Kind = iota
	EmptyDirectory
)

// Arbiter maintains the path → entry-index map for one archive and
// enforces §4.7's exclusivity rules on every insert.
type Arbiter struct {
	entries map[string]int // path -> entry index
	kinds   map[string]Kind
}

// New returns an empty Arbiter.
func New() *Arbiter {
	return &Arbiter{entries: make(map[string]int), kinds: make(map[string]Kind)}
}

// ValidPath reports whether p satisfies every segment-level constraint
// in §4.7/§8: `/`-separated, each segment 1..256 UTF-8 bytes, at least
// one non-whitespace character, no control characters (outside
// whitespace), no unpaired surrogates, and not `.` or `..`.
func ValidPath(p string) bool {
	if p == "" {
		return false
	}
	trimmed := strings.TrimSuffix(p, "/")
	if trimmed == "" {
		return false
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if !validSegment(seg) {
			return false
		}
	}
	return true
}

func validSegment(seg string) bool {
	if seg == "" || seg == "." || seg == ".." {
		return false
	}
	if len(seg) > maxSegmentBytes {
		return false
	}
	if !utf8.ValidString(seg) {
		return false
	}
	if hasUnpairedSurrogate(seg) {
		return false
	}
	sawNonWhitespace := false
	for _, r := range seg {
		if isDisallowedControl(r) {
			return false
		}
		if !unicode.IsSpace(r) {
			sawNonWhitespace = true
		}
	}
	return sawNonWhitespace
}

// isDisallowedControl reports whether r falls in the forbidden control
// ranges U+0000..U+001F or U+007F..U+009F, excluding whitespace (§8
// explicitly permits whitespace code points within those ranges, e.g.
// tab/newline, to appear — only the segment as a whole must still have a
// non-whitespace character).
func isDisallowedControl(r rune) bool {
	if unicode.IsSpace(r) {
		return false
	}
	return (r >= 0x0000 && r <= 0x001F) || (r >= 0x007F && r <= 0x009F)
}

// hasUnpairedSurrogate detects lone UTF-16 surrogate code points that
// survived into the decoded string (possible via WTF-8-ish inputs);
// utf8.ValidString already rejects raw surrogate bytes, this is a
// defense-in-depth check against code points in the surrogate range.
func hasUnpairedSurrogate(seg string) bool {
	for _, r := range seg {
		if utf16.IsSurrogate(r) {
			return true
		}
	}
	return false
}

// Insert validates and records path p with classification kind and entry
// index idx, enforcing §4.7's exclusivity rules; a path and its
// directory form ("p" and "p/") count as the same path. On success, any
// existing EmptyDirectory entry that is now a covered ancestor of p is
// removed and returned so callers can drop it from their own entry list.
func (a *Arbiter) Insert(path string, kind Kind, idx int) (pruned []string, err error) {
	// The archive's reserved manifest path ("/Manifest.dat", see
	// internal/manifest) lies outside the segment grammar and is accepted
	// as is.
	if path != "/Manifest.dat" && !ValidPath(path) {
		return nil, cerrors.NewPathError(path, "invalid-segment")
	}
	bare := strings.TrimSuffix(path, "/")
	_, fileExists := a.entries[bare]
	_, dirExists := a.entries[bare+"/"]
	if fileExists || dirExists {
		return nil, cerrors.NewPathError(path, "exists")
	}

	for k := range a.entries {
		if isStrictAncestor(k, bare) && a.kinds[k] == File {
			return nil, cerrors.NewPathError(path, "covered-by-file")
		}
		if kind == EmptyDirectory && isStrictAncestor(bare, strings.TrimSuffix(k, "/")) {
			return nil, cerrors.NewPathError(path, "non-empty-directory")
		}
	}

	a.entries[path] = idx
	a.kinds[path] = kind

	for k, kk := range a.kinds {
		if kk != EmptyDirectory || k == path {
			continue
		}
		if isStrictAncestor(strings.TrimSuffix(k, "/"), bare) {
			pruned = append(pruned, k)
			delete(a.entries, k)
			delete(a.kinds, k)
		}
	}
	return pruned, nil
}

// Remove drops path from the arbiter (used when a caller explicitly
// removes an entry before close).
func (a *Arbiter) Remove(path string) {
	delete(a.entries, path)
	delete(a.kinds, path)
}

// isStrictAncestor reports whether ancestor is a strict prefix of p along
// `/` boundaries (ancestor != p, and p starts with ancestor + "/").
func isStrictAncestor(ancestor, p string) bool {
	if ancestor == "" || ancestor == p {
		return false
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// MaxEmptyDirectoryPayload bounds the compressed length an empty
// directory's MAUS stream may have before it is reclassified as a File
// (§4.7: "max-key + 3*block + 256 + 65536").
func MaxEmptyDirectoryPayload(maxKeyBytes, blockSize int) int64 {
	return int64(maxKeyBytes + 3*blockSize + 256 + 65536)
}
