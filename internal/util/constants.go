// Package util provides common utilities and constants shared across the
// container engine and its CLI.
//
// This package contains:
//   - Size constants (KiB, MiB, GiB, TiB) for byte calculations
//   - Progress/speed/time formatting functions (Statify, Timeify, Sizeify)
//   - Reusable byte-buffer pools (BufferPool, MiBPool, SmallPool)
//
// The formatting functions are stateless; the pools are safe for
// concurrent use.
package util

// Size constants for byte calculations
const (
	KiB = 1 << 10 // 1024
	MiB = 1 << 20 // 1,048,576
	GiB = 1 << 30 // 1,073,741,824
	TiB = 1 << 40 // 1,099,511,627,776
)
