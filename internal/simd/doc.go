// Package simd provides the block intersection kernels used by term matching.
//
// # Supported Platforms
//
//   - x86-64: AVX-512, AVX2
//   - ARM64: NEON
//
// Runtime CPU feature detection (golang.org/x/sys/cpu) selects between the
// lane-wise kernel and the scalar merge. Set POSTINGS_SIMD=generic to force the
// scalar path.
//
// # Operations
//
//   - AndBlock: intersect a sorted candidate run with a decoded posting block
//   - Intersect, IntersectScalar: sorted set intersection with in-place output
//
// Both kernels produce identical output for every input.
package simd
