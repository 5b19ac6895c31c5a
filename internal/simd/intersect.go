package simd

import "slices"

// Lanes is the number of int64 values compared per step by the lane-wise kernel.
const Lanes = 4

// intersectImpl is selected once at init.
var intersectImpl = IntersectScalar

func selectKernels() {
	if activeISA != Generic {
		intersectImpl = IntersectLanes
	} else {
		intersectImpl = IntersectScalar
	}
}

// Intersect writes the values present in both a and b to dst in ascending order
// and returns how many were written. a and b must be sorted and duplicate free.
//
// dst may alias a or b as long as it starts at or before the aliased slice.
func Intersect(dst, a, b []int64) int {
	return intersectImpl(dst, a, b)
}

// IntersectScalar is the two-pointer merge intersection.
func IntersectScalar(dst, a, b []int64) int {
	i, j, w := 0, 0, 0
	for i < len(a) && j < len(b) {
		x, y := a[i], b[j]
		switch {
		case x < y:
			i++
		case x > y:
			j++
		default:
			dst[w] = x
			w++
			i++
			j++
		}
	}
	return w
}

// IntersectLanes walks the shorter input one value at a time and the longer one
// Lanes values at a time, finishing with the scalar merge.
func IntersectLanes(dst, a, b []int64) int {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	if len(large) <= Lanes {
		return IntersectScalar(dst, small, large)
	}

	i, j, w := 0, 0, 0
	for i < len(small) && j+Lanes <= len(large) {
		l0, l1, l2, l3 := large[j], large[j+1], large[j+2], large[j+3]
		v := small[i]
		if v > l3 {
			j += Lanes
			continue
		}
		if v < l0 {
			i++
			continue
		}
		if (v == l0) || (v == l1) || (v == l2) || (v == l3) {
			dst[w] = v
			w++
		}
		i++
	}

	return w + IntersectScalar(dst[w:], small[i:], large[j:])
}

// AndBlock intersects the candidates in input with a decoded, sorted block of
// ids. Matches are written to dst. It returns how many input values were
// consumed (those not greater than the last block value) and how many matches
// were written.
func AndBlock(dst, input, block []int64) (consumed, written int) {
	if len(input) == 0 || len(block) == 0 {
		return 0, 0
	}
	last := block[len(block)-1]
	consumed, found := slices.BinarySearch(input, last)
	if found {
		consumed++
	}
	written = intersectImpl(dst, input[:consumed], block)
	return consumed, written
}

// AndBlockScalar is AndBlock using the scalar merge regardless of the active ISA.
func AndBlockScalar(dst, input, block []int64) (consumed, written int) {
	if len(input) == 0 || len(block) == 0 {
		return 0, 0
	}
	last := block[len(block)-1]
	consumed, found := slices.BinarySearch(input, last)
	if found {
		consumed++
	}
	return consumed, IntersectScalar(dst, input[:consumed], block)
}
