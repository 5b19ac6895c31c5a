package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// SortedIDs returns n distinct ids in [0, limit) in ascending order.
// n is capped at limit.
func (r *RNG) SortedIDs(n int, limit int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n = int(min(int64(n), limit))
	seen := make(map[int64]struct{}, n)
	out := make([]int64, 0, n)
	for len(out) < n {
		id := r.rand.Int63n(limit)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
// Term frequencies in natural language follow it with s close to 1.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1 // 0-indexed
		}
	}

	return n - 1
}

// Term returns the name of vocabulary entry i.
func Term(i int) string {
	return fmt.Sprintf("t%04d", i)
}

// Documents generates num documents of up to maxTerms distinct terms drawn
// from a Zipfian vocabulary. Each value is the term frequency.
func (r *RNG) Documents(num, vocab, maxTerms int, s float64) []map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := make([]map[string]int, num)
	for i := range docs {
		n := 1 + r.rand.Intn(maxTerms)
		doc := make(map[string]int, n)
		for range n {
			doc[Term(r.zipfLocked(vocab, s))]++
		}
		docs[i] = doc
	}
	return docs
}

// BruteForceAnd returns the ascending indexes of the documents containing
// every term. It is the ground truth for conjunctive queries.
func BruteForceAnd(docs []map[string]int, terms ...string) []int64 {
	var out []int64
	for i, doc := range docs {
		all := true
		for _, t := range terms {
			if _, ok := doc[t]; !ok {
				all = false
				break
			}
		}
		if all {
			out = append(out, int64(i))
		}
	}
	return out
}

// Intersect returns the values present in every sorted input.
func Intersect(sets ...[]int64) []int64 {
	if len(sets) == 0 {
		return nil
	}
	out := slices.Clone(sets[0])
	for _, s := range sets[1:] {
		kept := out[:0]
		for _, v := range out {
			if _, ok := slices.BinarySearch(s, v); ok {
				kept = append(kept, v)
			}
		}
		out = kept
	}
	return out
}
