// Package testutil provides testing utilities for postings.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded RNG, Zipfian document generation and brute force
// ground truth for conjunctive queries.
//
//	rng := testutil.NewRNG(seed)
//	docs := rng.Documents(1000, 200, 8, 1.1)
//	want := testutil.BruteForceAnd(docs, testutil.Term(0), testutil.Term(3))
package testutil
