// Package testutil provides testing utilities for rodb.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG plus generators for sorted id
// sets, skewed index keys and random list edit scripts.
//
//	rng := testutil.NewRNG(seed)
//	ids := rng.SortedIDs(100, 1000)
//	ops := rng.EditScript(50, len(ids))
package testutil
