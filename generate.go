// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package matvec

import "math/rand"

// MaxGenerated bounds the values produced by GenerateMatrix and
// GenerateVector: all generated values are in [0, MaxGenerated).
const MaxGenerated = 100

// GenerateMatrix returns a size x size matrix filled with values drawn
// from rng.
func GenerateMatrix(size int, rng *rand.Rand) *Matrix {
	m := NewMatrix(size, size)
	for i := range m.cells {
		m.cells[i] = rng.Int63n(MaxGenerated)
	}
	return m
}

// GenerateVector returns a vector of the provided length filled with
// values drawn from rng.
func GenerateVector(size int, rng *rand.Rand) Vector {
	v := make(Vector, size)
	for i := range v {
		v[i] = rng.Int63n(MaxGenerated)
	}
	return v
}
