// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package compute implements the arithmetic performed by a worker rank.
package compute

import "github.com/grailbio/matvec"

// DotProducts returns, for each row in rows, its dot product with v.
// The i'th element of the result belongs to rows[i]; callers rely on
// this to map results back to matrix rows. DotProducts returns an error
// matching matvec.ErrDimensionMismatch if a row's width differs from
// the length of v.
func DotProducts(rows [][]int64, v matvec.Vector) (matvec.Vector, error) {
	out := make(matvec.Vector, len(rows))
	for i, row := range rows {
		if len(row) != len(v) {
			return nil, matvec.DimensionMismatch("row %d has width %d, vector has length %d", i, len(row), len(v))
		}
		out[i], _ = matvec.Dot(row, v)
	}
	return out, nil
}

// Pad returns partial extended with zeros to n elements. Pad returns
// partial itself if it is already n elements long.
func Pad(partial matvec.Vector, n int) matvec.Vector {
	if len(partial) == n {
		return partial
	}
	if len(partial) > n {
		panic("compute.Pad: partial result longer than its block")
	}
	padded := make(matvec.Vector, n)
	copy(padded, partial)
	return padded
}
