// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package matvectest_test

import (
	"math/rand"
	"testing"

	"github.com/grailbio/matvec"
	"github.com/grailbio/matvec/matvectest"
	"github.com/grailbio/testutil/assert"
)

func TestRun(t *testing.T) {
	m, err := matvec.MatrixOf([][]int64{
		{1, 7, 6, 5, 7},
		{5, 2, 3, 4, 6},
		{9, 0, 3, 4, 5},
	})
	assert.NoError(t, err)
	got := matvectest.Run(t, m, matvec.Vector{1, 2, 3, 4, 5}, 2)
	matvectest.Equal(t, got, matvec.Vector{88, 64, 59})
}

func TestCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, size := range []int{1, 2, 10, 33} {
		m := matvec.GenerateMatrix(size, rng)
		v := matvec.GenerateVector(size, rng)
		for _, procs := range []int{2, 3, 5} {
			matvectest.Check(t, m, v, procs)
		}
	}
}
