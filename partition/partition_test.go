// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/matvec"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// checkCoverage verifies that a covers every row exactly once, that each
// rank's rows are strictly increasing, and that blocks are contiguous in
// rank order.
func checkCoverage(t *testing.T, a *Assignment) {
	t.Helper()
	seen := make([]int, a.Size())
	next := 0
	for _, rank := range a.Ranks() {
		rows := a.Rows(rank)
		if len(rows) > a.BlockSize() {
			t.Errorf("size=%d procs=%d: rank %d has %d rows, block size %d", a.Size(), a.Procs(), rank, len(rows), a.BlockSize())
		}
		for i, row := range rows {
			if i > 0 && rows[i-1] >= row {
				t.Errorf("size=%d procs=%d: rank %d rows not increasing: %v", a.Size(), a.Procs(), rank, rows)
			}
			if row != next {
				t.Errorf("size=%d procs=%d: rank %d row %d, want %d", a.Size(), a.Procs(), rank, row, next)
			}
			next++
			seen[row]++
			if r, pos := a.Owner(row); r != rank || pos != i {
				t.Errorf("size=%d procs=%d: owner(%d)=(%d,%d), want (%d,%d)", a.Size(), a.Procs(), row, r, pos, rank, i)
			}
		}
	}
	for row, n := range seen {
		if n != 1 {
			t.Errorf("size=%d procs=%d: row %d assigned %d times", a.Size(), a.Procs(), row, n)
		}
	}
	if got := a.Rows(0); got != nil {
		t.Errorf("controller was assigned rows %v", got)
	}
}

func TestPartition(t *testing.T) {
	for _, c := range []struct {
		size, procs int
		want        [][]int
	}{
		{3, 2, [][]int{nil, {0, 1, 2}}},
		{3, 3, [][]int{nil, {0, 1}, {2}}},
		{4, 3, [][]int{nil, {0, 1}, {2, 3}}},
		{3, 5, [][]int{nil, {0}, {1}, {2}, nil}},
		{5, 4, [][]int{nil, {0, 1}, {2, 3}, {4}}},
		{7, 4, [][]int{nil, {0, 1, 2}, {3, 4, 5}, {6}}},
		{0, 4, [][]int{nil, nil, nil, nil}},
		{0, 1, [][]int{nil}},
	} {
		a, err := Partition(c.size, c.procs)
		assert.NoError(t, err)
		for rank, want := range c.want {
			if got := a.Rows(rank); !reflect.DeepEqual(got, want) {
				t.Errorf("size=%d procs=%d rank %d: got %v, want %v", c.size, c.procs, rank, got, want)
			}
		}
		checkCoverage(t, a)
	}
}

func TestPartitionLarge(t *testing.T) {
	const N = 1000
	for _, procs := range []int{2, 3, 7, 1000} {
		a, err := Partition(N, procs)
		assert.NoError(t, err)
		checkCoverage(t, a)
		expect.EQ(t, a.BlockSize(), BlockSize(N, procs))
	}
	a, err := Partition(N, 1000)
	assert.NoError(t, err)
	// 999 workers with blocks of 2 rows: only the first 500 are used.
	expect.EQ(t, a.BlockSize(), 2)
	expect.EQ(t, a.Len(500), 2)
	expect.EQ(t, a.Len(501), 0)
	expect.EQ(t, a.Len(999), 0)
	expect.EQ(t, a.Len(1000), 0)
}

func TestPartitionFuzz(t *testing.T) {
	fz := fuzz.NewWithSeed(12345)
	for i := 0; i < 500; i++ {
		var size, procs uint16
		fz.Fuzz(&size)
		fz.Fuzz(&procs)
		a, err := Partition(int(size%2000), int(procs%300)+2)
		assert.NoError(t, err)
		checkCoverage(t, a)
	}
}

func TestPartitionDeterministic(t *testing.T) {
	a1, err := Partition(1234, 17)
	assert.NoError(t, err)
	a2, err := Partition(1234, 17)
	assert.NoError(t, err)
	if !reflect.DeepEqual(a1, a2) {
		t.Error("nondeterministic partitioning")
	}
}

func TestPartitionInvalid(t *testing.T) {
	for _, procs := range []int{-1, 0, 1} {
		_, err := Partition(10, procs)
		if !matvec.IsInvalidWorkerCount(err) {
			t.Errorf("procs=%d: expected invalid worker count, got %v", procs, err)
		}
	}
	_, err := Partition(0, 0)
	if !matvec.IsInvalidWorkerCount(err) {
		t.Errorf("expected invalid worker count, got %v", err)
	}
	_, err = Partition(-1, 3)
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid argument, got %v", err)
	}
	if matvec.IsInvalidWorkerCount(err) {
		t.Errorf("negative size reported as %v", err)
	}
}

func TestBlockSize(t *testing.T) {
	for _, c := range []struct{ size, procs, want int }{
		{1000, 2, 1000},
		{1000, 3, 500},
		{1000, 7, 167},
		{1000, 1000, 2},
		{1000, 1001, 1},
		{1, 10, 1},
		{0, 10, 0},
		{10, 1, 0},
	} {
		if got := BlockSize(c.size, c.procs); got != c.want {
			t.Errorf("BlockSize(%d, %d): got %v, want %v", c.size, c.procs, got, c.want)
		}
	}
}
