// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package partition computes the static assignment of matrix rows to
// the worker ranks of a process group.
//
// Rank 0 is the controller and never receives rows. The rows [0, size)
// are handed out in increasing order, in blocks of at most BlockSize
// rows, to ranks 1, 2, ... until they run out; the remaining ranks
// receive empty assignments. Because the assignment is a function of
// the problem size and the process count alone, every rank computes it
// independently, and a row's position in the product vector follows
// from the rank that owns it and its position within that rank's
// block.
package partition

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/matvec"
)

// BlockSize returns the maximum number of rows assigned to a single
// worker rank when size rows are partitioned across procs processes
// (including the controller). BlockSize returns 0 if there are no rows
// or no worker ranks.
func BlockSize(size, procs int) int {
	workers := procs - 1
	if size <= 0 || workers <= 0 {
		return 0
	}
	return (size + workers - 1) / workers
}

// An Assignment maps each worker rank to the ordered list of rows it
// owns. Assignments are ordered by construction: rank r's rows are
// stored at index r, and each rank's rows are strictly increasing.
type Assignment struct {
	size, procs, blockSize int
	// rows[r] holds rank r's rows; rows[0] is always empty.
	rows [][]int
}

// Partition assigns the rows [0, size) to the worker ranks 1..procs-1
// of a group of procs processes. Partition returns an error matching
// matvec.ErrInvalidWorkerCount if there are rows to assign but no
// worker ranks to assign them to.
func Partition(size, procs int) (*Assignment, error) {
	if size < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("partition: negative size %d", size))
	}
	if procs < 1 {
		return nil, matvec.InvalidWorkerCount("partition: process count %d, need at least 1", procs)
	}
	if procs < 2 && size > 0 {
		return nil, matvec.InvalidWorkerCount("partition: %d rows but no worker ranks among %d processes", size, procs)
	}
	a := &Assignment{
		size:      size,
		procs:     procs,
		blockSize: BlockSize(size, procs),
		rows:      make([][]int, procs),
	}
	next := 0
	for rank := 1; rank < procs && next < size; rank++ {
		end := next + a.blockSize
		if end > size {
			end = size
		}
		block := make([]int, end-next)
		for i := range block {
			block[i] = next + i
		}
		a.rows[rank] = block
		next = end
	}
	return a, nil
}

// Size returns the number of rows partitioned by a.
func (a *Assignment) Size() int { return a.size }

// Procs returns the number of processes, including the controller,
// that a was computed for.
func (a *Assignment) Procs() int { return a.procs }

// BlockSize returns the maximum number of rows assigned to any rank.
func (a *Assignment) BlockSize() int { return a.blockSize }

// Ranks returns the worker ranks in increasing order. Ranks with
// empty assignments are included.
func (a *Assignment) Ranks() []int {
	if a.procs < 2 {
		return nil
	}
	ranks := make([]int, a.procs-1)
	for i := range ranks {
		ranks[i] = i + 1
	}
	return ranks
}

// Rows returns the rows assigned to the provided rank, in increasing
// order. Rows returns nil for the controller, for ranks that were
// assigned no rows, and for ranks outside of the group. The returned
// slice must not be modified.
func (a *Assignment) Rows(rank int) []int {
	if rank < 0 || rank >= len(a.rows) {
		return nil
	}
	return a.rows[rank]
}

// Len returns the number of rows assigned to the provided rank.
func (a *Assignment) Len(rank int) int {
	return len(a.Rows(rank))
}

// Owner returns the rank that owns the provided row, and the row's
// position within that rank's block.
func (a *Assignment) Owner(row int) (rank, pos int) {
	if row < 0 || row >= a.size {
		panic(fmt.Sprintf("partition.Owner: row %d out of range [0, %d)", row, a.size))
	}
	return row/a.blockSize + 1, row % a.blockSize
}

// String returns a summary of the assignment.
func (a *Assignment) String() string {
	var used int
	for _, rows := range a.rows {
		if len(rows) > 0 {
			used++
		}
	}
	return fmt.Sprintf("%d rows over %d/%d worker ranks, block size %d", a.size, used, a.procs-1, a.blockSize)
}
