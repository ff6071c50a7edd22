// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package matvec implements distributed dense matrix-by-vector
	multiplication over a fixed group of processes. One process, the
	controller (rank 0), owns the matrix and the vector. The remaining
	processes, the workers (ranks 1 through P-1), each receive a
	contiguous block of matrix rows together with a copy of the vector,
	compute one dot product per row, and return their partial results.
	The controller gathers the partial results in rank order and
	reassembles them into the product vector.

	The work is split into the following packages:

	- partition computes the static assignment of rows to worker ranks;
	- rowcodec flattens rows into the linear buffers that are
	  transmitted to workers, and back;
	- compute performs a worker's dot products;
	- transport provides the message passing runtime: point-to-point
	  send and receive plus an all-to-one gather, implemented both
	  in-process and on top of bigmachine;
	- exec contains the controller and worker programs and the Session
	  that bootstraps a process group and runs multiplications.

	This package holds the data model shared by all of them (Matrix and
	Vector), a sequential reference multiplication, the input data
	generator, and the error taxonomy.

	Partitioning

	Given a problem size N and P processes, every worker rank is assigned
	up to ceil(N/(P-1)) rows, taken from the front of the unassigned rows
	in increasing order. Ranks beyond the last populated one receive
	empty assignments. The assignment depends only on N and P, so every
	rank computes it independently; no assignment is ever transmitted.

	Gathering

	The gather primitive requires that all ranks contribute the same
	number of elements. Workers pad their partial results with zeros to
	the block size, and the controller contributes an explicit zero-filled
	placeholder block for rank 0. The controller then drops its own
	placeholder and trims the remainder to exactly N elements.
*/
package matvec
