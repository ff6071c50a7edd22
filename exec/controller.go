// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/matvec"
	"github.com/grailbio/matvec/partition"
	"github.com/grailbio/matvec/rowcodec"
	"github.com/grailbio/matvec/transport"
)

// A Controller drives a multiplication from rank 0. It owns the matrix
// and the vector; neither is modified.
type Controller struct {
	// Transport is rank 0's transport.
	Transport transport.Transport
	Matrix    *matvec.Matrix
	Vector    matvec.Vector
	// Status, if not nil, receives progress updates.
	Status *status.Task
}

// Run partitions the matrix's rows among the worker ranks, sends each
// worker with a non-empty assignment its rows and a copy of the vector,
// and gathers the partial results. Run returns the product vector,
// whose i'th element is the dot product of the matrix's i'th row with
// the vector.
//
// Run must be run concurrently with the worker program on the other
// ranks of the group.
func (c *Controller) Run(ctx context.Context) (matvec.Vector, error) {
	var (
		t    = c.Transport
		m    = c.Matrix
		size = m.Rows()
	)
	if t.Rank() != 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("controller running as rank %d", t.Rank()))
	}
	if m.Cols() != len(c.Vector) {
		return nil, matvec.DimensionMismatch("matrix has %d columns, vector has length %d", m.Cols(), len(c.Vector))
	}
	asg, err := partition.Partition(size, t.Size())
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("controller: %s", asg)
	c.Status.Printf("scattering %s", asg)
	vector := rowcodec.EncodeVector(c.Vector)
	for _, rank := range asg.Ranks() {
		rows := asg.Rows(rank)
		if len(rows) == 0 {
			continue
		}
		block, err := rowcodec.EncodeRows(m, rows)
		if err != nil {
			return nil, err
		}
		if err := t.Send(ctx, block, rank, transport.TagRowBlock); err != nil {
			return nil, errors.E(fmt.Sprintf("send rows to rank %d", rank), err)
		}
		if err := t.Send(ctx, vector, rank, transport.TagVector); err != nil {
			return nil, errors.E(fmt.Sprintf("send vector to rank %d", rank), err)
		}
	}

	// Rank 0 holds no rows. It contributes a zero-filled placeholder
	// block so that every rank's contribution has the same length, and
	// the placeholder is dropped from the gathered result.
	c.Status.Print("gathering")
	n := asg.BlockSize()
	gathered, err := t.Gather(ctx, make([]int64, n), 0)
	if err != nil {
		return nil, errors.E("gather", err)
	}
	if want := n * t.Size(); len(gathered) != want {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gathered %d elements, want %d", len(gathered), want))
	}
	// Rank r's block occupies gathered[r*n:(r+1)*n] and holds rows
	// [(r-1)*n, r*n), so rows start right after the placeholder. Blocks
	// past the last row are padding.
	result := matvec.Vector(gathered[n : n+size : n+size])
	c.Status.Printf("done: %d rows", size)
	return result, nil
}
