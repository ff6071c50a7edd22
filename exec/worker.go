// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/matvec"
	"github.com/grailbio/matvec/compute"
	"github.com/grailbio/matvec/partition"
	"github.com/grailbio/matvec/rowcodec"
	"github.com/grailbio/matvec/stats"
	"github.com/grailbio/matvec/transport"
)

// WorkerProgram is the name of the worker program registered with
// package transport.
const WorkerProgram = "matvec.worker"

func init() {
	transport.RegisterProgram(WorkerProgram, func(ctx context.Context, env transport.Env) error {
		return (&Worker{Env: env}).Run(ctx)
	})
}

// A Worker computes the partial result of one worker rank. The
// environment's ProblemSize is the number of matrix rows.
type Worker struct {
	transport.Env
}

// Run receives the worker's row block and the vector, computes one dot
// product per row, and gathers the result, padded with zeros to the
// partition's block size, at rank 0. Ranks that were assigned no rows
// receive nothing and contribute a block of zeros.
func (w *Worker) Run(ctx context.Context) error {
	asg, err := partition.Partition(w.ProblemSize, w.Size())
	if err != nil {
		return err
	}
	rows := asg.Rows(w.Rank())
	var partial matvec.Vector
	if len(rows) > 0 {
		if partial, err = w.compute(ctx, len(rows)); err != nil {
			return err
		}
	}
	log.Debug.Printf("rank %d: computed %d rows", w.Rank(), len(partial))
	_, err = w.Gather(ctx, compute.Pad(partial, asg.BlockSize()), 0)
	return err
}

// compute receives and multiplies a block of n rows.
func (w *Worker) compute(ctx context.Context, n int) (matvec.Vector, error) {
	buf, err := w.Receive(ctx, 0, transport.TagRowBlock)
	if err != nil {
		return nil, err
	}
	vbuf, err := w.Receive(ctx, 0, transport.TagVector)
	if err != nil {
		return nil, err
	}
	v := rowcodec.DecodeVector(vbuf)
	var block [][]int64
	if len(v) == 0 && len(buf) == 0 {
		// Rows of width zero.
		block = make([][]int64, n)
	} else if block, err = rowcodec.DecodeRows(buf, len(v)); err != nil {
		return nil, err
	}
	if len(block) != n {
		return nil, matvec.MalformedRowBuffer("rank %d: received %d rows, assigned %d", w.Rank(), len(block), n)
	}
	partial, err := compute.DotProducts(block, v)
	if err != nil {
		return nil, err
	}
	w.Stats.Int(stats.Rows).Add(int64(n))
	w.Stats.Int(stats.Cells).Add(int64(len(buf)))
	return partial, nil
}
