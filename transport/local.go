// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/matvec/ctxsync"
	"github.com/grailbio/matvec/stats"
	"golang.org/x/sync/errgroup"
)

type route struct {
	src, dst int
	tag      Tag
}

// LocalGroup is a Group whose ranks are goroutines in the current
// process. Payloads are copied on send, so ranks never share memory.
type LocalGroup struct {
	procs   int
	limiter *limiter.Limiter
	stats   []*stats.Map

	mu     sync.Mutex
	cond   *ctxsync.Cond
	boxes  map[route][][]int64
	closed bool
}

// NewLocalGroup returns a group of procs ranks. At most maxprocs worker
// programs run concurrently; if maxprocs is not positive, GOMAXPROCS is
// used.
func NewLocalGroup(procs, maxprocs int) *LocalGroup {
	if procs < 1 {
		panic("transport.NewLocalGroup: procs < 1")
	}
	if maxprocs <= 0 {
		maxprocs = runtime.GOMAXPROCS(0)
	}
	g := &LocalGroup{
		procs:   procs,
		limiter: limiter.New(),
		stats:   make([]*stats.Map, procs),
		boxes:   make(map[route][][]int64),
	}
	g.cond = ctxsync.NewCond(&g.mu)
	g.limiter.Release(maxprocs)
	for i := range g.stats {
		g.stats[i] = stats.NewMap()
	}
	return g
}

// Size implements Group.
func (g *LocalGroup) Size() int { return g.procs }

// Root implements Group.
func (g *LocalGroup) Root() Transport { return g.Endpoint(0) }

// Endpoint returns the transport for the provided rank.
func (g *LocalGroup) Endpoint(rank int) Transport {
	if rank < 0 || rank >= g.procs {
		panic(fmt.Sprintf("transport.Endpoint: rank %d out of range [0, %d)", rank, g.procs))
	}
	return &localEndpoint{g, rank}
}

// Reset implements Group.
func (g *LocalGroup) Reset(ctx context.Context) error {
	g.mu.Lock()
	g.boxes = make(map[route][][]int64)
	g.mu.Unlock()
	return nil
}

// Launch implements Group. Each worker rank runs the program in its
// own goroutine, subject to the group's concurrency limit.
func (g *LocalGroup) Launch(ctx context.Context, program string, problemSize int) error {
	fn, err := lookupProgram(program)
	if err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	for rank := 1; rank < g.procs; rank++ {
		rank := rank
		eg.Go(func() error {
			if err := g.limiter.Acquire(ctx, 1); err != nil {
				return err
			}
			defer g.limiter.Release(1)
			env := Env{
				Transport:   g.Endpoint(rank),
				ProblemSize: problemSize,
				Stats:       g.stats[rank],
			}
			if err := runProgram(ctx, fn, env); err != nil {
				return errors.E(fmt.Sprintf("rank %d", rank), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Stats implements Group.
func (g *LocalGroup) Stats(ctx context.Context) (stats.Values, error) {
	vals := make(stats.Values)
	for _, m := range g.stats[1:] {
		vals.Merge(m.Snapshot())
	}
	return vals, nil
}

// Close implements Group. Pending and future operations on a closed
// group fail.
func (g *LocalGroup) Close() error {
	g.mu.Lock()
	g.closed = true
	g.boxes = nil
	g.cond.Broadcast()
	g.mu.Unlock()
	return nil
}

var errClosed = errors.E(errors.Invalid, "transport: group closed")

func (g *LocalGroup) put(r route, payload []int64) error {
	p := make([]int64, len(payload))
	copy(p, payload)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errClosed
	}
	g.boxes[r] = append(g.boxes[r], p)
	g.cond.Broadcast()
	return nil
}

func (g *LocalGroup) take(ctx context.Context, r route) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.cond.WaitFor(ctx, func() bool { return g.closed || len(g.boxes[r]) > 0 })
	if err != nil {
		return nil, err
	}
	if g.closed {
		return nil, errClosed
	}
	q := g.boxes[r]
	p := q[0]
	q[0] = nil
	if len(q) == 1 {
		delete(g.boxes, r)
	} else {
		g.boxes[r] = q[1:]
	}
	return p, nil
}

type localEndpoint struct {
	g    *LocalGroup
	rank int
}

func (e *localEndpoint) Rank() int { return e.rank }
func (e *localEndpoint) Size() int { return e.g.procs }

func (e *localEndpoint) Send(ctx context.Context, payload []int64, dst int, tag Tag) error {
	if err := checkRank(e, dst); err != nil {
		return err
	}
	return e.g.put(route{e.rank, dst, tag}, payload)
}

func (e *localEndpoint) Receive(ctx context.Context, src int, tag Tag) ([]int64, error) {
	if err := checkRank(e, src); err != nil {
		return nil, err
	}
	return e.g.take(ctx, route{src, e.rank, tag})
}

func (e *localEndpoint) Gather(ctx context.Context, local []int64, root int) ([]int64, error) {
	return gather(ctx, e, local, root)
}
