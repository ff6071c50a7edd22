// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package transport provides message passing among the ranks of a
// fixed process group. Ranks exchange flat integer payloads with
// blocking point-to-point sends and receives, multiplexed over a small
// set of tags, and collect results at a root rank with an all-to-one
// gather.
//
// Two implementations are provided: LocalGroup runs every rank as a
// goroutine in the current process, and MachineGroup runs each worker
// rank on its own bigmachine machine.
//
// Work is started on the worker ranks of a group by launching a
// program: a function registered by name with RegisterProgram. Since
// bigmachine workers run separate instances of the driver binary,
// programs must be registered during package initialization so that
// every binary agrees on them.
package transport

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/matvec/stats"
)

// A Tag distinguishes the logical channels multiplexed over a
// transport.
type Tag int

const (
	// TagRowBlock carries a worker's encoded row block.
	TagRowBlock Tag = 1
	// TagVector carries a copy of the vector.
	TagVector Tag = 2
	// TagResponse carries partial results back to the root.
	TagResponse Tag = 3
)

// String returns the tag's name.
func (t Tag) String() string {
	switch t {
	case TagRowBlock:
		return "rowblock"
	case TagVector:
		return "vector"
	case TagResponse:
		return "response"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// A Transport is a rank's view of its process group. All operations
// block until the transport has delivered or accepted the data, or
// until the context is done.
type Transport interface {
	// Rank returns the rank of the caller. Rank 0 is the controller.
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Send sends payload to rank dst on the provided tag. The payload
	// is copied; the caller may reuse it once Send returns.
	Send(ctx context.Context, payload []int64, dst int, tag Tag) error
	// Receive returns the next payload sent by rank src on the
	// provided tag. Payloads between a pair of ranks on a tag are
	// received in the order they were sent.
	Receive(ctx context.Context, src int, tag Tag) ([]int64, error)
	// Gather collects local from every rank at rank root. Every rank
	// must contribute the same number of elements. At the root, Gather
	// returns the contributions concatenated in increasing rank order;
	// at other ranks it returns nil.
	Gather(ctx context.Context, local []int64, root int) ([]int64, error)
}

// Env is the environment of a program running on a worker rank.
type Env struct {
	Transport
	// ProblemSize is the size of the problem the program works on, as
	// provided to Launch.
	ProblemSize int
	// Stats holds the rank's counters.
	Stats *stats.Map
}

// A ProgramFunc is the body of a program run on worker ranks.
type ProgramFunc func(ctx context.Context, env Env) error

var (
	mu       sync.Mutex
	programs = map[string]ProgramFunc{}
)

// RegisterProgram registers a program under the provided name so that
// it may be launched on a Group. RegisterProgram panics if the name is
// already registered.
func RegisterProgram(name string, fn ProgramFunc) {
	mu.Lock()
	defer mu.Unlock()
	if programs[name] != nil {
		log.Panicf("program %s is already registered", name)
	}
	programs[name] = fn
}

func lookupProgram(name string) (ProgramFunc, error) {
	mu.Lock()
	fn := programs[name]
	mu.Unlock()
	if fn == nil {
		return nil, errors.E(errors.NotExist, errors.Fatal, fmt.Sprintf("program %s is not registered", name))
	}
	return fn, nil
}

// runProgram runs fn, converting panics into fatal errors.
func runProgram(ctx context.Context, fn ProgramFunc, env Env) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.E(errors.Fatal, fmt.Errorf("panic while running program on rank %d: %v\n%s", env.Rank(), e, debug.Stack()))
		}
	}()
	env.Stats.Int(stats.Runs).Add(1)
	return fn(ctx, env)
}

// A Group is a fixed set of ranks. Rank 0 is driven by the caller
// through Root; the remaining ranks run programs started by Launch.
type Group interface {
	// Size returns the number of ranks in the group.
	Size() int
	// Root returns the transport for rank 0.
	Root() Transport
	// Reset discards any undelivered payloads. It must not be called
	// while a program is running.
	Reset(ctx context.Context) error
	// Launch runs the named program on every worker rank and returns
	// when all of them have returned. Launch returns the first error
	// returned by a program.
	Launch(ctx context.Context, program string, problemSize int) error
	// Stats returns the sum of the counters of all worker ranks.
	Stats(ctx context.Context) (stats.Values, error)
	// Close releases the group's resources.
	Close() error
}

// pointToPoint is the subset of a Transport on which Gather is built.
type pointToPoint interface {
	Rank() int
	Size() int
	Send(ctx context.Context, payload []int64, dst int, tag Tag) error
	Receive(ctx context.Context, src int, tag Tag) ([]int64, error)
}

func checkRank(t pointToPoint, rank int) error {
	if rank < 0 || rank >= t.Size() {
		return errors.E(errors.Invalid, fmt.Sprintf("rank %d out of range [0, %d)", rank, t.Size()))
	}
	return nil
}

// gather implements Gather on top of point-to-point messages on
// TagResponse.
func gather(ctx context.Context, t pointToPoint, local []int64, root int) ([]int64, error) {
	if err := checkRank(t, root); err != nil {
		return nil, err
	}
	if t.Rank() != root {
		return nil, t.Send(ctx, local, root, TagResponse)
	}
	out := make([]int64, 0, len(local)*t.Size())
	for rank := 0; rank < t.Size(); rank++ {
		if rank == root {
			out = append(out, local...)
			continue
		}
		payload, err := t.Receive(ctx, rank, TagResponse)
		if err != nil {
			return nil, err
		}
		if len(payload) != len(local) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("gather: rank %d contributed %d elements, root contributed %d", rank, len(payload), len(local)))
		}
		out = append(out, payload...)
	}
	return out, nil
}
