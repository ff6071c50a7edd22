// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/matvec/ctxsync"
	"github.com/grailbio/matvec/rowcodec"
	"github.com/grailbio/matvec/stats"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(&endpoint{})
}

// serviceName is the name under which the endpoint service is
// registered on each machine.
const serviceName = "Rank"

// Message is the unit of transfer between the root and a machine.
type message struct {
	Src     int
	Tag     Tag
	Payload []int64
	// Sum is the rowcodec.Checksum of Payload.
	Sum uint32
}

func newMessage(src int, tag Tag, payload []int64) message {
	return message{Src: src, Tag: tag, Payload: payload, Sum: rowcodec.Checksum(payload)}
}

func (m message) verify() error {
	if sum := rowcodec.Checksum(m.Payload); sum != m.Sum {
		return errors.E(errors.Integrity, fmt.Sprintf("%s payload from rank %d: checksum %x, want %x", m.Tag, m.Src, sum, m.Sum))
	}
	return nil
}

// RunRequest contains everything a machine needs to run a program as
// one rank of a group.
type runRequest struct {
	Program     string
	Rank, Size  int
	ProblemSize int
}

// MachineGroup is a Group whose worker ranks each run on a bigmachine
// machine; rank r runs on the group's (r-1)th machine. The group has a
// star topology: the root exchanges messages with every worker rank,
// but workers may only address the root.
type MachineGroup struct {
	machines []*bigmachine.Machine
	root     *machineRoot
}

// StartMachines starts procs-1 machines on b, one for each worker rank
// of a group of procs ranks, and returns the group once all of them are
// running. StartMachines fails if any machine fails to start. Machine
// status is reported to group, which may be nil.
func StartMachines(ctx context.Context, b *bigmachine.B, procs int, group *status.Group, params ...bigmachine.Param) (*MachineGroup, error) {
	if procs < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("transport.StartMachines: procs %d < 1", procs))
	}
	var machines []*bigmachine.Machine
	if n := procs - 1; n > 0 {
		params = append([]bigmachine.Param{bigmachine.Services{serviceName: &endpoint{}}}, params...)
		var err error
		machines, err = b.Start(ctx, n, params...)
		if err != nil {
			return nil, err
		}
	}
	log.Printf("waiting for %d machines", len(machines))
	g, ctx := errgroup.WithContext(ctx)
	for i := range machines {
		m, rank := machines[i], i+1
		task := group.Start()
		task.Print("waiting for machine to boot")
		g.Go(func() error {
			defer task.Done()
			select {
			case <-m.Wait(bigmachine.Running):
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := m.Err(); err != nil {
				log.Printf("machine %s failed to start: %v", m.Addr, err)
				task.Printf("failed to start: %v", err)
				return errors.E(fmt.Sprintf("rank %d", rank), err)
			}
			task.Title(fmt.Sprintf("rank %d", rank))
			task.Print(m.Addr)
			log.Printf("machine %v is ready for rank %d", m.Addr, rank)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, m := range machines {
			m.Cancel()
		}
		return nil, err
	}
	return &MachineGroup{
		machines: machines,
		root:     &machineRoot{machines: machines},
	}, nil
}

// Size implements Group.
func (g *MachineGroup) Size() int { return len(g.machines) + 1 }

// Root implements Group.
func (g *MachineGroup) Root() Transport { return g.root }

// each calls fn for every worker rank concurrently.
func (g *MachineGroup) each(ctx context.Context, fn func(ctx context.Context, rank int, m *bigmachine.Machine) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for i := range g.machines {
		rank, m := i+1, g.machines[i]
		eg.Go(func() error {
			if err := fn(ctx, rank, m); err != nil {
				return errors.E(fmt.Sprintf("rank %d (%s)", rank, m.Addr), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Reset implements Group.
func (g *MachineGroup) Reset(ctx context.Context) error {
	return g.each(ctx, func(ctx context.Context, _ int, m *bigmachine.Machine) error {
		return m.RetryCall(ctx, serviceName+".Reset", struct{}{}, nil)
	})
}

// Launch implements Group.
func (g *MachineGroup) Launch(ctx context.Context, program string, problemSize int) error {
	if _, err := lookupProgram(program); err != nil {
		return err
	}
	return g.each(ctx, func(ctx context.Context, rank int, m *bigmachine.Machine) error {
		req := runRequest{
			Program:     program,
			Rank:        rank,
			Size:        g.Size(),
			ProblemSize: problemSize,
		}
		return m.Call(ctx, serviceName+".Run", req, nil)
	})
}

// Stats implements Group.
func (g *MachineGroup) Stats(ctx context.Context) (stats.Values, error) {
	var (
		mu    sync.Mutex
		total = make(stats.Values)
	)
	err := g.each(ctx, func(ctx context.Context, _ int, m *bigmachine.Machine) error {
		var vals stats.Values
		if err := m.RetryCall(ctx, serviceName+".Stats", struct{}{}, &vals); err != nil {
			return err
		}
		mu.Lock()
		total.Merge(vals)
		mu.Unlock()
		return nil
	})
	return total, err
}

// Close implements Group. Close cancels the group's machines.
func (g *MachineGroup) Close() error {
	for _, m := range g.machines {
		m.Cancel()
	}
	return nil
}

// MachineRoot is rank 0's transport in a MachineGroup.
type machineRoot struct {
	machines []*bigmachine.Machine
}

func (r *machineRoot) Rank() int { return 0 }
func (r *machineRoot) Size() int { return len(r.machines) + 1 }

func (r *machineRoot) machine(rank int) (*bigmachine.Machine, error) {
	if rank < 1 || rank > len(r.machines) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("rank %d out of range [1, %d)", rank, r.Size()))
	}
	return r.machines[rank-1], nil
}

func (r *machineRoot) Send(ctx context.Context, payload []int64, dst int, tag Tag) error {
	m, err := r.machine(dst)
	if err != nil {
		return err
	}
	return m.Call(ctx, serviceName+".Deliver", newMessage(0, tag, payload), nil)
}

func (r *machineRoot) Receive(ctx context.Context, src int, tag Tag) ([]int64, error) {
	m, err := r.machine(src)
	if err != nil {
		return nil, err
	}
	var msg message
	if err := m.Call(ctx, serviceName+".Take", tag, &msg); err != nil {
		return nil, err
	}
	if err := msg.verify(); err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

func (r *machineRoot) Gather(ctx context.Context, local []int64, root int) ([]int64, error) {
	if root != 0 {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("gather to rank %d: machine groups gather at rank 0", root))
	}
	return gather(ctx, r, local, root)
}

// Endpoint is the bigmachine service that hosts a worker rank. The
// root deposits messages into the endpoint's inbox with Deliver; the
// rank's program deposits messages for the root into its outbox, from
// which the root retrieves them with Take.
type endpoint struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	mu     sync.Mutex
	cond   *ctxsync.Cond
	inbox  map[Tag][][]int64
	outbox map[Tag][]message
	stats  *stats.Map
}

func (e *endpoint) Init(b *bigmachine.B) error {
	e.cond = ctxsync.NewCond(&e.mu)
	e.inbox = make(map[Tag][][]int64)
	e.outbox = make(map[Tag][]message)
	e.stats = stats.NewMap()
	return nil
}

// Deliver deposits a message from the root into the inbox.
func (e *endpoint) Deliver(ctx context.Context, msg message, _ *struct{}) error {
	if err := msg.verify(); err != nil {
		return err
	}
	e.mu.Lock()
	e.inbox[msg.Tag] = append(e.inbox[msg.Tag], msg.Payload)
	e.cond.Broadcast()
	e.mu.Unlock()
	return nil
}

// Take returns the next message in the outbox with the provided tag,
// waiting for one to arrive if necessary.
func (e *endpoint) Take(ctx context.Context, tag Tag, reply *message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cond.WaitFor(ctx, func() bool { return len(e.outbox[tag]) > 0 }); err != nil {
		return err
	}
	*reply = e.outbox[tag][0]
	e.outbox[tag] = e.outbox[tag][1:]
	return nil
}

// Reset discards all undelivered messages.
func (e *endpoint) Reset(ctx context.Context, _ struct{}, _ *struct{}) error {
	e.mu.Lock()
	e.inbox = make(map[Tag][][]int64)
	e.outbox = make(map[Tag][]message)
	e.mu.Unlock()
	return nil
}

// Run runs a program as the requested rank. Run returns when the
// program returns.
func (e *endpoint) Run(ctx context.Context, req runRequest, _ *struct{}) error {
	fn, err := lookupProgram(req.Program)
	if err != nil {
		return err
	}
	log.Printf("running %s as rank %d of %d", req.Program, req.Rank, req.Size)
	env := Env{
		Transport:   &machineWorker{e: e, rank: req.Rank, size: req.Size},
		ProblemSize: req.ProblemSize,
		Stats:       e.stats,
	}
	err = runProgram(ctx, fn, env)
	if err != nil {
		log.Printf("rank %d: %s: %v", req.Rank, req.Program, err)
	}
	return err
}

// Stats returns a snapshot of the endpoint's counters.
func (e *endpoint) Stats(ctx context.Context, _ struct{}, vals *stats.Values) error {
	*vals = e.stats.Snapshot()
	return nil
}

// MachineWorker is a worker rank's transport in a MachineGroup.
type machineWorker struct {
	e          *endpoint
	rank, size int
}

func (w *machineWorker) Rank() int { return w.rank }
func (w *machineWorker) Size() int { return w.size }

func (w *machineWorker) Send(ctx context.Context, payload []int64, dst int, tag Tag) error {
	if dst != 0 {
		return errors.E(errors.NotSupported, fmt.Sprintf("rank %d: send to rank %d: workers may only send to rank 0", w.rank, dst))
	}
	p := make([]int64, len(payload))
	copy(p, payload)
	w.e.mu.Lock()
	w.e.outbox[tag] = append(w.e.outbox[tag], newMessage(w.rank, tag, p))
	w.e.cond.Broadcast()
	w.e.mu.Unlock()
	return nil
}

func (w *machineWorker) Receive(ctx context.Context, src int, tag Tag) ([]int64, error) {
	if src != 0 {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("rank %d: receive from rank %d: workers may only receive from rank 0", w.rank, src))
	}
	w.e.mu.Lock()
	defer w.e.mu.Unlock()
	if err := w.e.cond.WaitFor(ctx, func() bool { return len(w.e.inbox[tag]) > 0 }); err != nil {
		return nil, err
	}
	p := w.e.inbox[tag][0]
	w.e.inbox[tag] = w.e.inbox[tag][1:]
	return p, nil
}

func (w *machineWorker) Gather(ctx context.Context, local []int64, root int) ([]int64, error) {
	if root != 0 {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("gather to rank %d: machine groups gather at rank 0", root))
	}
	return gather(ctx, w, local, root)
}
