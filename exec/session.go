// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec implements the distributed multiplication: the
// controller that runs on rank 0, the worker program that runs on the
// remaining ranks, and the session that owns the process group and runs
// the two together.
package exec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/diagnostic/dump"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/eventlog"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/matvec"
	"github.com/grailbio/matvec/stats"
	"github.com/grailbio/matvec/transport"
	"golang.org/x/sync/errgroup"
)

// Session runs multiplications on a process group. The group has a
// fixed number of processes: rank 0 is the controller, run in the
// calling process, and the remaining ranks are workers.
//
// With the local executor, workers are goroutines and a fresh group is
// created for every multiplication. With the bigmachine executor,
// workers are bigmachine machines, started on first use and reused by
// later multiplications. Because bigmachine workers run copies of the
// current binary, Start does not return in them.
//
//	func main() {
//		sess := exec.Start(exec.Procs(8))
//		defer sess.Shutdown()
//		w, err := sess.Multiply(ctx, m, v)
//		...
//	}
type Session struct {
	context.Context
	index    int32
	procs    int
	maxprocs int
	system   bigmachine.System
	params   []bigmachine.Param
	status   *status.Status
	eventer  eventlog.Eventer

	b *bigmachine.B

	// mu serializes multiplications: a group runs one program at a
	// time.
	mu       sync.Mutex
	machines *transport.MachineGroup
	runs     int

	// statsMu guards stats, which are read while a multiplication
	// runs.
	statsMu sync.Mutex
	stats   stats.Values
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session to run workers as goroutines in the
// current process.
var Local Option = func(s *Session) {
	s.system = nil
}

// Bigmachine configures a session to run each worker on a machine of
// the provided bigmachine system. If any params are provided, they are
// applied to each machine.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.system = system
		s.params = params
	}
}

// Procs configures the number of processes in the group, including the
// controller. A group of n processes has n-1 workers.
func Procs(n int) Option {
	if n < 1 {
		panic("exec.Procs: n < 1")
	}
	return func(s *Session) {
		s.procs = n
	}
}

// MaxProcs bounds the number of local workers that compute
// concurrently. It has no effect on bigmachine sessions.
func MaxProcs(n int) Option {
	return func(s *Session) {
		s.maxprocs = n
	}
}

// Status configures the session with a status object to which
// multiplication progress is reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status

		name := fmt.Sprintf("matvec-%02d-status", s.index)
		dump.Register(name, func(ctx context.Context, w io.Writer) error {
			return status.Marshal(w)
		})
	}
}

// Eventer configures the session with an Eventer that will be used to
// log session events.
func Eventer(e eventlog.Eventer) Option {
	return func(s *Session) {
		s.eventer = e
	}
}

// nextSessionIndex is the index of the next session that will be
// started by Start.
var nextSessionIndex int32

// Start creates and starts a new session, configuring it according to
// the provided options. By default, a session runs local workers in a
// group of runtime.GOMAXPROCS(0)+1 processes.
func Start(options ...Option) *Session {
	s := &Session{
		Context: backgroundcontext.Get(),
		index:   atomic.AddInt32(&nextSessionIndex, 1) - 1,
		eventer: eventlog.Nop{},
		stats:   make(stats.Values),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.procs == 0 {
		s.procs = runtime.GOMAXPROCS(0) + 1
	}
	if s.system != nil {
		s.b = bigmachine.Start(s.system)
	}
	s.eventer.Event("matvec:sessionStart",
		"command", command(),
		"executorType", s.executorName(),
		"procs", s.procs,
		"maxProcs", s.maxprocs)
	return s
}

func (s *Session) executorName() string {
	if s.system == nil {
		return "local"
	}
	return "bigmachine:" + s.system.Name()
}

// Procs returns the number of processes in the session's group,
// including the controller.
func (s *Session) Procs() int {
	return s.procs
}

// Multiply computes the product of matrix m and vector v on the
// session's process group. The controller and the workers run
// concurrently; an error on any rank cancels the others and is
// returned. Concurrent calls are serialized.
func (s *Session) Multiply(ctx context.Context, m *matvec.Matrix, v matvec.Vector) (matvec.Vector, error) {
	if m.Cols() != len(v) {
		return nil, matvec.DimensionMismatch("matrix has %d columns, vector has length %d", m.Cols(), len(v))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	var task *status.Task
	if s.status != nil {
		task = s.status.Group("matvec").Startf("multiply-%d: %dx%d on %d procs", s.runs, m.Rows(), m.Cols(), s.procs)
		defer task.Done()
	}

	group, release, err := s.group(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := group.Reset(ctx); err != nil {
		return nil, errors.E("reset group", err)
	}
	start := time.Now()
	var result matvec.Vector
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return group.Launch(gctx, WorkerProgram, m.Rows())
	})
	g.Go(func() (err error) {
		c := &Controller{
			Transport: group.Root(),
			Matrix:    m,
			Vector:    v,
			Status:    task,
		}
		result, err = c.Run(gctx)
		return
	})
	err = g.Wait()
	elapsed := time.Since(start)
	s.eventer.Event("matvec:multiply",
		"rows", m.Rows(),
		"cols", m.Cols(),
		"procs", group.Size(),
		"durationMs", elapsed.Nanoseconds()/1e6,
		"ok", err == nil)
	if err != nil {
		log.Error.Printf("multiply-%d: %v", s.runs, err)
		return nil, err
	}
	vals, err := group.Stats(ctx)
	if err != nil {
		log.Error.Printf("multiply-%d: stats: %v", s.runs, err)
	} else {
		// Machine groups report cumulative counters.
		s.statsMu.Lock()
		if s.machines == nil {
			s.stats.Merge(vals)
		} else {
			s.stats = vals
		}
		s.statsMu.Unlock()
	}
	log.Debug.Printf("multiply-%d: %dx%d in %s", s.runs, m.Rows(), m.Cols(), elapsed)
	return result, nil
}

// group returns the process group for the next multiplication, and a
// function to be called once the multiplication is done.
func (s *Session) group(ctx context.Context) (transport.Group, func(), error) {
	if s.b == nil {
		g := transport.NewLocalGroup(s.procs, s.maxprocs)
		return g, func() {
			if err := g.Close(); err != nil {
				log.Error.Printf("close local group: %v", err)
			}
		}, nil
	}
	if s.machines == nil {
		var sg *status.Group
		if s.status != nil {
			sg = s.status.Group("bigmachine")
		}
		machines, err := transport.StartMachines(ctx, s.b, s.procs, sg, s.params...)
		if err != nil {
			return nil, nil, err
		}
		s.machines = machines
	}
	return s.machines, func() {}, nil
}

// Stats returns the counters accumulated by the session's workers over
// all completed multiplications.
func (s *Session) Stats(ctx context.Context) (stats.Values, error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats.Copy(), nil
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machines != nil {
		if err := s.machines.Close(); err != nil {
			log.Error.Printf("shutdown: %v", err)
		}
		s.machines = nil
	}
	if s.b != nil {
		s.b.Shutdown()
	}
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// HandleDebug registers the session's debug handlers, including those
// of its bigmachine instance, if any.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	if s.b != nil {
		s.b.HandleDebug(handler)
	}
	handler.HandleFunc("/debug/matvec", func(w http.ResponseWriter, r *http.Request) {
		vals, err := s.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "procs: %d\nexecutor: %s\nstats: %s\n", s.procs, s.executorName(), vals)
	})
}

// command returns the command line of the current process, quoted so
// that it can be pasted into sh.
func command() string {
	args := make([]string, len(os.Args))
	for i, arg := range os.Args {
		args[i] = "'" + strings.Replace(arg, "'", `'\''`, -1) + "'"
	}
	return strings.Join(args, " ")
}
