// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/matvec/stats"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"golang.org/x/sync/errgroup"
)

func init() {
	// Each worker receives a payload on TagVector, scales it by its
	// rank, and gathers the result at the root.
	RegisterProgram("test.scale", func(ctx context.Context, env Env) error {
		p, err := env.Receive(ctx, 0, TagVector)
		if err != nil {
			return err
		}
		for i := range p {
			p[i] *= int64(env.Rank())
		}
		env.Stats.Int(stats.Rows).Add(int64(len(p)))
		_, err = env.Gather(ctx, p, 0)
		return err
	})
	RegisterProgram("test.fail", func(ctx context.Context, env Env) error {
		if env.Rank() == 1 {
			return errors.E(errors.Invalid, "rank 1 failed")
		}
		// Other ranks wait for a message that never arrives.
		_, err := env.Receive(ctx, 0, TagRowBlock)
		return err
	})
	RegisterProgram("test.panic", func(ctx context.Context, env Env) error {
		panic("boom")
	})
	RegisterProgram("test.uneven", func(ctx context.Context, env Env) error {
		_, err := env.Gather(ctx, make([]int64, env.Rank()), 0)
		return err
	})
}

// testScale runs the test.scale program on g and checks the gathered
// result.
func testScale(t *testing.T, g Group) {
	t.Helper()
	ctx := context.Background()
	assert.NoError(t, g.Reset(ctx))
	root := g.Root()
	expect.EQ(t, root.Rank(), 0)
	expect.EQ(t, root.Size(), g.Size())

	payload := []int64{1, 2, 3}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Launch(ctx, "test.scale", len(payload)) })
	var got []int64
	eg.Go(func() error {
		for rank := 1; rank < g.Size(); rank++ {
			if err := root.Send(ctx, payload, rank, TagVector); err != nil {
				return err
			}
		}
		// Modifying the payload after sending must not affect receivers.
		payload[0] = 100
		var err error
		got, err = root.Gather(ctx, []int64{0, 0, 0}, 0)
		return err
	})
	assert.NoError(t, eg.Wait())

	want := []int64{0, 0, 0}
	for rank := 1; rank < g.Size(); rank++ {
		r := int64(rank)
		want = append(want, r, 2*r, 3*r)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	vals, err := g.Stats(context.Background())
	assert.NoError(t, err)
	if got, want := vals[stats.Rows], int64(3*(g.Size()-1)); got < want {
		t.Errorf("got %v, want at least %v", got, want)
	}
}

func testFailure(t *testing.T, g Group) {
	t.Helper()
	ctx := context.Background()
	assert.NoError(t, g.Reset(ctx))
	err := g.Launch(ctx, "test.fail", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	err = g.Launch(ctx, "test.panic", 0)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected panic to be reported, got %v", err)
	}
	err = g.Launch(ctx, "no.such.program", 0)
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("expected not exist error, got %v", err)
	}
}

func testUneven(t *testing.T, g Group) {
	t.Helper()
	ctx := context.Background()
	assert.NoError(t, g.Reset(ctx))
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Launch(ctx, "test.uneven", 0) })
	var gerr error
	eg.Go(func() error {
		_, gerr = g.Root().Gather(ctx, nil, 0)
		return nil
	})
	assert.NoError(t, eg.Wait())
	if !errors.Is(errors.Invalid, gerr) {
		t.Errorf("expected invalid gather, got %v", gerr)
	}
}

func TestTag(t *testing.T) {
	expect.EQ(t, TagRowBlock.String(), "rowblock")
	expect.EQ(t, TagVector.String(), "vector")
	expect.EQ(t, TagResponse.String(), "response")
	expect.EQ(t, Tag(9).String(), "tag(9)")
}

func TestRegisterProgramTwice(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	RegisterProgram("test.scale", nil)
}
