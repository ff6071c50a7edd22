// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/matvec"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := matvec.GenerateMatrix(50, rng)
	v := matvec.GenerateVector(50, rng)
	w, err := matvec.Multiply(m, v)
	assert.NoError(t, err)
	assert.NoError(t, check(m, v, w))
	expect.EQ(t, dense(m, v), w)

	w[7]++
	if err := check(m, v, w); !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error, got %v", err)
	}
	if err := check(m, v, w[:10]); !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error, got %v", err)
	}
	assert.NoError(t, check(matvec.NewMatrix(0, 0), nil, nil))
}
