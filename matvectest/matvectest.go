// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package matvectest provides utilities for testing code that uses
// matvec sessions. The utilities are intended strictly for unit tests.
package matvectest

import (
	"context"
	"testing"

	"github.com/grailbio/matvec"
	"github.com/grailbio/matvec/exec"
)

// Run multiplies m by v on a local session with the provided number of
// processes, including the controller, and returns the product. Errors
// are reported as fatal to t.
func Run(t testing.TB, m *matvec.Matrix, v matvec.Vector, procs int) matvec.Vector {
	t.Helper()
	sess := exec.Start(exec.Local, exec.Procs(procs))
	defer sess.Shutdown()
	w, err := sess.Multiply(context.Background(), m, v)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

// Equal reports an error to t if got and want differ, naming the first
// element at which they do.
func Equal(t testing.TB, got, want matvec.Vector) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("got %d elements, want %d", len(got), len(want))
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("element %d: got %d, want %d", i, got[i], want[i])
			return
		}
	}
}

// Check multiplies m by v with Run and compares the product with the
// sequential reference.
func Check(t testing.TB, m *matvec.Matrix, v matvec.Vector, procs int) {
	t.Helper()
	want, err := matvec.Multiply(m, v)
	if err != nil {
		t.Fatal(err)
	}
	Equal(t, Run(t, m, v, procs), want)
}
