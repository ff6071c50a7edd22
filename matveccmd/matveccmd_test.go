// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package matveccmd

import (
	"context"
	"flag"
	"io/ioutil"
	"testing"

	"github.com/grailbio/matvec"
	"github.com/grailbio/matvec/matvecflags"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestInit(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	var f matvecflags.Flags
	matvecflags.RegisterFlags(fs, &f, "")
	assert.NoError(t, fs.Parse([]string{"-procs=3"}))
	f.HTTPAddress.Address = ""
	sess, err := Init(f)
	assert.NoError(t, err)
	defer sess.Shutdown()
	expect.EQ(t, sess.Procs(), 3)
	if sess.Status() == nil {
		t.Fatal("expected session status")
	}
	m := matvec.NewMatrix(2, 2)
	m.Set(0, 0, 2)
	m.Set(1, 1, 3)
	got, err := sess.Multiply(context.Background(), m, matvec.Vector{5, 7})
	assert.NoError(t, err)
	expect.EQ(t, got, matvec.Vector{10, 21})
}
