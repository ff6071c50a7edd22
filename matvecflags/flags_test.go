// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package matvecflags_test

import (
	"flag"
	"io/ioutil"
	"runtime"
	"testing"

	"github.com/grailbio/matvec/matvecflags"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestProviders(t *testing.T) {
	expect.EQ(t, (&matvecflags.Internal{}).Name(), "internal")
	expect.EQ(t, (&matvecflags.Local{}).Name(), "local")
	ec2 := &matvecflags.EC2{}
	expect.EQ(t, ec2.Name(), "ec2")
	if err := ec2.Set("x=y"); err == nil {
		t.Error("expected an error")
	}
	if err := ec2.Set("dataspace"); err == nil {
		t.Error("expected an error")
	}
	assert.NoError(t, ec2.Set("dataspace=122"))
	assert.NoError(t, ec2.Set("instance=m5.xlarge"))
	assert.NoError(t, ec2.Set("ondemand=true"))
	sys := ec2.System()
	expect.EQ(t, sys.Dataspace, uint(122))
	expect.EQ(t, sys.InstanceType, "m5.xlarge")
	expect.EQ(t, sys.OnDemand, true)

	names, _ := matvecflags.ProvidersAndProfiles()
	expect.EQ(t, names, []string{"ec2", "internal", "local"})
}

func TestSystemFlag(t *testing.T) {
	var f matvecflags.Flags
	assert.NoError(t, f.System.Set("local"))
	if err := f.System.Set("local:an=option"); err == nil {
		t.Error("expected an error")
	}
	assert.NoError(t, f.System.Set("internal"))
	if err := f.System.Set("internal:an=option"); err == nil {
		t.Error("expected an error")
	}
	if err := f.System.Set("nonexistent"); err == nil {
		t.Error("expected an error")
	}
	assert.NoError(t, f.System.Set("ec2:dataspace=200,rootsize=10"))
	expect.EQ(t, f.System.String(), "ec2:dataspace=200,rootsize=10")
	expect.EQ(t, f.System.Specified, true)
}

func TestSystemProfile(t *testing.T) {
	matvecflags.RegisterSystemProfile("test-profile", "ec2:instance=c5.large")
	var f matvecflags.Flags
	assert.NoError(t, f.System.Set("test-profile:ondemand=true"))
	expect.EQ(t, f.System.String(), "ec2:instance=c5.large,ondemand=true")
	_, profiles := matvecflags.ProvidersAndProfiles()
	expect.EQ(t, profiles["test-profile"], "ec2:instance=c5.large")
}

func TestRegisterFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	var f matvecflags.Flags
	matvecflags.RegisterFlags(fs, &f, "matvec-")
	expect.EQ(t, f.System.String(), "internal")
	expect.EQ(t, f.System.Specified, false)
	assert.NoError(t, fs.Parse([]string{"-matvec-procs=4", "-matvec-max-procs=2", "-matvec-console-status"}))
	expect.EQ(t, f.Procs, 4)
	expect.EQ(t, f.MaxProcs, 2)
	expect.EQ(t, f.ConsoleStatus, true)
	opts, err := f.ExecOptions()
	assert.NoError(t, err)
	// Status, system, procs, and max procs.
	expect.EQ(t, len(opts), 4)

	if got, want := (&matvecflags.Internal{}).DefaultProcs(), runtime.GOMAXPROCS(0)+1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	f.Procs = -1
	if _, err := f.ExecOptions(); err == nil {
		t.Error("expected an error")
	}
}
