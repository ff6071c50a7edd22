// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package matvecconfig creates a matvec session from a shared
// configuration. It uses package github.com/grailbio/base/config and
// reads the default profile from $HOME/.matvec/config. The session is
// configured by the "matvec" instance, which accepts the parameters
// procs, max-procs, and system.
//
// For example, the profile
//
//	param matvec (
//		procs = 9
//		system = ec2system
//	)
//
// runs eight workers on EC2.
package matvecconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/matvec/exec"
)

// Path is the location of the profile read by Parse.
var Path = os.ExpandEnv("$HOME/.matvec/config")

// Parse registers the configuration flags, calls flag.Parse, and
// returns the session configured by the profile at Path and the flags.
// Parse panics if the session cannot be created. The returned function
// shuts the session down.
func Parse() (sess *exec.Session, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	config.Must("matvec", &sess)
	return sess, sess.Shutdown
}
