// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/bigmachine"
)

func init() {
	config.Register("matvec", func(inst *config.Constructor) {
		var (
			procs, maxprocs int
			system          bigmachine.System
		)
		inst.IntVar(&procs, "procs", 0, "number of processes, including the controller; 0 uses GOMAXPROCS+1")
		inst.IntVar(&maxprocs, "max-procs", 0, "maximum number of concurrently computing local workers")
		inst.InstanceVar(&system, "system", "", "the bigmachine system used for workers; empty runs workers locally")
		inst.Doc = "matvec configures the distributed matrix-vector runtime"
		inst.New = func() (interface{}, error) {
			opts := []Option{MaxProcs(maxprocs)}
			if procs > 0 {
				opts = append(opts, Procs(procs))
			}
			if system != nil {
				opts = append(opts, Bigmachine(system))
			} else {
				opts = append(opts, Local)
			}
			return Start(opts...), nil
		}
	})
}
