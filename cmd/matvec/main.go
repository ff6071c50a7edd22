// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command matvec multiplies a generated square matrix by a generated
// vector on a group of processes: a controller that partitions the
// matrix by rows, and workers that each compute the dot products of
// their rows with the vector.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/matvec"
	"github.com/grailbio/matvec/exec"
	"github.com/grailbio/matvec/matveccmd"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: matvec [flags]
       matvec setup-ec2 [-securitygroup name]

Matvec generates a size-by-size matrix and a vector of the same length,
with elements drawn uniformly from [0, %d), and multiplies them on a
group of processes. The controller partitions the matrix rows into
contiguous blocks, one per worker, and gathers the workers' results.

Command setup-ec2 configures AWS EC2 so that workers may run there.

The flags are:
`, matvec.MaxGenerated)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup-ec2" {
		setupEC2(os.Args[2:])
		return
	}
	var (
		size       = flag.Int("size", 1000, "number of rows and columns of the matrix")
		seed       = flag.Int64("seed", 0, "seed of the generated inputs; 0 uses the current time")
		show       = flag.Bool("print", false, "print the inputs and the result")
		sequential = flag.Bool("sequential", false, "multiply in the current process only")
		verify     = flag.Bool("verify", false, "verify the result against independent products")
	)
	flag.Usage = usage
	matveccmd.Main(func(sess *exec.Session, args []string) error {
		if len(args) != 0 {
			flag.Usage()
		}
		if *size < 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("negative size %d", *size))
		}
		if *seed == 0 {
			*seed = time.Now().UnixNano()
		}
		log.Printf("seed %d", *seed)
		rng := rand.New(rand.NewSource(*seed))
		m := matvec.GenerateMatrix(*size, rng)
		v := matvec.GenerateVector(*size, rng)
		if *show {
			fmt.Printf("matrix:\n%s", m)
			fmt.Printf("vector:\n%s\n", v)
		}

		w, err := multiply(sess, m, v, *sequential)
		if err != nil {
			return err
		}
		if *show {
			fmt.Printf("result:\n%s\n", w)
		}
		if *verify {
			if err := check(m, v, w); err != nil {
				return err
			}
			log.Print("result verified")
		}
		return nil
	})
}

// multiply computes m times v, on the session's group or, if
// sequential is set, in the current process only. Multiply logs the
// elapsed time. The session's context bounds the run.
func multiply(sess *exec.Session, m *matvec.Matrix, v matvec.Vector, sequential bool) (matvec.Vector, error) {
	start := time.Now()
	if sequential {
		w, err := matvec.Multiply(m, v)
		if err == nil {
			log.Printf("multiplied %dx%d sequentially in %s", m.Rows(), m.Cols(), time.Since(start))
		}
		return w, err
	}
	w, err := sess.Multiply(sess, m, v)
	if err != nil {
		return nil, err
	}
	log.Printf("multiplied %dx%d on %d processes in %s", m.Rows(), m.Cols(), sess.Procs(), time.Since(start))
	if vals, err := sess.Stats(sess); err == nil {
		log.Printf("stats: %s", vals)
	}
	return w, nil
}
