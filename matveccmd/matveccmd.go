// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package matveccmd provides the entry point of matvec command line
// tools. Main configures a session from a common set of flags and then
// invokes the tool's driver:
//
//	func main() {
//		size := flag.Int("size", 1000, "problem size")
//		matveccmd.Main(func(sess *exec.Session, args []string) error {
//			w, err := sess.Multiply(ctx, m, v)
//			...
//		})
//	}
package matveccmd

import (
	"flag"
	"fmt"
	"net/http"
	// Pprof is exposed on the diagnostic web server.
	_ "net/http/pprof"
	"os"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/matvec/exec"
	"github.com/grailbio/matvec/matvecflags"
)

// Main parses the command line flags, starts a session configured by
// them, and calls main with the session and the remaining arguments.
// Main does not return: if main returns an error, it is logged and the
// process exits with code 1; otherwise the process exits successfully.
//
// Unless disabled with -http="", Main serves status and debug pages,
// including pprof, on http.DefaultServeMux at the address given by
// -http.
func Main(main func(sess *exec.Session, args []string) error) {
	var f matvecflags.Flags
	matvecflags.RegisterFlags(flag.CommandLine, &f, "")
	log.AddFlags()
	flag.Parse()
	sess, err := Init(f)
	if err != nil {
		log.Fatal(err)
	}
	err = main(sess, flag.Args())
	sess.Shutdown()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// Init starts a session configured by the provided flags and arranges
// for its status to be displayed. If -system-help was given, Init
// prints the system help and exits.
func Init(f matvecflags.Flags) (*exec.Session, error) {
	if f.SystemHelp {
		printSystemHelp(f)
		os.Exit(0)
	}
	options, err := f.ExecOptions()
	if err != nil {
		return nil, err
	}
	sess := exec.Start(options...)
	DisplayStatus(f, sess)
	return sess, nil
}

func printSystemHelp(f matvecflags.Flags) {
	providers, profiles := matvecflags.ProvidersAndProfiles()
	w := f.Output()
	fmt.Fprintf(w, "%s\n", matvecflags.SystemHelpLong)
	fmt.Fprintf(w, "The available providers are: %s\n", strings.Join(providers, ", "))
	lines := make([]string, 0, len(profiles))
	for name, profile := range profiles {
		lines = append(lines, fmt.Sprintf("%s is shorthand for: %s\n", name, profile))
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprint(w, line)
	}
}

// DisplayStatus displays the session's status on the console, on the
// web page /debug/status of http.DefaultServeMux, or both, as
// requested by the flags.
func DisplayStatus(f matvecflags.Flags, sess *exec.Session) {
	if sess.Status() == nil {
		return
	}
	if f.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, sess.Status())
	}
	if f.HTTPAddress.Address == "" {
		return
	}
	sess.HandleDebug(http.DefaultServeMux)
	http.Handle("/debug/status", status.Handler(sess.Status()))
	go func() {
		log.Printf("http status at %v", f.HTTPAddress)
		if err := http.ListenAndServe(f.HTTPAddress.Address, nil); err != nil {
			log.Error.Printf("http status at %v: %v", f.HTTPAddress, err)
		}
	}()
}
