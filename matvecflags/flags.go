// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package matvecflags provides the command line flags that configure a
// matvec session: the system on which workers run, the size of the
// process group, and status reporting.
package matvecflags

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/matvec/exec"
)

var (
	mu        sync.Mutex
	providers = map[string]Provider{} // protected by mu
	profiles  = map[string]string{}   // protected by mu
)

// Provider provides the systems on which worker ranks run.
type Provider interface {
	// Name returns the provider's name.
	Name() string
	// Set sets a key=val option of the provider.
	Set(string) error
	// ExecOption returns the exec.Option that runs workers on the
	// provider's system as currently configured.
	ExecOption() exec.Option
	// DefaultProcs returns the default number of processes, including
	// the controller, for this provider.
	DefaultProcs() int
}

// RegisterSystemProvider registers a system provider under the provided
// name. It panics if the name is already registered.
func RegisterSystemProvider(name string, provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("system %s is already registered", name)
	}
	providers[name] = provider
}

// RegisterSystemProfile registers a named shorthand for a system and
// its options, so that, for example, after
//
//	matvecflags.RegisterSystemProfile("big", "ec2:instance=m5.4xlarge")
//
// -system=big is a synonym for -system=ec2:instance=m5.4xlarge.
func RegisterSystemProfile(name, profile string) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("profile %s is already used as a provider name", name)
	}
	if _, present := profiles[name]; present {
		log.Panicf("profile %s is already registered", name)
	}
	profiles[name] = profile
}

// ProvidersAndProfiles returns the sorted names of the registered
// providers, and the registered profiles.
func ProvidersAndProfiles() ([]string, map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	prf := make(map[string]string, len(profiles))
	for k, v := range profiles {
		prf[k] = v
	}
	return names, prf
}

// defaultProcs is one worker per CPU plus the controller.
func defaultProcs() int {
	return runtime.GOMAXPROCS(0) + 1
}

// Internal runs workers as goroutines of the current process.
type Internal struct{}

// Name implements Provider.
func (*Internal) Name() string { return "internal" }

// Set implements Provider.
func (*Internal) Set(string) error {
	return fmt.Errorf("the internal system does not support any options")
}

// ExecOption implements Provider.
func (*Internal) ExecOption() exec.Option { return exec.Local }

// DefaultProcs implements Provider.
func (*Internal) DefaultProcs() int { return defaultProcs() }

// Local runs each worker in a separate process on the local machine.
type Local struct{}

// Name implements Provider.
func (*Local) Name() string { return "local" }

// Set implements Provider.
func (*Local) Set(string) error {
	return fmt.Errorf("the local system does not support any options")
}

// ExecOption implements Provider.
func (*Local) ExecOption() exec.Option { return exec.Bigmachine(bigmachine.Local) }

// DefaultProcs implements Provider.
func (*Local) DefaultProcs() int { return defaultProcs() }

// EC2 runs each worker on an AWS EC2 instance.
type EC2 struct {
	Options map[string]interface{}
}

// Name implements Provider.
func (*EC2) Name() string { return "ec2" }

// Set implements Provider. The supported options are instance,
// profile, dataspace, rootsize, and ondemand.
func (e *EC2) Set(v string) error {
	if e.Options == nil {
		e.Options = make(map[string]interface{})
	}
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("not in key=val format: %q", v)
	}
	key, val := parts[0], parts[1]
	switch key {
	case "instance", "profile":
		e.Options[key] = val
	case "dataspace", "rootsize":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return fmt.Errorf("%s: not a size: %v", key, val)
		}
		e.Options[key] = uint(n)
	case "ondemand":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%s: not a bool: %v", key, val)
		}
		e.Options[key] = b
	default:
		return fmt.Errorf("unsupported ec2 option: %v", key)
	}
	return nil
}

// System returns the ec2system.System configured by the provider's
// options.
func (e *EC2) System() *ec2system.System {
	sys := &ec2system.System{Username: "unknown"}
	if u, err := user.Current(); err == nil {
		sys.Username = u.Username
	} else {
		log.Printf("ec2: get current user: %v", err)
	}
	for key, val := range e.Options {
		switch key {
		case "instance":
			sys.InstanceType = val.(string)
		case "profile":
			sys.InstanceProfile = val.(string)
		case "dataspace":
			sys.Dataspace = val.(uint)
		case "rootsize":
			sys.Diskspace = val.(uint)
		case "ondemand":
			sys.OnDemand = val.(bool)
		}
	}
	return sys
}

// ExecOption implements Provider.
func (e *EC2) ExecOption() exec.Option { return exec.Bigmachine(e.System()) }

// DefaultProcs implements Provider. By default, a small cluster of
// workers is started.
func (*EC2) DefaultProcs() int { return 5 }

func init() {
	RegisterSystemProvider("internal", &Internal{})
	RegisterSystemProvider("local", &Local{})
	RegisterSystemProvider("ec2", &EC2{})
}

// SystemHelpShort is a short explanation of the values accepted by the
// system flag.
func SystemHelpShort(prefix string) string {
	return fmt.Sprintf("the system on which workers run: {internal,local,ec2[:key=val,...],profile}; see -%ssystem-help", prefix)
}

// SystemHelpLong explains the values accepted by the system flag.
const SystemHelpLong = `A system is specified as <provider>[:<options>], where options is a
comma-separated list of key=val pairs.

The supported providers are:

internal: workers are goroutines of the current process, the default.
local: each worker is a separate process on the local machine.
ec2: each worker runs on an AWS EC2 instance. The supported options are:
	instance=<type> - the EC2 instance type, e.g. m5.xlarge
	dataspace=<GiB> - size of the data volume
	rootsize=<GiB> - size of the root volume
	ondemand=<bool> - use on-demand rather than spot instances
	profile=<name> - the instance profile to use instead of the default

Applications may register profiles: named shorthands for a provider
and its options.
`

// SystemFlag is a flag.Value that selects a system provider.
type SystemFlag struct {
	Provider  Provider
	Options   []string
	Specified bool
}

// String implements flag.Value.
func (sys *SystemFlag) String() string {
	if sys.Provider == nil {
		return ""
	}
	if len(sys.Options) == 0 {
		return sys.Provider.Name()
	}
	return sys.Provider.Name() + ":" + strings.Join(sys.Options, ",")
}

func parseSystem(s string) (name string, options []string) {
	parts := strings.SplitN(s, ":", 2)
	name = parts[0]
	if len(parts) > 1 && parts[1] != "" {
		options = strings.Split(parts[1], ",")
	}
	return
}

// Set implements flag.Value.
func (sys *SystemFlag) Set(v string) error {
	name, options := parseSystem(v)
	mu.Lock()
	if profile, ok := profiles[name]; ok {
		var profileOptions []string
		name, profileOptions = parseSystem(profile)
		options = append(profileOptions, options...)
	}
	provider, ok := providers[name]
	mu.Unlock()
	if !ok {
		return fmt.Errorf("unsupported system or profile: %v", name)
	}
	for _, opt := range options {
		if err := provider.Set(opt); err != nil {
			return err
		}
	}
	sys.Provider = provider
	sys.Options = options
	sys.Specified = true
	return nil
}

// Get implements flag.Getter.
func (sys *SystemFlag) Get() interface{} {
	return sys.String()
}

// Flags holds the values of the flags that configure a session.
type Flags struct {
	System        SystemFlag
	SystemHelp    bool
	HTTPAddress   cmdutil.NetworkAddressFlag
	ConsoleStatus bool
	Procs         int
	MaxProcs      int
	fs            *flag.FlagSet
}

// Defaults holds default values for the flags.
type Defaults struct {
	System        string
	HTTPAddress   string
	ConsoleStatus bool
	Procs         int
	MaxProcs      int
}

// Output returns the writer to which usage messages of the underlying
// flag set are written.
func (f *Flags) Output() io.Writer {
	if f.fs != nil {
		if w := f.fs.Output(); w != nil {
			return w
		}
	}
	return os.Stderr
}

// RegisterFlags registers the session flags with fs, using the default
// values. Flag names are prefixed with prefix.
func RegisterFlags(fs *flag.FlagSet, f *Flags, prefix string) {
	RegisterFlagsWithDefaults(fs, f, prefix, Defaults{
		System:      "internal",
		HTTPAddress: ":3333",
	})
}

// RegisterFlagsWithDefaults registers the session flags with fs, using
// the provided defaults. Flag names are prefixed with prefix.
func RegisterFlagsWithDefaults(fs *flag.FlagSet, f *Flags, prefix string, defaults Defaults) {
	fs.Var(&f.System, prefix+"system", SystemHelpShort(prefix))
	if err := f.System.Set(defaults.System); err != nil {
		log.Panicf("matvecflags: default system %q: %v", defaults.System, err)
	}
	f.System.Specified = false
	fs.Var(&f.HTTPAddress, prefix+"http", "address of the http status server")
	if err := f.HTTPAddress.Set(defaults.HTTPAddress); err != nil {
		log.Panicf("matvecflags: default http address %q: %v", defaults.HTTPAddress, err)
	}
	f.HTTPAddress.Specified = false
	fs.BoolVar(&f.ConsoleStatus, prefix+"console-status", defaults.ConsoleStatus, "print status to stdout")
	fs.IntVar(&f.Procs, prefix+"procs", defaults.Procs, "number of processes, including the controller; 0 requests the system's default")
	fs.IntVar(&f.MaxProcs, prefix+"max-procs", defaults.MaxProcs, "maximum number of concurrently computing local workers; 0 uses GOMAXPROCS")
	fs.BoolVar(&f.SystemHelp, prefix+"system-help", false, "describe the supported systems and profiles")
	f.fs = fs
}

// ExecOptions returns the exec options selected by the flags. The
// options include a status object to which the session reports.
func (f *Flags) ExecOptions() ([]exec.Option, error) {
	if f.Procs < 0 {
		return nil, fmt.Errorf("invalid process count %d", f.Procs)
	}
	var st status.Status
	// Show the bigmachine group first.
	_ = st.Group("bigmachine")
	options := []exec.Option{exec.Status(&st), f.System.Provider.ExecOption()}
	procs := f.Procs
	if procs == 0 {
		procs = f.System.Provider.DefaultProcs()
	}
	options = append(options, exec.Procs(procs), exec.MaxProcs(f.MaxProcs))
	return options, nil
}
