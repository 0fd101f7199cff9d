package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tfjit/internal/prof"
)

// setupProfiling starts the profilers named by the persistent flags.
// The returned cleanup stops them and writes the heap profile.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	pf := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPU, err = pf.GetString("cpu-profile"); err != nil {
		return nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.Mem, err = pf.GetString("mem-profile"); err != nil {
		return nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.Trace, err = pf.GetString("runtime-trace"); err != nil {
		return nil, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if opts == (prof.Options{}) {
		return func() {}, nil
	}

	session, err := prof.Start(opts)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := session.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
	}, nil
}

// instrument runs both setups; the cleanup undoes them in reverse order.
func instrument(cmd *cobra.Command) (func(), error) {
	stopProf, err := setupProfiling(cmd)
	if err != nil {
		return nil, err
	}
	stopTrace, err := setupTracing(cmd)
	if err != nil {
		stopProf()
		return nil, err
	}
	return func() {
		stopTrace()
		stopProf()
	}, nil
}
