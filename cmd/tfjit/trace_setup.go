package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tfjit/internal/trace"
)

// setupTracing builds the tracer the persistent flags describe and attaches
// it to the command context. The returned cleanup flushes and closes it.
func setupTracing(cmd *cobra.Command) (func(), error) {
	pf := cmd.Root().PersistentFlags()

	output, err := pf.GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := pf.GetString("trace-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := pf.GetString("trace-mode")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	formatStr, err := pf.GetString("trace-format")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-format flag: %w", err)
	}
	ringSize, err := pf.GetInt("trace-ring-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	heartbeat, err := pf.GetDuration("trace-heartbeat")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace level: %w", err)
	}
	// A trace file without an explicit level gets pass-level events.
	if level == trace.LevelOff {
		if output == "" {
			cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
			return func() {}, nil
		}
		level = trace.LevelPass
	}
	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace mode: %w", err)
	}
	if output != "" && mode == trace.ModeRing {
		mode = trace.ModeBoth
	}
	format, err := trace.ParseFormat(formatStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace format: %w", err)
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: output,
		RingSize:   ringSize,
		Heartbeat:  heartbeat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	crashRing = ringOf(tracer)

	var beat *trace.Heartbeat
	if heartbeat > 0 {
		beat = trace.StartHeartbeat(tracer, heartbeat)
	}
	return func() {
		beat.Stop()
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}, nil
}

// crashRing is dumped to stderr when a command panics.
var crashRing *trace.RingTracer

func ringOf(t trace.Tracer) *trace.RingTracer {
	switch t := t.(type) {
	case *trace.RingTracer:
		return t
	case *trace.MultiTracer:
		if r, ok := t.Ring(); ok {
			return r
		}
	}
	return nil
}

// dumpOnPanic writes the recent trace events before re-raising a panic.
// Deferred directly, so recover sees the panic.
func dumpOnPanic() {
	r := recover()
	if r == nil {
		return
	}
	if ring := crashRing; ring != nil {
		fmt.Fprintln(os.Stderr, "tfjit: panic; last trace events:")
		_ = ring.Dump(os.Stderr, trace.FormatText) //nolint:errcheck // best effort while crashing
	}
	panic(r)
}
