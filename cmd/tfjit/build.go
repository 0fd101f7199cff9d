package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tfjit/internal/codecache"
	"tfjit/internal/config"
	"tfjit/internal/diag"
	"tfjit/internal/pipeline"
	"tfjit/internal/trace"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] UNIT...",
	Short: "Compile units into code objects",
	Long: `Compile graph units (.toml or msgpack .tfir files, or directories of them)
through the pipeline and report per-unit diagnostics. With --out each code
object is written as <out>/<unit>.code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().Int("jobs", 0, "units compiled in parallel (0 = config or GOMAXPROCS)")
	buildCmd.Flags().String("backend", "", "native back end (default from config)")
	buildCmd.Flags().Bool("cache", false, "reuse code objects from the on-disk cache (default from config)")
	buildCmd.Flags().String("cache-dir", "", "cache directory (default: user cache dir)")
	buildCmd.Flags().StringP("out", "o", "", "directory for .code files")
	buildCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cleanup, err := instrument(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer dumpOnPanic()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	maxDiags, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := parseProgressMode(uiValue)
	if err != nil {
		return err
	}
	traceOut, err := cmd.Root().PersistentFlags().GetString("trace")
	if err != nil {
		return fmt.Errorf("failed to get trace flag: %w", err)
	}
	traceOnTTY := traceOut == "-" && isTerminal(os.Stderr)
	outDir, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}

	bag := diag.NewBag(maxDiags)
	opts, err := buildOptions(cmd, cfg, bag)
	if err != nil {
		return err
	}
	units, err := loadUnits(args, bag)
	if err != nil {
		return err
	}

	span, ctx := trace.Start(cmd.Context(), trace.ScopeDriver, "build")
	var results []pipeline.UnitResult
	if wantProgressView(mode, quiet, traceOnTTY) && len(units) > 0 {
		results, err = compileWithUI(ctx, fmt.Sprintf("compiling %d units", len(units)), units, opts)
		if err != nil {
			span.End("ui failed")
			return err
		}
	} else {
		results = pipeline.CompileUnits(ctx, units, opts)
	}
	diag.ReportResults(bag, results)
	span.End(fmt.Sprintf("%d units", len(units)))

	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		if outDir != "" {
			if err := writeObject(outDir, r.Result); err != nil {
				bag.Report(diag.Diagnostic{Severity: diag.SevError, Code: diag.EmitFailed, Unit: r.Name, Stage: "write", Message: err.Error()})
				continue
			}
		}
		if !quiet {
			printSummary(out, r.Result)
		}
	}
	if err := diag.Render(cmd.ErrOrStderr(), bag); err != nil {
		return err
	}
	if showTimings {
		fmt.Fprint(out, pipeline.Timings(results).Summary())
	}
	if bag.HasErrors() {
		return errors.New("build failed")
	}
	return nil
}

// buildOptions merges the [build] config with the command-line flags.
func buildOptions(cmd *cobra.Command, cfg config.Config, r diag.Reporter) (pipeline.Options, error) {
	opts := pipeline.Options{Target: cfg.Target, Jobs: cfg.Build.Jobs}
	if cmd.Flags().Changed("jobs") {
		jobs, err := cmd.Flags().GetInt("jobs")
		if err != nil {
			return opts, fmt.Errorf("failed to get jobs flag: %w", err)
		}
		opts.Jobs = jobs
	}

	name := cfg.Build.Backend
	if cmd.Flags().Changed("backend") {
		var err error
		if name, err = cmd.Flags().GetString("backend"); err != nil {
			return opts, fmt.Errorf("failed to get backend flag: %w", err)
		}
	}
	backend, err := backendByName(name)
	if err != nil {
		return opts, err
	}
	opts.Backend = backend

	useCache := cfg.Build.Cache
	if cmd.Flags().Changed("cache") {
		if useCache, err = cmd.Flags().GetBool("cache"); err != nil {
			return opts, fmt.Errorf("failed to get cache flag: %w", err)
		}
	}
	if !useCache {
		return opts, nil
	}
	cache, err := openCache(cmd)
	if err != nil {
		r.Report(diag.Diagnostic{
			Severity: diag.SevWarning,
			Code:     diag.CacheUnavailable,
			Stage:    "cache",
			Message:  err.Error(),
		}.WithNote("continuing without the code cache"))
		return opts, nil
	}
	opts.Cache = cache
	return opts, nil
}

func openCache(cmd *cobra.Command) (*codecache.Cache, error) {
	dir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to get cache-dir flag: %w", err)
	}
	if dir != "" {
		return codecache.Open(dir)
	}
	return codecache.OpenDefault("tfjit")
}

func writeObject(dir string, res *pipeline.Result) error {
	data, err := res.Object.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, res.Unit+".code"), data, 0o644) //nolint:gosec // build output
}

func printSummary(w io.Writer, res *pipeline.Result) {
	obj := res.Object
	suffix := ""
	if res.Cached {
		suffix = " (cached)"
	}
	fmt.Fprintf(w, "%s: %d bytes, %d stack slots, %d safepoints, %d relocations%s\n",
		res.Unit, len(obj.Instructions), obj.StackSlots, len(obj.Safepoints), len(obj.Relocations), suffix)
}
