// Package pipeline drives compilation units through liveness analysis,
// lowering, the native back end, stack-map parsing and code emission.
// Each unit is compiled start to finish by one goroutine; CompileUnits runs
// several units in parallel and keeps their failures apart.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tfjit/internal/cfg"
	"tfjit/internal/codecache"
	"tfjit/internal/codegen"
	"tfjit/internal/config"
	"tfjit/internal/constpool"
	"tfjit/internal/ir"
	"tfjit/internal/liveness"
	"tfjit/internal/lower"
	"tfjit/internal/native"
	"tfjit/internal/observ"
	"tfjit/internal/patchpoint"
	"tfjit/internal/stackmap"
	"tfjit/internal/trace"
)

// Options configures a compilation run.
type Options struct {
	Target  config.Target
	Backend Backend
	// Jobs bounds the units compiled at once; zero means GOMAXPROCS.
	Jobs int
	// Sink receives progress events; nil drops them.
	Sink Sink
	// Cache short-circuits units compiled before; nil disables it.
	Cache *codecache.Cache
}

// Result is a compiled unit. Native, StackMaps and Patches are nil when the
// object came from the cache.
type Result struct {
	Unit      string
	Object    *codegen.CodeObject
	Native    *native.Func
	StackMaps *stackmap.StackMaps
	Patches   *patchpoint.Table
	Timing    observ.Report
	Cached    bool
}

// UnitResult pairs a unit of a batch with its outcome.
type UnitResult struct {
	Index  int
	Name   string
	Result *Result
	Err    error
}

type unitRun struct {
	ctx   context.Context
	name  string
	opts  Options
	timer *observ.Timer
}

func (r *unitRun) emit(stage Stage, status Status, err error, elapsed time.Duration) {
	if r.opts.Sink != nil {
		r.opts.Sink.OnEvent(Event{Unit: r.name, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	}
}

// step times fn as stage and turns its error into a *CompileError.
func (r *unitRun) step(stage Stage, fn func(ctx context.Context) (string, error)) error {
	if err := r.ctx.Err(); err != nil {
		return &CompileError{Unit: r.name, Stage: stage, Err: err}
	}
	r.emit(stage, StatusWorking, nil, 0)
	span, ctx := trace.Start(r.ctx, trace.ScopePass, string(stage))
	idx := r.timer.Begin(string(stage))
	start := time.Now()

	note, err := fn(ctx)

	r.timer.End(idx, note)
	elapsed := time.Since(start)
	if err != nil {
		span.End("error: " + err.Error())
		r.emit(stage, StatusError, err, elapsed)
		return &CompileError{Unit: r.name, Stage: stage, Err: err}
	}
	span.End(note)
	return nil
}

// CompileUnit compiles one unit. Any failure abandons the unit and is
// returned as a *CompileError; no partial result is produced.
func CompileUnit(ctx context.Context, u *ir.Unit, opts Options) (*Result, error) {
	if opts.Backend == nil {
		return nil, &CompileError{Unit: u.Name, Stage: StageBackend, Err: errors.New("no back end configured")}
	}
	span, ctx := trace.Start(trace.WithUnit(ctx, u.Name), trace.ScopeUnit, "unit:"+u.Name)
	r := &unitRun{ctx: ctx, name: u.Name, opts: opts, timer: observ.NewTimer()}
	start := time.Now()

	res, err := r.compile(u)

	if err != nil {
		span.End("failed")
		return nil, err
	}
	res.Timing = r.timer.Report()
	res.Timing.Unit = u.Name
	r.emit(StageEmit, StatusDone, nil, time.Since(start))
	span.WithExtra("cached", strconv.FormatBool(res.Cached)).End("")
	return res, nil
}

func (r *unitRun) compile(u *ir.Unit) (*Result, error) {
	res := &Result{Unit: u.Name}

	var key codecache.Key
	if r.opts.Cache != nil {
		err := r.step(StageCache, func(ctx context.Context) (string, error) {
			digest, err := u.Digest()
			if err != nil {
				return "", err
			}
			key, err = codecache.KeyFor(digest, r.opts.Target, r.opts.Backend.Name())
			if err != nil {
				return "", err
			}
			obj, ok, err := r.opts.Cache.Get(key)
			if err != nil {
				// A damaged entry is rebuilt and overwritten.
				trace.Point(ctx, trace.ScopePass, "cache", err.Error())
				return "miss", nil
			}
			if !ok {
				return "miss", nil
			}
			res.Object, res.Cached = obj, true
			return "hit", nil
		})
		if err != nil {
			return nil, err
		}
		if res.Cached {
			return res, nil
		}
	}

	var store *cfg.Store
	err := r.step(StageLiveness, func(ctx context.Context) (string, error) {
		var err error
		store, err = liveness.Analyze(u)
		if err != nil {
			return "", err
		}
		for _, b := range store.RPO() {
			trace.Point(ctx, trace.ScopeBlock, fmt.Sprintf("B%d", b.ID), fmt.Sprintf("live-in %v", b.LiveIns))
		}
		return fmt.Sprintf("%d blocks", store.Len()), nil
	})
	if err != nil {
		return nil, err
	}

	var lowered *lower.Output
	err = r.step(StageLower, func(context.Context) (string, error) {
		var err error
		lowered, err = lower.Lower(u, store, r.opts.Target, constpool.NewRecorder())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d instrs, %d patch points", lowered.Func.Instructions(), lowered.Patches.Len()), nil
	})
	if err != nil {
		return nil, err
	}
	res.Native, res.Patches = lowered.Func, lowered.Patches

	var art Artifact
	err = r.step(StageBackend, func(ctx context.Context) (string, error) {
		var err error
		art, err = r.opts.Backend.Compile(ctx, lowered.Func)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s, %d bytes", r.opts.Backend.Name(), len(art.Code)), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.step(StageStackMap, func(context.Context) (string, error) {
		var err error
		res.StackMaps, err = stackmap.Parse(art.StackMaps)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d records", len(res.StackMaps.Records)), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.step(StageEmit, func(ctx context.Context) (string, error) {
		var err error
		res.Object, err = codegen.Generate(codegen.Input{
			Name:      u.Name,
			Code:      art.Code,
			StackMaps: res.StackMaps,
			Patches:   lowered.Patches,
			Consts:    lowered.Consts,
		})
		if err != nil {
			return "", err
		}
		if putErr := r.opts.Cache.Put(key, u.Name, res.Object); putErr != nil {
			trace.Point(ctx, trace.ScopePass, "cache", putErr.Error())
		}
		return fmt.Sprintf("%d safepoints, %d relocations", len(res.Object.Safepoints), len(res.Object.Relocations)), nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CompileUnits compiles units concurrently. Results are in input order;
// one unit failing does not stop the others.
func CompileUnits(ctx context.Context, units []*ir.Unit, opts Options) []UnitResult {
	results := make([]UnitResult, len(units))
	if len(units) == 0 {
		return results
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	span, ctx := trace.Start(ctx, trace.ScopeDriver, "compile")
	for _, u := range units {
		if opts.Sink != nil {
			opts.Sink.OnEvent(Event{Unit: u.Name, Stage: StageQueued, Status: StatusQueued})
		}
	}

	// Broken contracts panic; the first one is re-raised on the caller's
	// goroutine once the other workers drain.
	var fatal atomic.Pointer[workerPanic]
	var g errgroup.Group
	g.SetLimit(min(jobs, len(units)))
	for i, u := range units {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					fatal.CompareAndSwap(nil, &workerPanic{unit: u.Name, value: r})
				}
			}()
			res, err := CompileUnit(ctx, u, opts)
			results[i] = UnitResult{Index: i, Name: u.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail; errors live in results
	if p := fatal.Load(); p != nil {
		span.End("panic in " + p.unit)
		panic(p.value)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.End(fmt.Sprintf("%d units, %d failed", len(units), failed))
	return results
}

type workerPanic struct {
	unit  string
	value any
}

// Errors joins the failures of a batch, nil if every unit compiled.
func Errors(results []UnitResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Timings merges the stage timings of the successful units of a batch.
func Timings(results []UnitResult) observ.Report {
	reports := make([]observ.Report, 0, len(results))
	for _, r := range results {
		if r.Result != nil {
			reports = append(reports, r.Result.Timing)
		}
	}
	return observ.Merge(reports...)
}
