package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"tfjit/internal/ir"
	"tfjit/internal/pipeline"
	"tfjit/internal/ui"
)

type batchOutcome struct {
	results  []pipeline.UnitResult
	panicked any
}

// compileWithUI runs the batch while a progress view follows its events.
// A panic in the batch is re-raised here once the view has exited.
func compileWithUI(ctx context.Context, title string, units []*ir.Unit, opts pipeline.Options) ([]pipeline.UnitResult, error) {
	events := make(chan pipeline.Event, 256)
	done := make(chan batchOutcome, 1)

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				done <- batchOutcome{panicked: r}
			}
		}()
		o := opts
		o.Sink = pipeline.ChannelSink{Ch: events}
		done <- batchOutcome{results: pipeline.CompileUnits(ctx, units, o)}
	}()

	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}
	program := tea.NewProgram(ui.NewProgressModel(title, names, events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// The view may quit early on ctrl+c; keep the workers unblocked.
	go func() {
		for range events {
		}
	}()
	outcome := <-done
	if outcome.panicked != nil {
		panic(outcome.panicked)
	}
	return outcome.results, uiErr
}
