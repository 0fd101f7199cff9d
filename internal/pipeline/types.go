package pipeline

import (
	"context"
	"fmt"
	"time"

	"tfjit/internal/native"
)

// Stage is one step of compiling a unit.
type Stage string

const (
	StageQueued   Stage = "queued"
	StageCache    Stage = "cache"
	StageLiveness Stage = "liveness"
	StageLower    Stage = "lower"
	StageBackend  Stage = "backend"
	StageStackMap Stage = "stackmap"
	StageEmit     Stage = "emit"
)

// Status is the progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress of one unit. Unit is empty for run-wide events.
type Event struct {
	Unit    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Sink consumes progress events. It is called from worker goroutines.
type Sink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into Ch. A nil channel drops them.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch != nil {
		s.Ch <- ev
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(ev Event) { f(ev) }

// Artifact is what a native back end produces for one function.
type Artifact struct {
	Code      []byte
	StackMaps []byte
}

// Backend compiles a native function to machine code and its stack-map
// section. Implementations must be safe for concurrent use.
type Backend interface {
	Name() string
	Compile(ctx context.Context, fn *native.Func) (Artifact, error)
}

// CompileError is a unit abandoned at Stage.
type CompileError struct {
	Unit  string
	Stage Stage
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Unit, e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
