package diag

import (
	"context"
	"errors"
	"io/fs"

	"tfjit/internal/cfg"
	"tfjit/internal/ir"
	"tfjit/internal/pipeline"
	"tfjit/internal/stackmap"
)

// Reporter receives diagnostics.
type Reporter interface {
	Report(d Diagnostic)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}

var stageCodes = map[pipeline.Stage]Code{
	pipeline.StageCache:    CacheUnavailable,
	pipeline.StageLiveness: UnitInvalid,
	pipeline.StageLower:    LowerFailed,
	pipeline.StageBackend:  BackendFailed,
	pipeline.StageStackMap: StackMapBroken,
	pipeline.StageEmit:     EmitFailed,
}

// FromError turns a unit failure into a diagnostic. Compile errors keep
// their stage; anything else is reported against unit with UnknownCode.
func FromError(unit string, err error) Diagnostic {
	d := Diagnostic{Severity: SevError, Code: UnknownCode, Unit: unit, Message: err.Error()}
	var ce *pipeline.CompileError
	if errors.As(err, &ce) {
		d.Unit, d.Stage, d.Message = ce.Unit, string(ce.Stage), ce.Err.Error()
		if c, ok := stageCodes[ce.Stage]; ok {
			d.Code = c
		}
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		d.Code, d.Severity = Cancelled, SevWarning
	case errors.Is(err, ir.ErrBrokenEdge), errors.Is(err, cfg.ErrNotFound):
		d.Code = UnitBrokenEdges
	case errors.Is(err, stackmap.ErrTruncated):
		d = d.WithNote("the back end wrote fewer bytes than the section header declares")
	case errors.Is(err, stackmap.ErrUnsupportedVersion):
		d = d.WithNote("supported stack-map versions are 1 to 3")
	}
	return d
}

// FromLoadError classifies a failure to read a unit file.
func FromLoadError(path string, err error) Diagnostic {
	d := Diagnostic{Severity: SevError, Code: LoadBadFormat, Unit: path, Stage: "load", Message: err.Error()}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		d.Code = LoadFailed
	}
	return d
}

// ReportResults files one diagnostic per failed unit.
func ReportResults(r Reporter, results []pipeline.UnitResult) {
	for _, res := range results {
		if res.Err != nil {
			r.Report(FromError(res.Name, res.Err))
		}
	}
}
