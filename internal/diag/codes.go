package diag

import "fmt"

// Code classifies a diagnostic. The thousands digit names the stage.
type Code uint16

const (
	UnknownCode Code = 0

	// Loading units from disk.
	LoadFailed    Code = 1001
	LoadBadFormat Code = 1002

	// Unit structure and liveness analysis.
	UnitInvalid     Code = 2001
	UnitBrokenEdges Code = 2002

	LowerFailed Code = 3001

	BackendFailed  Code = 4001
	StackMapBroken Code = 4002

	EmitFailed Code = 5001

	CacheUnavailable Code = 6001
	Cancelled        Code = 6002
)

var codeDescriptions = map[Code]string{
	UnknownCode:      "unknown failure",
	LoadFailed:       "unit could not be read",
	LoadBadFormat:    "unit file is not a valid unit",
	UnitInvalid:      "unit failed validation",
	UnitBrokenEdges:  "control-flow edges disagree",
	LowerFailed:      "lowering failed",
	BackendFailed:    "native back end failed",
	StackMapBroken:   "stack-map section could not be parsed",
	EmitFailed:       "code emission failed",
	CacheUnavailable: "code cache unavailable",
	Cancelled:        "compilation cancelled",
}

// ID renders the code as E1001, W6001 and so on, by the severity it is
// usually reported with.
func (c Code) ID() string {
	prefix := "E"
	if c >= CacheUnavailable {
		prefix = "W"
	}
	return fmt.Sprintf("%s%04d", prefix, uint16(c))
}

func (c Code) String() string { return c.ID() }

// Title is the one-line description of c.
func (c Code) Title() string {
	if s, ok := codeDescriptions[c]; ok {
		return s
	}
	return codeDescriptions[UnknownCode]
}
