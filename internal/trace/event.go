package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	// ScopeDriver covers a whole CLI invocation.
	ScopeDriver Scope = iota + 1
	// ScopeUnit covers one compilation unit.
	ScopeUnit
	// ScopePass covers one stage of a unit: liveness, lowering, back end, emission.
	ScopePass
	// ScopeBlock covers one IR block inside a pass.
	ScopeBlock
)

func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopeUnit:
		return "unit"
	case ScopePass:
		return "pass"
	case ScopeBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	// GID is the emitting goroutine, so concurrent unit spans can be told apart.
	GID uint64
	// Unit is the compilation unit the event belongs to, empty for driver events.
	Unit   string
	Name   string // "unit:add", "lower", "B3"
	Detail string
	Extra  map[string]string
}
