package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	unitColor    = color.New(color.Bold)
	noteColor    = color.New(color.Faint)
)

func severityColor(s Severity) *color.Color {
	switch s {
	case SevError:
		return errorColor
	case SevWarning:
		return warningColor
	default:
		return infoColor
	}
}

// Render writes the bag's diagnostics as
//
//	error[E4001] unit: backend: message
//	  note: ...
//
// Colors follow color.NoColor.
func Render(w io.Writer, b *Bag) error {
	for _, d := range b.Items() {
		head := severityColor(d.Severity).Sprintf("%s[%s]", d.Severity, d.Code)
		loc := ""
		if d.Unit != "" {
			loc = unitColor.Sprint(d.Unit) + ": "
		}
		if d.Stage != "" {
			loc += d.Stage + ": "
		}
		if _, err := fmt.Fprintf(w, "%s %s%s\n", head, loc, d.Message); err != nil {
			return err
		}
		for _, n := range d.Notes {
			if _, err := fmt.Fprintf(w, "  %s\n", noteColor.Sprint("note: "+n)); err != nil {
				return err
			}
		}
	}
	if n := b.Dropped(); n > 0 {
		if _, err := fmt.Fprintf(w, "%d more diagnostics not shown\n", n); err != nil {
			return err
		}
	}
	return nil
}
