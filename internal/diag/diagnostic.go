package diag

// Diagnostic is one message about a unit.
type Diagnostic struct {
	Severity Severity
	Code     Code
	// Unit is empty for run-wide diagnostics.
	Unit    string
	Stage   string
	Message string
	Notes   []string
}

// WithNote returns d with msg appended to its notes.
func (d Diagnostic) WithNote(msg string) Diagnostic {
	d.Notes = append(append([]string(nil), d.Notes...), msg)
	return d
}
