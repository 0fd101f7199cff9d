// Package version holds build metadata, overridable with -ldflags -X.
package version

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	// Version is the semantic version of tfjit.
	Version = "0.1.0-dev"
	// GitCommit is the commit the binary was built from, if known.
	GitCommit = ""
	// BuildDate is an ISO-8601 build timestamp, if known.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Colored renders Version with each numeric component in its own color.
// Pre-release suffixes are left plain.
func Colored() string {
	core, suffix, _ := strings.Cut(Version, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	out := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}

// Write prints the version banner and the optional metadata lines.
func Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "tfjit %s\n", Colored()); err != nil {
		return err
	}
	if GitCommit != "" {
		if _, err := fmt.Fprintf(w, "commit: %s\n", GitCommit); err != nil {
			return err
		}
	}
	if BuildDate != "" {
		if _, err := fmt.Fprintf(w, "built:  %s\n", BuildDate); err != nil {
			return err
		}
	}
	return nil
}
