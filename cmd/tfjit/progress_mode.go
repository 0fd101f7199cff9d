package main

import (
	"fmt"
	"os"
	"strings"
)

// progressMode is the --ui setting of build.
type progressMode uint8

const (
	progressAuto progressMode = iota
	progressOn
	progressOff
)

func parseProgressMode(value string) (progressMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return progressAuto, nil
	case "on":
		return progressOn, nil
	case "off":
		return progressOff, nil
	default:
		return progressAuto, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// wantProgressView decides whether the live unit table replaces plain output.
// In auto mode it stays off under --quiet and while a trace streams to the
// terminal, since both would fight over the screen.
func wantProgressView(mode progressMode, quiet, traceOnTTY bool) bool {
	switch mode {
	case progressOn:
		return true
	case progressOff:
		return false
	}
	if quiet || traceOnTTY {
		return false
	}
	return isTerminal(os.Stdout)
}
