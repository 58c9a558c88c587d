// Package report renders the runner's per-test status lines, coloring each
// outcome the way kazz187-taskguild's clog package colors log levels.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	colorOK    = color.New(color.FgGreen, color.Bold)
	colorFail  = color.New(color.FgRed, color.Bold)
	colorSkip  = color.New(color.FgYellow)
	colorXFail = color.New(color.FgCyan)
	colorXPass = color.New(color.FgRed, color.Bold)
	colorRun   = color.New(color.FgHiBlack)
)

// Status is the outcome reported for one test file.
type Status int

const (
	StatusOK Status = iota
	StatusFail
	StatusSkip
	StatusXFail
	StatusXPass
)

func (s Status) label() string {
	switch s {
	case StatusOK:
		return "  OK "
	case StatusFail:
		return "FAIL "
	case StatusSkip:
		return "SKIP "
	case StatusXFail:
		return "XFAIL"
	case StatusXPass:
		return "XPASS"
	default:
		return "  ?  "
	}
}

func (s Status) painter() *color.Color {
	switch s {
	case StatusOK:
		return colorOK
	case StatusFail:
		return colorFail
	case StatusSkip:
		return colorSkip
	case StatusXFail:
		return colorXFail
	case StatusXPass:
		return colorXPass
	default:
		return colorRun
	}
}

// Begin announces that a test file has started running.
func Begin(w io.Writer, path string) {
	colorRun.Fprintf(w, "[ RUN ] ")
	fmt.Fprintln(w, path)
}

// End announces a test file's final outcome, with an optional detail
// string (e.g. an xfail reason or a step number).
func End(w io.Writer, path string, status Status, detail string) {
	p := status.painter()
	p.Fprintf(w, "[%s] ", status.label())
	if detail == "" {
		fmt.Fprintln(w, path)
	} else {
		fmt.Fprintf(w, "%s (%s)\n", path, detail)
	}
}
