// Package directive scans a test file for RUN, REQUIRES, UNSUPPORTED,
// XFAIL and ALLOW_RETRIES directives.
package directive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record holds everything the scanner discovered about a single test file.
type Record struct {
	RunCommands   []string
	Requires      []string
	Unsupported   []string
	XFail         bool
	XFailReason   string
	AllowRetries  int
	HasAllowRetry bool
}

var commentPrefixes = []string{"//", "#", ";"}

// Scan reads r line by line and builds a Record. Diagnostics (malformed
// ALLOW_RETRIES) are reported through warn, which may be nil.
func Scan(r io.Reader, warn func(string)) (*Record, error) {
	if warn == nil {
		warn = func(string) {}
	}
	rec := &Record{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var pendingRun string
	haveContinuation := false

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r\n")

		if haveContinuation {
			next := strings.TrimLeft(line, " \t")
			if cmd, ok := matchRun(line); ok {
				next = cmd
			}
			pendingRun = strings.TrimRight(pendingRun, " \t") + " " + next
			if cmd, cont := stripContinuation(pendingRun); cont {
				pendingRun = cmd
			} else {
				rec.RunCommands = append(rec.RunCommands, cmd)
				pendingRun = ""
				haveContinuation = false
			}
		} else if cmd, ok := matchRun(line); ok {
			if body, cont := stripContinuation(cmd); cont {
				pendingRun = body
				haveContinuation = true
			} else {
				rec.RunCommands = append(rec.RunCommands, body)
			}
		}

		scanRequiresUnsupported(line, "REQUIRES:", &rec.Requires)
		scanRequiresUnsupported(line, "UNSUPPORTED:", &rec.Unsupported)
		scanXFail(line, rec)
		scanAllowRetries(line, rec, warn)
	}

	if haveContinuation {
		// Trailing backslash with no further lines: treat what we have as
		// the final command.
		rec.RunCommands = append(rec.RunCommands, pendingRun)
	}

	return rec, scanner.Err()
}

// matchRun recognizes a line whose leading non-whitespace begins with one
// of the comment markers, followed by optional whitespace and "RUN:". It
// returns the command text (leading whitespace stripped) and whether the
// line matched at all.
func matchRun(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	for _, marker := range commentPrefixes {
		if !strings.HasPrefix(trimmed, marker) {
			continue
		}
		rest := strings.TrimLeft(trimmed[len(marker):], " \t")
		const tag = "RUN:"
		if !strings.HasPrefix(rest, tag) {
			continue
		}
		cmd := strings.TrimLeft(rest[len(tag):], " \t")
		return cmd, true
	}
	return "", false
}

// stripContinuation reports whether cmd ends with a backslash continuation
// marker, returning the command with the trailing backslash removed.
func stripContinuation(cmd string) (string, bool) {
	if strings.HasSuffix(cmd, "\\") {
		return cmd[:len(cmd)-1], true
	}
	return cmd, false
}

func scanRequiresUnsupported(line, tag string, dest *[]string) {
	idx := strings.Index(line, tag)
	if idx < 0 {
		return
	}
	rest := line[idx+len(tag):]
	for _, tok := range strings.FieldsFunc(rest, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if tok != "" {
			*dest = append(*dest, tok)
		}
	}
}

func scanXFail(line string, rec *Record) {
	const tag = "XFAIL:"
	idx := strings.Index(line, tag)
	if idx < 0 {
		return
	}
	rec.XFail = true
	rec.XFailReason = strings.TrimSpace(line[idx+len(tag):])
}

func scanAllowRetries(line string, rec *Record, warn func(string)) {
	const tag = "ALLOW_RETRIES:"
	idx := strings.Index(line, tag)
	if idx < 0 {
		return
	}
	val := strings.TrimSpace(line[idx+len(tag):])
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		warn(fmt.Sprintf("malformed ALLOW_RETRIES directive: %q", val))
		return
	}
	// Last occurrence wins: observed, undocumented behavior of the
	// original tool, preserved deliberately.
	rec.AllowRetries = n
	rec.HasAllowRetry = true
}
