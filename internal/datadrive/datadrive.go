// Package datadrive is a small directive-based test harness used by this
// module's own test suites (currently internal/check's) to run code against
// golden fixture files, in the same style
// otan-cockroach-datadriven's harness drives SQL-planner tests.
//
// Each fixture file is a sequence of blocks of the form:
//
//	<command> [arg | arg=val | arg=(val1, val2, ...)]...
//	<input to the command>
//	----
//	<expected output>
//
// RunTest loads path, invokes f once per block, and compares f's return
// value against the block's expected output. Pass -rewrite to have failing
// blocks' expected output replaced in place.
package datadrive

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

var rewriteFixtures = flag.Bool(
	"rewrite", false,
	"rewrite fixture files with the actual output produced by this run",
)

// TestData is one parsed block from a fixture file.
type TestData struct {
	Pos      string // "path:line", for diagnostics
	Cmd      string
	CmdArgs  []CmdArg
	Input    string
	Expected string
}

// CmdArg is one key[=val[,val...]] argument on a block's command line.
type CmdArg struct {
	Key  string
	Vals []string
}

func (a CmdArg) String() string {
	switch len(a.Vals) {
	case 0:
		return a.Key
	case 1:
		return fmt.Sprintf("%s=%s", a.Key, a.Vals[0])
	default:
		return fmt.Sprintf("%s=(%s)", a.Key, strings.Join(a.Vals, ", "))
	}
}

// Scan parses the value at index i of arg into dest, like
// otan-cockroach-datadriven's CmdArg.Scan, trimmed to the destination types
// this module's fixtures actually need.
func (a CmdArg) Scan(t *testing.T, i int, dest interface{}) {
	t.Helper()
	if i < 0 || i >= len(a.Vals) {
		t.Fatalf("cannot scan index %d of key %s", i, a.Key)
	}
	val := a.Vals[i]
	switch d := dest.(type) {
	case *string:
		*d = val
	case *int:
		n, err := strconv.Atoi(val)
		if err != nil {
			t.Fatal(err)
		}
		*d = n
	case *bool:
		b, err := strconv.ParseBool(val)
		if err != nil {
			t.Fatal(err)
		}
		*d = b
	default:
		t.Fatalf("unsupported destination type %T", dest)
	}
}

// HasArg reports whether key appears on the block's command line.
func (d *TestData) HasArg(key string) bool {
	for _, a := range d.CmdArgs {
		if a.Key == key {
			return true
		}
	}
	return false
}

// ScanArgs locates the first CmdArg named key and scans its values into
// dests, failing the test if key is absent or the arity doesn't match.
func (d *TestData) ScanArgs(t *testing.T, key string, dests ...interface{}) {
	t.Helper()
	for _, a := range d.CmdArgs {
		if a.Key != key {
			continue
		}
		if len(dests) != len(a.Vals) {
			t.Fatalf("%s: got %d destinations, %d values", key, len(dests), len(a.Vals))
		}
		for i := range dests {
			a.Scan(t, i, dests[i])
		}
		return
	}
	t.Fatalf("missing argument: %s", key)
}

// Fatalf fails tb with d's position prefixed, so the fixture line is easy to
// find.
func (d TestData) Fatalf(tb testing.TB, format string, args ...interface{}) {
	tb.Helper()
	tb.Fatalf("%s: %s", d.Pos, fmt.Sprintf(format, args...))
}

// RunTest drives every block in the fixture at path through f, comparing
// f's return value against the block's expected output.
func RunTest(t *testing.T, path string, f func(t *testing.T, d *TestData) string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	blocks, err := parse(path, string(raw))
	if err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	changed := false
	for _, d := range blocks {
		actual := f(t, d)
		if actual != "" && !strings.HasSuffix(actual, "\n") {
			actual += "\n"
		}
		if t.Failed() {
			t.FailNow()
		}
		if actual != d.Expected {
			if !*rewriteFixtures {
				t.Fatalf("%s: %s\n%s", d.Pos, d.Input, unifiedDiff(d.Expected, actual))
			}
			changed = true
		}
		writeBlock(&out, d, actual)
	}

	if *rewriteFixtures && changed {
		if err := os.WriteFile(path, []byte(out.String()), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// unifiedDiff renders expected vs. actual as a unified diff, the same way
// otan-cockroach-datadriven's sole dependency is used upstream to report
// mismatches.
func unifiedDiff(expected, actual string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("expected:\n%sfound:\n%s", expected, actual)
	}
	if text == "" {
		return "(no textual diff, but values differ)"
	}
	return text
}

func writeBlock(out *strings.Builder, d *TestData, actual string) {
	out.WriteString(d.Cmd)
	for _, a := range d.CmdArgs {
		out.WriteByte(' ')
		out.WriteString(a.String())
	}
	out.WriteByte('\n')
	out.WriteString(d.Input)
	out.WriteString("----\n")
	out.WriteString(actual)
	out.WriteByte('\n')
}

// Walk runs f once per non-hidden file directly under dir, each in its own
// subtest named after the file, mirroring otan-cockroach-datadriven's Walk
// but without its nested-directory recursion (this module's fixtures are
// single-level).
func Walk(t *testing.T, dir string, f func(t *testing.T, path string)) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() || tempFileRe.MatchString(e.Name()) {
			continue
		}
		name := e.Name()
		t.Run(name, func(t *testing.T) {
			f(t, filepath.Join(dir, name))
		})
	}
}

var tempFileRe = regexp.MustCompile(`(^\..*)|(.*~$)|(^#.*#$)`)

// parse splits content into blocks separated by a line containing exactly
// "----".
func parse(path, content string) ([]*TestData, error) {
	lines := strings.Split(content, "\n")
	var blocks []*TestData
	i := 0
	for i < len(lines) {
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i >= len(lines) {
			break
		}

		cmdLine := lines[i]
		cmdLineNo := i + 1
		i++

		var inputLines []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "----" {
			inputLines = append(inputLines, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, fmt.Errorf("%s:%d: block missing ---- separator", path, cmdLineNo)
		}
		i++ // consume "----"

		var expectedLines []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			expectedLines = append(expectedLines, lines[i])
			i++
		}

		cmd, args, err := parseCmdLine(cmdLine)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, cmdLineNo, err)
		}

		blocks = append(blocks, &TestData{
			Pos:      fmt.Sprintf("%s:%d", path, cmdLineNo),
			Cmd:      cmd,
			CmdArgs:  args,
			Input:    joinNonEmpty(inputLines),
			Expected: joinNonEmpty(expectedLines),
		})
	}
	return blocks, nil
}

func joinNonEmpty(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func parseCmdLine(line string) (string, []CmdArg, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty command line")
	}
	cmd := fields[0]
	// A parenthesized value list may contain spaces ("k=(a, b)"): rejoin
	// the fields it was split into.
	var toks []string
	for _, f := range fields[1:] {
		if n := len(toks); n > 0 && strings.Contains(toks[n-1], "=(") && !strings.HasSuffix(toks[n-1], ")") {
			toks[n-1] += " " + f
			continue
		}
		toks = append(toks, f)
	}
	var args []CmdArg
	for _, tok := range toks {
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			args = append(args, CmdArg{Key: tok})
			continue
		}
		key := tok[:eq]
		val := tok[eq+1:]
		val = strings.TrimSuffix(strings.TrimPrefix(val, "("), ")")
		vals := strings.Split(val, ",")
		for i := range vals {
			vals[i] = strings.TrimSpace(vals[i])
		}
		args = append(args, CmdArg{Key: key, Vals: vals})
	}
	return cmd, args, nil
}
