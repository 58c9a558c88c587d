// Package check implements the CHECK/CHECK-NEXT/CHECK-SAME/CHECK-EMPTY/
// CHECK-NOT/CHECK-COUNT pattern state machine that verifies captured
// command output against directives parsed from a test file.
package check

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tikl-run/tikl/internal/subst"
)

// Kind identifies which CHECK family member a directive belongs to.
type Kind int

const (
	Forward Kind = iota
	Next
	Same
	Empty
	Not
	Count
)

func (k Kind) Label(prefix string) string {
	switch k {
	case Forward:
		return prefix
	case Next:
		return prefix + "-NEXT"
	case Same:
		return prefix + "-SAME"
	case Empty:
		return prefix + "-EMPTY"
	case Not:
		return prefix + "-NOT"
	case Count:
		return prefix + "-COUNT"
	default:
		return prefix
	}
}

// Directive is one compiled CHECK-family directive.
type Directive struct {
	Kind      Kind
	Prefix    string
	Pattern   string // original pattern text, for diagnostics
	Regex     *regexp.Regexp
	CountWant int
	File      string
	Line      int
	cursor    *cursor
}

// cursor tracks the per-prefix matching state described in spec.md §3.
type cursor struct {
	lastLine int
	matched  bool
}

// Violation describes one failed directive.
type Violation struct {
	File    string
	Line    int
	Label   string
	Pattern string
	Extra   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d: %s: %s (%s)", v.File, v.Line, v.Label, v.Pattern, v.Extra)
}

// Options configures directive parsing and pattern compilation.
type Options struct {
	Prefixes       []string // default: ["CHECK"]
	HelpersEnabled bool
	ExpansionOn    bool // disabled entirely in lit-compat mode
	LitCompat      bool // literal region passed through without escaping
	Lookup         subst.Lookup
	Who            string
}

// ParseFile scans the lines of content for directives matching any of
// opts.Prefixes and compiles each into a Directive.
func ParseFile(filename string, content string, opts Options) ([]*Directive, error) {
	prefixes := opts.Prefixes
	if len(prefixes) == 0 {
		prefixes = []string{"CHECK"}
	}
	cursors := make(map[string]*cursor, len(prefixes))
	for _, p := range prefixes {
		cursors[p] = &cursor{}
	}

	var directives []*Directive
	lineNo := 0
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, prefix := range prefixes {
			kind, rest, ok := matchDirectiveLine(line, prefix)
			if !ok {
				continue
			}
			d, err := compileDirective(filename, lineNo, prefix, kind, rest, cursors[prefix], opts)
			if err != nil {
				return nil, err
			}
			directives = append(directives, d)
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return directives, nil
}

// matchDirectiveLine finds the first substring match of prefix followed by
// one of the recognized suffixes, returning the directive kind and the
// remainder of the line after the matched tag.
func matchDirectiveLine(line, prefix string) (Kind, string, bool) {
	type tag struct {
		suffix string
		kind   Kind
	}
	tags := []tag{
		{"-NEXT:", Next},
		{"-SAME:", Same},
		{"-EMPTY:", Empty},
		{"-NOT:", Not},
		{"-COUNT:", Count},
		{":", Forward},
	}
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return 0, "", false
	}
	rest := line[idx+len(prefix):]
	for _, tg := range tags {
		if strings.HasPrefix(rest, tg.suffix) {
			return tg.kind, rest[len(tg.suffix):], true
		}
	}
	return 0, "", false
}

func compileDirective(filename string, lineNo int, prefix string, kind Kind, rest string, c *cursor, opts Options) (*Directive, error) {
	rest = strings.TrimSpace(rest)

	d := &Directive{
		Kind:   kind,
		Prefix: prefix,
		File:   filename,
		Line:   lineNo,
		cursor: c,
	}

	if kind == Count {
		n, patternText, err := splitCount(rest)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %s: %w", filename, lineNo, kind.Label(prefix), err)
		}
		d.CountWant = n
		rest = patternText
	}

	patternText := rest
	if opts.ExpansionOn && !opts.LitCompat {
		expanded, err := subst.Expand(rest, true, opts.HelpersEnabled, opts.Lookup, opts.Who)
		if err != nil {
			return nil, err
		}
		patternText = expanded
	}
	d.Pattern = patternText

	if kind != Empty {
		reSrc, err := compilePattern(patternText, opts.LitCompat)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %s: invalid pattern %q: %w", filename, lineNo, kind.Label(prefix), patternText, err)
		}
		re, err := regexp.Compile(reSrc)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %s: regex compile %q: %w", filename, lineNo, kind.Label(prefix), reSrc, err)
		}
		d.Regex = re
	}

	return d, nil
}

func splitCount(rest string) (int, string, error) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("missing count or pattern")
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, "", fmt.Errorf("bad count %q: %w", parts[0], err)
	}
	// original_source/tikl-check.c's trim_leading(endptr) skips all
	// whitespace after the count, not just a single separating space.
	return n, strings.TrimLeft(parts[1], " \t"), nil
}

// metaChars is the set of characters regex-escaped in literal regions:
// ] [ . ^ $ \ * / + ? { } ( ) |
var metaChars = "][.^$\\*/+?{}()|"

func isMeta(b byte) bool {
	return strings.IndexByte(metaChars, b) >= 0
}

// compilePattern translates pattern text into a regex source string. In
// lit-compat mode the text is already a regex and is returned unchanged.
// Otherwise, {{...}} regions are inserted verbatim (a closing "}}" may be
// escaped as "\}}" to appear literally), and all other characters are
// regex-escaped, except that a backslash may escape one metacharacter to
// pass it through literally.
func compilePattern(pattern string, litCompat bool) (string, error) {
	if litCompat {
		return pattern, nil
	}

	var out strings.Builder
	i := 0
	for i < len(pattern) {
		if strings.HasPrefix(pattern[i:], "{{") {
			end, closeLen, found := findRegexBlockEnd(pattern, i+2)
			if !found {
				return "", fmt.Errorf("unterminated {{ at offset %d", i)
			}
			out.WriteString(pattern[i+2 : end])
			i = end + closeLen
			continue
		}
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) && isMeta(pattern[i+1]) {
			out.WriteByte('\\')
			out.WriteByte(pattern[i+1])
			i += 2
			continue
		}
		if isMeta(c) {
			out.WriteByte('\\')
			out.WriteByte(c)
		} else {
			out.WriteByte(c)
		}
		i++
	}
	return out.String(), nil
}

// findRegexBlockEnd scans forward from start looking for the first
// un-escaped "}}", honoring "\}}" as a literal escape that keeps scanning.
func findRegexBlockEnd(s string, start int) (end int, closeLen int, found bool) {
	i := start
	for i < len(s)-1 {
		if s[i] == '\\' && i+2 < len(s) && s[i+1] == '}' && s[i+2] == '}' {
			i += 3
			continue
		}
		if s[i] == '}' && s[i+1] == '}' {
			return i, 2, true
		}
		i++
	}
	return 0, 0, false
}

// Run matches directives in order against output (one entry per line, no
// trailing newline) and returns every violation encountered.
func Run(directives []*Directive, output []string) []Violation {
	var violations []Violation
	for _, d := range directives {
		if v, ok := runOne(d, output); !ok {
			violations = append(violations, v)
		}
	}
	return violations
}

func runOne(d *Directive, output []string) (Violation, bool) {
	label := d.Kind.Label(d.Prefix)
	switch d.Kind {
	case Forward:
		for ln := d.cursor.lastLine + 1; ln <= len(output); ln++ {
			if d.Regex.MatchString(output[ln-1]) {
				d.cursor.lastLine = ln
				d.cursor.matched = true
				return Violation{}, true
			}
		}
		return violation(d, label, "pattern not found"), false

	case Next:
		if !d.cursor.matched {
			return violation(d, label, "no prior match"), false
		}
		ln := d.cursor.lastLine + 1
		if ln > len(output) || !d.Regex.MatchString(output[ln-1]) {
			return violation(d, label, "next line mismatch"), false
		}
		d.cursor.lastLine = ln
		return Violation{}, true

	case Same:
		if !d.cursor.matched {
			return violation(d, label, "no prior match"), false
		}
		ln := d.cursor.lastLine
		if ln < 1 || ln > len(output) || !d.Regex.MatchString(output[ln-1]) {
			return violation(d, label, "same line mismatch"), false
		}
		return Violation{}, true

	case Empty:
		ln := d.cursor.lastLine + 1
		if !d.cursor.matched {
			ln = 1
		}
		if ln > len(output) || output[ln-1] != "" {
			return violation(d, label, "line not empty"), false
		}
		d.cursor.lastLine = ln
		d.cursor.matched = true
		return Violation{}, true

	case Not:
		for _, line := range output {
			if d.Regex.MatchString(line) {
				return violation(d, label, "unexpected match"), false
			}
		}
		return Violation{}, true

	case Count:
		n := 0
		for _, line := range output {
			if d.Regex.MatchString(line) {
				n++
			}
		}
		if n != d.CountWant {
			return violation(d, label, fmt.Sprintf("expected %d matches, found %d", d.CountWant, n)), false
		}
		return Violation{}, true
	}
	return Violation{}, true
}

func violation(d *Directive, label, extra string) Violation {
	return Violation{File: d.File, Line: d.Line, Label: label, Pattern: d.Pattern, Extra: extra}
}

// SplitOutput splits captured stdout into lines with any trailing newline
// stripped, matching the Output buffer semantics of spec.md §3.
func SplitOutput(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}
