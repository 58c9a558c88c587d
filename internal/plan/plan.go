// Package plan computes per-test substitution tables (%s, %S, %t, %T, %b,
// %B plus user keys) and the checker handoff blob, and drives the
// placeholder engine to materialize concrete commands.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tikl-run/tikl/internal/subst"
)

// reservedKeys names the builtin substitution keys that user configuration
// may never override.
var reservedKeys = map[string]bool{
	"s": true, "S": true, "b": true, "B": true, "t": true, "T": true,
}

// Table is an ordered key/value substitution table. Duplicate Set calls
// replace the prior value while preserving first-insertion order.
type Table struct {
	order []string
	vals  map[string]string
}

func NewTable() *Table {
	return &Table{vals: make(map[string]string)}
}

func (t *Table) Set(key, val string) {
	if _, exists := t.vals[key]; !exists {
		t.order = append(t.order, key)
	}
	t.vals[key] = val
}

func (t *Table) Get(key string) (string, bool) {
	v, ok := t.vals[key]
	return v, ok
}

func (t *Table) Keys() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Lookup adapts Table to subst.Lookup.
func (t *Table) Lookup(name string) (string, bool) {
	return t.Get(name)
}

// Roots bundles the caller-configured output roots used when deriving %b/%B
// and %t/%T.
type Roots struct {
	BinRoot     string // default "bin"
	ScratchRoot string // "" falls back to a per-test temp dir, then /tmp
}

// Plan is the fully-resolved substitution state for one test file.
type Plan struct {
	Builtins *Table // s, S, b, B, t, T
	User     *Table // user-supplied config keys, pre-expanded against builtins
	TestDir  string // the per-test temp directory actually used, if any
}

// Build computes %s, %S, %b, %B, %t, %T for testPath (as given) and
// testAbsPath (its absolute form), creating directories/files as the spec
// requires.
func Build(testPath, testAbsPath string, roots Roots) (*Plan, error) {
	p := &Plan{Builtins: NewTable(), User: NewTable()}

	s, err := computeS(testPath, testAbsPath)
	if err != nil {
		return nil, err
	}
	p.Builtins.Set("s", s)
	p.Builtins.Set("S", dirOrDot(s))

	b, err := computeB(s, roots.BinRoot)
	if err != nil {
		return nil, err
	}
	p.Builtins.Set("b", b)
	p.Builtins.Set("B", dirOrDot(b))

	tDir, tFile, tier, err := computeT(roots.ScratchRoot)
	if err != nil {
		return nil, err
	}
	p.TestDir = tDir
	p.Builtins.Set("T", tDir)
	p.Builtins.Set("t", tFile)
	// Non-reserved diagnostic key recording which fallback tier served %T,
	// restored from original_source/tikl.c's silent per-test-dir -> scratch
	// -> /tmp chain for troubleshooting flaky scratch-space setups.
	p.Builtins.Set("__tmp_tier", tier)

	return p, nil
}

func dirOrDot(p string) string {
	d := filepath.Dir(p)
	if d == "" {
		return "."
	}
	return d
}

// computeS returns a cwd-relative form of testAbsPath if it lies under the
// current working directory; otherwise testPath with a leading "./"
// stripped.
func computeS(testPath, testAbsPath string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(cwd, testAbsPath)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return rel, nil
	}
	return strings.TrimPrefix(testPath, "./"), nil
}

// computeB derives the binary-artifact path from s by stripping the last
// extension and re-rooting under binRoot (default "bin"), creating the
// containing directory.
func computeB(s, binRoot string) (string, error) {
	if binRoot == "" {
		binRoot = "bin"
	}
	ext := filepath.Ext(s)
	stripped := strings.TrimSuffix(s, ext)
	b := filepath.Join(binRoot, stripped)
	if err := os.MkdirAll(filepath.Dir(b), 0o755); err != nil {
		return "", fmt.Errorf("creating %%B directory for %s: %w", b, err)
	}
	return b, nil
}

// computeT creates a per-test temp directory (falling back to scratchRoot,
// then os.TempDir()) and a uniquely-named file reserved within it, reporting
// which tier of the fallback chain was actually used.
func computeT(scratchRoot string) (dir, file, tier string, err error) {
	dir, err = os.MkdirTemp("", "tikl-test-*")
	tier = "per-test"
	if err != nil {
		if scratchRoot != "" {
			dir, err = os.MkdirTemp(scratchRoot, "tikl-test-*")
			tier = "scratch-root"
		}
		if err != nil {
			dir = os.TempDir()
			tier = "tmp-fallback"
			err = nil
		}
	}
	f, err := os.CreateTemp(dir, "tikl-t-*")
	if err != nil {
		return "", "", "", fmt.Errorf("reserving %%t file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	return dir, path, tier, nil
}

// ConfigPass rewrites cmd by repeatedly invoking the placeholder engine
// against user (helpers disabled) up to maxIterations times or until a
// fixed point is reached, then runs once more with helpers enabled and the
// builtin table to resolve positional placeholders and function calls.
func ConfigPass(cmd string, user, builtins *Table, who string, maxIterations int) (string, error) {
	cur := cmd
	for i := 0; i < maxIterations; i++ {
		next, err := subst.Expand(cur, true, false, user.Lookup, who)
		if err != nil {
			return "", err
		}
		if next == cur {
			break
		}
		cur = next
	}
	return subst.Expand(cur, true, true, builtins.Lookup, who)
}

// Blob renders the checker handoff blob: a newline-separated key=value
// record carrying the reserved builtins plus every user key, with user
// values pre-expanded against builtins and the user table.
func Blob(builtins, user *Table, who string) (string, error) {
	var lines []string
	for _, k := range builtins.Keys() {
		v, _ := builtins.Get(k)
		lines = append(lines, k+"="+v)
	}

	userKeys := make([]string, 0, len(user.Keys()))
	userKeys = append(userKeys, user.Keys()...)
	sort.Strings(userKeys)
	for _, k := range userKeys {
		if reservedKeys[k] {
			continue
		}
		raw, _ := user.Get(k)
		expanded, err := ConfigPass(raw, user, builtins, who, 8)
		if err != nil {
			return "", err
		}
		lines = append(lines, k+"="+expanded)
	}
	return strings.Join(lines, "\n"), nil
}

// ParseBlob parses a handoff blob produced by Blob back into a Table.
func ParseBlob(blob string) *Table {
	t := NewTable()
	if blob == "" {
		return t
	}
	for _, line := range strings.Split(blob, "\n") {
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '='); idx >= 0 {
			t.Set(line[:idx], line[idx+1:])
		}
	}
	return t
}

// IsReserved reports whether key is one of the builtin substitution keys
// that user configuration may not override.
func IsReserved(key string) bool {
	return reservedKeys[key]
}
