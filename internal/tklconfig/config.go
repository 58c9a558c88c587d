// Package tklconfig parses the runner's config-file format (spec.md §6):
// "#" and blank lines are ignored, "-"-prefixed lines are tokenized and
// prepended to the CLI argument list, and all other lines are KEY = VALUE
// pairs.
package tklconfig

import (
	"bufio"
	"io"
	"strings"
)

// File holds the parsed contents of a config file.
type File struct {
	// PrependArgs are tokens from "-"-prefixed lines, to be prepended to
	// the runner's argv (nested "-c" is ignored by the caller).
	PrependArgs []string
	// Vars holds KEY = VALUE entries in source order; later duplicates
	// override earlier ones.
	Vars []KV
}

// KV is one KEY = VALUE config entry.
type KV struct {
	Key   string
	Value string
}

// Parse reads a config file, per spec.md §6's "Config file format".
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	seen := make(map[string]int) // key -> index in f.Vars, for override-in-place

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "-") {
			// No quoting support: embedded spaces in flag values are not
			// representable. Preserve this, per spec.md §9.
			fields := strings.Fields(line)
			for i := 0; i < len(fields); i++ {
				if fields[i] == "-c" {
					// Drop the nested "-c" and its argument, matching
					// original_source/tikl.c's parse_config, which calls
					// strtok(NULL, " \t") twice to discard both.
					i++
					continue
				}
				f.PrependArgs = append(f.PrependArgs, fields[i])
			}
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if pos, ok := seen[key]; ok {
			f.Vars[pos].Value = val
			continue
		}
		seen[key] = len(f.Vars)
		f.Vars = append(f.Vars, KV{Key: key, Value: val})
	}
	return f, scanner.Err()
}
