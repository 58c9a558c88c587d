// Command tikl discovers RUN/REQUIRES/UNSUPPORTED/XFAIL/ALLOW_RETRIES
// directives in test files and executes them (spec.md §6 "Runner CLI").
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/tikl-run/tikl/internal/plan"
	"github.com/tikl-run/tikl/internal/runner"
	"github.com/tikl-run/tikl/internal/shellexec"
	"github.com/tikl-run/tikl/internal/tklconfig"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	argv, userSubs, err := splicePrelude(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tikl:", err)
		return 2
	}

	app := kingpin.New("tikl", "directive-driven integration test runner")
	app.Version("tikl 1.0.0")
	app.VersionFlag.Short('V')
	verbose := app.Flag("verbose", "verbose: echo each RUN command before executing it").Short('v').Bool()
	quiet := app.Flag("quiet", "quiet: suppress per-test status lines").Short('q').Bool()
	_ = app.Flag("config", "config file to read before parsing further flags").Short('c').String()
	defines := app.Flag("define", "declare a feature tag available to REQUIRES/UNSUPPORTED").Short('D').Strings()
	timeout := app.Flag("timeout", "per-step timeout in seconds (0 disables)").Short('t').Default("0").Int()
	scratchDir := app.Flag("scratch-dir", "scratch root for %t/%T").Short('T').String()
	binDir := app.Flag("bin-dir", "binary-output root for %b/%B").Short('b').Default("bin").String()
	jobs := app.Flag("jobs", "number of test files to run concurrently").Short('j').Default("1").Int()
	litCompat := app.Flag("lit-compat", "disable tikl extensions for lit/FileCheck compatibility").Short('L').Bool()
	files := app.Arg("file", "test files to run").Required().Strings()

	if _, err := app.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, "tikl:", err)
		return 2
	}

	// verbose wins over quiet when both are given (original_source/tikl.c's
	// "if (quiet && verbose) quiet = false;").
	effectiveQuiet := *quiet && !*verbose

	cfg := runner.NewConfig()
	cfg.Verbose = *verbose
	// CLI -L always wins over a config-file -L, which in turn wins over
	// TIKL_LIT_COMPAT, per original_source/tikl.c's flag-parsing order
	// (spec.md's "Supplemented features").
	cfg.LitCompat = *litCompat
	cfg.TimeoutSecs = *timeout
	cfg.ScratchRoot = *scratchDir
	cfg.BinRoot = *binDir
	cfg.Features = runner.FeatureSet(*defines)
	cfg.Shell = shellexec.Resolve()
	cfg.UserSubs = userSubs

	if !cfg.LitCompat {
		if envVal := os.Getenv("TIKL_LIT_COMPAT"); envVal != "" && envVal != "0" {
			cfg.LitCompat = true
		}
	}

	if effectiveQuiet {
		devNull, _ := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		os.Stdout = devNull
	}

	results := runner.RunFiles(context.Background(), cfg, *files, *jobs, os.Stdout)
	return runner.FirstNonZeroExit(results)
}

// splicePrelude finds the first "-c FILE" / "--config=FILE" argument,
// parses it per spec.md §6's config-file format, prepends its "-"-lines to
// argv ahead of everything else (nested "-c" ignored), and returns its
// KEY=VALUE entries as a user substitution table.
func splicePrelude(argv []string) ([]string, *plan.Table, error) {
	for i, a := range argv {
		var path string
		switch {
		case a == "-c" && i+1 < len(argv):
			path = argv[i+1]
		case strings.HasPrefix(a, "--config="):
			path = strings.TrimPrefix(a, "--config=")
		default:
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		cfgFile, err := tklconfig.Parse(f)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing config file: %w", err)
		}

		userSubs, err := userSubsFromConfig(cfgFile.Vars)
		if err != nil {
			return nil, nil, err
		}

		rest := append([]string{}, argv[:i]...)
		if a == "-c" {
			rest = append(rest, argv[i+2:]...)
		} else {
			rest = append(rest, argv[i+1:]...)
		}
		return append(cfgFile.PrependArgs, rest...), userSubs, nil
	}
	return argv, plan.NewTable(), nil
}

// userSubsFromConfig turns KEY=VALUE config entries into a substitution
// table, rejecting attempts to override the reserved builtin keys
// (spec.md §3).
func userSubsFromConfig(entries []tklconfig.KV) (*plan.Table, error) {
	t := plan.NewTable()
	for _, kv := range entries {
		if plan.IsReserved(kv.Key) {
			return nil, fmt.Errorf("config key %q is reserved", kv.Key)
		}
		t.Set(kv.Key, kv.Value)
	}
	return t, nil
}
