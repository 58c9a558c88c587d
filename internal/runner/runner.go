// Package runner implements the test orchestrator (spec.md §4.D): per-test
// feature gating, RUN-step execution with timeout/retry/xfail semantics,
// and environment handoff to the checker.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tikl-run/tikl/internal/directive"
	"github.com/tikl-run/tikl/internal/plan"
	"github.com/tikl-run/tikl/internal/report"
	"github.com/tikl-run/tikl/internal/shellexec"
	"github.com/tikl-run/tikl/internal/tklerr"
)

// Config is the process-wide configuration threaded explicitly through the
// orchestrator, replacing the original tool's global state (spec.md §9
// "Global runtime state").
type Config struct {
	BinRoot     string
	ScratchRoot string
	TimeoutSecs int
	LitCompat   bool
	Verbose     bool
	Features    map[string]bool
	UserSubs    *plan.Table
	Shell       *shellexec.Shell
}

const handoffEnvVar = "TIKL_CHECK_SUBSTS"
const litCompatEnvVar = "TIKL_LIT_COMPAT"

// NewConfig builds a Config with the implicit "check" feature always
// present, per spec.md §3 "Feature set".
func NewConfig() *Config {
	return &Config{
		Features: map[string]bool{"check": true},
		UserSubs: plan.NewTable(),
		BinRoot:  "bin",
	}
}

// Outcome is the per-test result the orchestrator reports to its caller.
type Outcome struct {
	Status   report.Status
	Detail   string
	ExitCode int
}

// RunFile resolves path, scans its directives, and drives its RUN steps to
// completion.
func RunFile(ctx context.Context, cfg *Config, path string, w *os.File) (Outcome, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Outcome{}, tklerr.New(tklerr.CodeSetup, "resolving test path", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Outcome{}, tklerr.New(tklerr.CodeSetup, "opening test file", err)
	}
	defer f.Close()

	rec, err := directive.Scan(f, func(msg string) {
		fmt.Fprintf(os.Stderr, "%s: %s\n", path, msg)
	})
	if err != nil {
		return Outcome{}, tklerr.New(tklerr.CodeSetup, "scanning directives", err)
	}

	if missing := firstMissing(cfg.Features, rec.Requires); missing != "" {
		return Outcome{Status: report.StatusSkip, Detail: "missing feature " + missing}, nil
	}
	if present := firstPresent(cfg.Features, rec.Unsupported); present != "" {
		return Outcome{Status: report.StatusSkip, Detail: "unsupported feature " + present}, nil
	}

	if len(rec.RunCommands) == 0 {
		if rec.XFail {
			return Outcome{Status: report.StatusXFail, Detail: "no RUN lines"}, nil
		}
		return Outcome{Status: report.StatusFail, ExitCode: 1}, tklerr.New(tklerr.CodeSetup, "no RUN directives found", nil)
	}

	p, err := plan.Build(path, absPath, plan.Roots{BinRoot: cfg.BinRoot, ScratchRoot: cfg.ScratchRoot})
	if err != nil {
		return Outcome{}, tklerr.New(tklerr.CodeSetup, "building substitution plan", err)
	}

	if err := exportHandoff(cfg, p); err != nil {
		return Outcome{}, tklerr.New(tklerr.CodeSetup, "building checker handoff", err)
	}

	return runSteps(ctx, cfg, rec, p, path)
}

func firstMissing(features map[string]bool, required []string) string {
	for _, r := range required {
		if !features[r] {
			return r
		}
	}
	return ""
}

func firstPresent(features map[string]bool, unsupported []string) string {
	for _, u := range unsupported {
		if features[u] {
			return u
		}
	}
	return ""
}

func exportHandoff(cfg *Config, p *plan.Plan) error {
	for _, k := range cfg.UserSubs.Keys() {
		v, _ := cfg.UserSubs.Get(k)
		p.User.Set(k, v)
	}

	if cfg.LitCompat {
		os.Unsetenv(handoffEnvVar)
		os.Setenv(litCompatEnvVar, "1")
		return nil
	}
	os.Unsetenv(litCompatEnvVar)

	blob, err := plan.Blob(p.Builtins, p.User, "tikl")
	if err != nil {
		return err
	}
	if blob == "" {
		os.Unsetenv(handoffEnvVar)
		return nil
	}
	return os.Setenv(handoffEnvVar, blob)
}

func runSteps(ctx context.Context, cfg *Config, rec *directive.Record, p *plan.Plan, path string) (Outcome, error) {
	attempts := rec.AllowRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for i, cmd := range rec.RunCommands {
		final, err := plan.ConfigPass(cmd, p.User, p.Builtins, "tikl", 8)
		if err != nil {
			return finish(rec, report.StatusFail, 1), tklerr.New(tklerr.CodeSetup, "expanding RUN command", err)
		}

		var result shellexec.Result
		var runErr error
		for attempt := 0; attempt < attempts; attempt++ {
			result, runErr = cfg.Shell.Run(ctx, final, cfg.TimeoutSecs, cfg.LitCompat, cfg.Verbose)
			if runErr != nil {
				continue
			}
			if result.ExitCode == 0 {
				break
			}
		}

		if runErr != nil {
			return finish(rec, report.StatusFail, 127), tklerr.New(tklerr.CodeSetup, "invoking shell", runErr)
		}

		if result.ExitCode != 0 {
			if rec.XFail {
				reason := rec.XFailReason
				if reason == "" {
					reason = fmt.Sprintf("step %d exit %d", i+1, result.ExitCode)
				} else {
					reason = fmt.Sprintf("step %d exit %d; %s", i+1, result.ExitCode, reason)
				}
				return Outcome{Status: report.StatusXFail, Detail: reason}, nil
			}
			detail := fmt.Sprintf("step %d exit %d", i+1, result.ExitCode)
			if result.TimedOut {
				detail = fmt.Sprintf("step %d timed out", i+1)
			}
			return Outcome{Status: report.StatusFail, Detail: detail, ExitCode: result.ExitCode},
				tklerr.New(tklerr.CodeStep, detail, nil)
		}
	}

	if rec.XFail {
		return Outcome{Status: report.StatusXPass}, tklerr.New(tklerr.CodeStep, "expected failure did not occur", nil)
	}
	return finish(rec, report.StatusOK, 0), nil
}

func finish(rec *directive.Record, status report.Status, exitCode int) Outcome {
	return Outcome{Status: status, ExitCode: exitCode}
}

// FeatureSet builds the feature map from a list of -D FEATURE flags, always
// including the implicit "check" tag.
func FeatureSet(defs []string) map[string]bool {
	m := map[string]bool{"check": true}
	for _, d := range defs {
		d = strings.TrimSpace(d)
		if d != "" {
			m[d] = true
		}
	}
	return m
}
