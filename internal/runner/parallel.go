package runner

import (
	"context"
	"errors"
	"os"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/tikl-run/tikl/internal/plan"
	"github.com/tikl-run/tikl/internal/report"
	"github.com/tikl-run/tikl/internal/tklerr"
)

// FileResult pairs a test file with its outcome, for aggregation by the
// caller.
type FileResult struct {
	Path    string
	Outcome Outcome
	Err     error
}

// RunFiles drives one or more test files. When jobs > 1 and more than one
// file is given, up to jobs workers run files concurrently (spec.md §4.D
// "Parallel execution"); each worker gets its own copy of cfg (see
// cloneConfig). On the first failing file, the orchestrator stops submitting
// new work but lets already-running workers finish (spec.md §5
// "Cancellation").
func RunFiles(ctx context.Context, cfg *Config, paths []string, jobs int, w *os.File) []FileResult {
	if jobs < 1 {
		jobs = 1
	}
	if jobs == 1 || len(paths) == 1 {
		return runFilesSerially(ctx, cfg, paths, w)
	}
	return runFilesInParallel(ctx, cfg, paths, jobs, w)
}

func runFilesSerially(ctx context.Context, cfg *Config, paths []string, w *os.File) []FileResult {
	var results []FileResult
	for _, p := range paths {
		report.Begin(w, p)
		outcome, err := RunFile(ctx, cfg, p, w)
		report.End(w, p, outcome.Status, outcome.Detail)
		results = append(results, FileResult{Path: p, Outcome: outcome, Err: err})
		if err != nil || outcome.Status == report.StatusFail || outcome.Status == report.StatusXPass {
			break
		}
	}
	return results
}

func runFilesInParallel(ctx context.Context, cfg *Config, paths []string, jobs int, w *os.File) []FileResult {
	var stopped atomic.Bool
	p := pool.New().WithMaxGoroutines(jobs)

	resultsCh := make(chan FileResult, len(paths))

	for _, path := range paths {
		if stopped.Load() {
			break
		}
		path := path
		workerCfg := cloneConfig(cfg)
		p.Go(func() {
			var catcher panics.Catcher
			catcher.Try(func() {
				report.Begin(w, path)
				outcome, err := RunFile(ctx, workerCfg, path, w)
				report.End(w, path, outcome.Status, outcome.Detail)
				if err != nil || outcome.Status == report.StatusFail || outcome.Status == report.StatusXPass {
					stopped.Store(true)
				}
				resultsCh <- FileResult{Path: path, Outcome: outcome, Err: err}
			})
			if recovered := catcher.Recovered(); recovered != nil {
				stopped.Store(true)
				resultsCh <- FileResult{Path: path, Outcome: Outcome{Status: report.StatusFail}, Err: recovered.AsError()}
			}
		})
	}
	p.Wait()
	close(resultsCh)

	var results []FileResult
	for r := range resultsCh {
		results = append(results, r)
	}
	return results
}

// cloneConfig gives a worker its own copy of cfg and of its substitution
// table, since nothing is shared mutable between workers (spec.md §5).
func cloneConfig(cfg *Config) *Config {
	clone := *cfg
	clone.UserSubs = plan.NewTable()
	for _, k := range cfg.UserSubs.Keys() {
		v, _ := cfg.UserSubs.Get(k)
		clone.UserSubs.Set(k, v)
	}
	return &clone
}

// FirstNonZeroExit implements "the parent collects exit codes...first
// non-zero wins" (spec.md §4.D / §5).
func FirstNonZeroExit(results []FileResult) int {
	for _, r := range results {
		if r.Err == nil && r.Outcome.Status != report.StatusFail && r.Outcome.Status != report.StatusXPass {
			continue
		}
		if r.Outcome.ExitCode != 0 {
			return r.Outcome.ExitCode
		}
		var te *tklerr.Error
		if errors.As(r.Err, &te) {
			return te.ExitStatus()
		}
		return 1
	}
	return 0
}
