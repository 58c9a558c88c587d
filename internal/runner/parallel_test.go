package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tikl-run/tikl/internal/report"
	"github.com/tikl-run/tikl/internal/runner"
)

func TestRunFilesSerialStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a.tikl", "// RUN: true\n")
	b := writeTestFile(t, dir, "b.tikl", "// RUN: false\n")
	c := writeTestFile(t, dir, "c.tikl", "// RUN: true\n")

	cfg := newConfig(t)
	out, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer out.Close()

	results := runner.RunFiles(context.Background(), cfg, []string{a, b, c}, 1, out)
	require.Len(t, results, 2)
	require.Equal(t, report.StatusOK, results[0].Outcome.Status)
	require.Equal(t, report.StatusFail, results[1].Outcome.Status)
}

func TestFirstNonZeroExitAllPass(t *testing.T) {
	results := []runner.FileResult{
		{Outcome: runner.Outcome{Status: report.StatusOK, ExitCode: 0}},
		{Outcome: runner.Outcome{Status: report.StatusSkip, ExitCode: 0}},
	}
	require.Equal(t, 0, runner.FirstNonZeroExit(results))
}

func TestFirstNonZeroExitReturnsFailingCode(t *testing.T) {
	results := []runner.FileResult{
		{Outcome: runner.Outcome{Status: report.StatusOK, ExitCode: 0}},
		{Outcome: runner.Outcome{Status: report.StatusFail, ExitCode: 7}},
	}
	require.Equal(t, 7, runner.FirstNonZeroExit(results))
}

func TestRunFilesParallelRunsEveryFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 4; i++ {
		paths = append(paths, writeTestFile(t, dir, filepath.Base(dir)+string(rune('a'+i))+".tikl", "// RUN: true\n"))
	}

	cfg := newConfig(t)
	out, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer out.Close()

	results := runner.RunFiles(context.Background(), cfg, paths, 2, out)
	require.Len(t, results, 4)
	for _, r := range results {
		require.Equal(t, report.StatusOK, r.Outcome.Status)
	}
}
