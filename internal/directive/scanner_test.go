package directive_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tikl-run/tikl/internal/directive"
)

func TestScanBasicRun(t *testing.T) {
	src := "// RUN: echo hello\n// RUN: echo world\n"
	rec, err := directive.Scan(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"echo hello", "echo world"}, rec.RunCommands)
}

func TestScanLineContinuation(t *testing.T) {
	src := "// RUN: echo hello \\\n// RUN:   world\n"
	rec, err := directive.Scan(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"echo hello world"}, rec.RunCommands)
}

func TestScanRequiresAndUnsupported(t *testing.T) {
	src := "// REQUIRES: linux, amd64\n// UNSUPPORTED: windows\n// RUN: true\n"
	rec, err := directive.Scan(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"linux", "amd64"}, rec.Requires)
	require.Equal(t, []string{"windows"}, rec.Unsupported)
}

func TestScanXFail(t *testing.T) {
	src := "// XFAIL: known bug #123\n// RUN: false\n"
	rec, err := directive.Scan(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.True(t, rec.XFail)
	require.Equal(t, "known bug #123", rec.XFailReason)
}

func TestScanAllowRetriesLastOccurrenceWins(t *testing.T) {
	src := "// ALLOW_RETRIES: 2\n// ALLOW_RETRIES: 5\n// RUN: flaky\n"
	rec, err := directive.Scan(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.True(t, rec.HasAllowRetry)
	require.Equal(t, 5, rec.AllowRetries)
}

func TestScanMalformedAllowRetriesWarns(t *testing.T) {
	src := "// ALLOW_RETRIES: banana\n// RUN: true\n"
	var warnings []string
	rec, err := directive.Scan(strings.NewReader(src), func(msg string) { warnings = append(warnings, msg) })
	require.NoError(t, err)
	require.False(t, rec.HasAllowRetry)
	require.Len(t, warnings, 1)
}

func TestScanIgnoresNonDirectiveComments(t *testing.T) {
	src := "// just a comment\n// RUN: true\n"
	rec, err := directive.Scan(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"true"}, rec.RunCommands)
}

func TestScanTrailingContinuationWithoutFurtherLines(t *testing.T) {
	src := "// RUN: echo trailing \\\n"
	rec, err := directive.Scan(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"echo trailing "}, rec.RunCommands)
}
