package check_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tikl-run/tikl/internal/check"
	"github.com/tikl-run/tikl/internal/datadrive"
)

// TestFixtures drives testdata/check/*.txt through check.ParseFile and
// check.Run. Each block's input is "<directives>\n===\n<captured output>",
// and its expected output is "OK" or one violation per line.
func TestFixtures(t *testing.T) {
	datadrive.Walk(t, "../../testdata/check", func(t *testing.T, path string) {
		datadrive.RunTest(t, path, func(t *testing.T, d *datadrive.TestData) string {
			require.Equal(t, "check", d.Cmd)

			directivesText, outputText, ok := strings.Cut(d.Input, "===\n")
			require.True(t, ok, "fixture missing === separator")

			name := filepath.Base(path)
			directives, err := check.ParseFile(name, directivesText, check.Options{
				Prefixes:       []string{"CHECK"},
				HelpersEnabled: true,
				ExpansionOn:    true,
			})
			require.NoError(t, err)

			violations := check.Run(directives, check.SplitOutput(outputText))
			if len(violations) == 0 {
				return "OK\n"
			}
			var out strings.Builder
			for _, v := range violations {
				out.WriteString(v.String())
				out.WriteByte('\n')
			}
			return out.String()
		})
	})
}

func TestRunCheckNextRequiresPriorMatch(t *testing.T) {
	directives, err := check.ParseFile("t", "CHECK-NEXT: foo\n", check.Options{ExpansionOn: true})
	require.NoError(t, err)

	violations := check.Run(directives, []string{"foo"})
	require.Len(t, violations, 1)
	require.Equal(t, "CHECK-NEXT", violations[0].Label)
	require.Contains(t, violations[0].Extra, "no prior match")
}

func TestRunCheckSameSameLine(t *testing.T) {
	directives, err := check.ParseFile("t", "CHECK: foo\nCHECK-SAME: bar\n", check.Options{ExpansionOn: true})
	require.NoError(t, err)

	violations := check.Run(directives, []string{"foo bar"})
	require.Empty(t, violations)
}

func TestLiteralRegionMatchesVerbatim(t *testing.T) {
	directives, err := check.ParseFile("t", `CHECK: price: {{\$[0-9]+}}`+"\n", check.Options{ExpansionOn: true})
	require.NoError(t, err)

	violations := check.Run(directives, []string{"price: $42"})
	require.Empty(t, violations)
}
