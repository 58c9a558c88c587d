// Command tikl-check verifies captured command output against CHECK-family
// directives embedded in a test file (spec.md §6 "Checker CLI").
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/tikl-run/tikl/internal/check"
	"github.com/tikl-run/tikl/internal/plan"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := kingpin.New("tikl-check", "verify captured output against CHECK directives")
	prefixes := app.Flag("check-prefix", "directive prefix to match (repeatable, default CHECK)").Short('p').Strings()
	printOnFail := app.Flag("print-output-on-fail", "dump the captured output when a violation occurs").Short('x').Bool()
	testFile := app.Arg("file", "test file whose CHECK directives are verified").Required().String()

	if _, err := app.Parse(argv); err != nil {
		fmt.Fprintln(stderr, "tikl-check:", err)
		return 2
	}

	content, err := os.ReadFile(*testFile)
	if err != nil {
		fmt.Fprintf(stderr, "tikl-check: reading %s: %s\n", *testFile, err)
		return 2
	}

	captured, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintln(stderr, "tikl-check: reading captured output:", err)
		return 2
	}

	litCompat := os.Getenv("TIKL_LIT_COMPAT") != "" && os.Getenv("TIKL_LIT_COMPAT") != "0"
	substs := plan.ParseBlob(os.Getenv("TIKL_CHECK_SUBSTS"))

	opts := check.Options{
		Prefixes:       *prefixes,
		HelpersEnabled: !litCompat,
		ExpansionOn:    !litCompat,
		LitCompat:      litCompat,
		Lookup:         substs.Lookup,
		Who:            "tikl-check",
	}

	directives, err := check.ParseFile(*testFile, string(content), opts)
	if err != nil {
		fmt.Fprintf(stderr, "tikl-check: %s\n", err)
		return 2
	}

	output := check.SplitOutput(string(captured))
	violations := check.Run(directives, output)

	if len(violations) == 0 {
		return 0
	}

	fail := color.New(color.FgRed, color.Bold)
	for _, v := range violations {
		fail.Fprintf(stderr, "%s: ", v.File)
		fmt.Fprintf(stderr, "%d: %s: %s (%s)\n", v.Line, v.Label, v.Pattern, v.Extra)
	}
	if *printOnFail {
		fmt.Fprintln(stderr, "--- captured output ---")
		for _, line := range output {
			fmt.Fprintln(stderr, line)
		}
	}
	return 1
}
