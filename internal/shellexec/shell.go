// Package shellexec runs RUN-step command strings through the "external
// /bin/sh-like collaborator" spec.md treats as out of scope. It prefers a
// real interpreter found on disk (/bin/sh or $TIKL_SHELL) and falls back to
// the embedded pure-Go POSIX shell from mvdan.cc/sh when none is available,
// so the orchestrator always has a working collaborator to drive.
package shellexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const pipefailPrelude = "set -o pipefail 2>/dev/null || :; "

// Shell resolves and probes the collaborator once at startup and then
// executes RUN steps against it.
type Shell struct {
	path             string // resolved interpreter path, "" if falling back to the embedded one
	supportsPipefail bool
}

// Resolve picks $TIKL_SHELL or /bin/sh and probes pipefail support, per
// spec.md §4.D "Shell selection".
func Resolve() *Shell {
	path := os.Getenv("TIKL_SHELL")
	if path == "" {
		path = "/bin/sh"
	}
	sh := &Shell{path: path}
	if _, err := exec.LookPath(path); err != nil {
		// No usable external shell; the embedded interpreter will serve.
		sh.path = ""
		return sh
	}
	sh.supportsPipefail = probePipefail(path)
	return sh
}

func probePipefail(path string) bool {
	cmd := exec.Command(path, "-c", "set -o pipefail")
	return cmd.Run() == nil
}

// Result reports the outcome of one shell invocation.
type Result struct {
	Stdout   string
	ExitCode int
	TimedOut bool
}

// Run executes script, honoring timeoutSecs (0 means no timeout) and
// litCompat (which disables the pipefail prelude). Combined stdout+stderr is
// captured, matching "the commands' combined standard output" from spec.md
// §1.
func (s *Shell) Run(ctx context.Context, script string, timeoutSecs int, litCompat bool, verbose bool) (Result, error) {
	final := script
	if !litCompat && s.path != "" && s.supportsPipefail {
		final = pipefailPrelude + script
	}

	if verbose {
		os.Stderr.WriteString("    $ " + script + "\n")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeoutSecs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
		defer cancel()
	}

	if s.path != "" {
		return s.runExternal(runCtx, final)
	}
	return s.runEmbedded(runCtx, final)
}

func (s *Shell) runExternal(ctx context.Context, script string) (Result, error) {
	cmd := exec.CommandContext(ctx, s.path, "-c", script)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.SysProcAttr = setpgidAttr()
	// On timeout, kill the whole process group so that pipeline children
	// still holding the output pipe do not keep Run waiting.
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	err := cmd.Run()
	res := Result{Stdout: buf.String()}

	if ctx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		res.TimedOut = true
		res.ExitCode = 124
		return res, nil
	}
	if err == nil {
		res.ExitCode = 0
		return res, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

// runEmbedded executes script using the pure-Go POSIX shell interpreter
// when no real /bin/sh-compatible binary is available on the host.
func (s *Shell) runEmbedded(ctx context.Context, script string) (Result, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		return Result{ExitCode: 2}, err
	}

	var buf bytes.Buffer
	runner, err := interp.New(interp.StdIO(nil, &buf, &buf))
	if err != nil {
		return Result{ExitCode: 2}, err
	}

	err = runner.Run(ctx, file)
	res := Result{Stdout: buf.String()}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = 124
		return res, nil
	}
	if err == nil {
		res.ExitCode = 0
		return res, nil
	}
	var status interp.ExitStatus
	if errors.As(err, &status) {
		res.ExitCode = int(status)
		return res, nil
	}
	return res, err
}
