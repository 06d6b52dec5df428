package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/cmd"
)

// Step is one external program invocation.
type Step struct {
	// Name is a short label used in progress output.
	Name string

	// Exec is the program to run, looked up in $PATH unless it has a slash.
	Exec string

	Args []string

	// Output is the file the step is expected to create, relative to the
	// working directory unless absolute.
	Output string
}

// String renders the step as a shell-like command line.
func (s Step) String() string {
	return strings.Join(append([]string{s.Exec}, s.Args...), " ")
}

// Result is the outcome of running a Step.
type Result struct {
	Step Step

	// ExitCode is the program's exit status, or -1 when it never started
	// or was killed by a signal.
	ExitCode int

	// Err is set whenever ExitCode is not zero.
	Err error

	Stdout, Stderr string
	Duration       time.Duration
}

// OK reports whether the step exited with status zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Runner executes steps one at a time. Run blocks until the step has
// finished.
type Runner interface {
	Run(step Step) Result
}

// ExecRunner runs steps as subprocesses.
type ExecRunner struct {
	// Dir is the working directory of each subprocess. Empty means the
	// current directory.
	Dir string

	// Stdout and Stderr receive the subprocess output as it is produced,
	// in addition to the copy kept in the Result. Nil discards.
	Stdout, Stderr io.Writer

	// When Verbose is true, each command line is printed to Stderr
	// before it runs.
	Verbose bool
}

// NewExecRunner returns a runner that streams tool output to the current
// process's stdout and stderr.
func NewExecRunner(dir string, verbose bool) *ExecRunner {
	return &ExecRunner{
		Dir:     dir,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Verbose: verbose,
	}
}

// Run executes step and waits for it to exit.
func (r *ExecRunner) Run(step Step) Result {
	var stdout, stderr bytes.Buffer

	c := cmd.New(step.Exec, step.Args...)
	c.Cmd.Dir = r.Dir
	c.Cmd.Stdout = tee(&stdout, r.Stdout)
	c.Cmd.Stderr = tee(&stderr, r.Stderr)
	if r.Verbose && r.Stderr != nil {
		fmt.Fprintf(r.Stderr, "\n%s\n", step)
	}

	start := time.Now()
	err := c.Run()
	res := Result{
		Step:     step,
		Err:      err,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case c.Cmd.ProcessState != nil:
		res.ExitCode = c.Cmd.ProcessState.ExitCode()
	case err != nil:
		res.ExitCode = -1
	}
	if res.Err == nil && res.ExitCode != 0 {
		res.Err = fmt.Errorf("%s exited with status %d", step.Exec, res.ExitCode)
	}
	return res
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
