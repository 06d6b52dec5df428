// Package pipeline turns an atomic model into a centred, correctly boxed
// density map by running an external model-to-map converter followed by
// two passes of an external image handler:
//
//  1. convert the model into a map of twice the target box
//  2. shift the map by minus half the target box on every axis
//  3. re-box the shifted map to the target box
//
// and finally removing the two intermediate maps.
//
// The intermediate file names are fixed per configuration, so two runs
// sharing a working directory overwrite each other's intermediates. Run
// one conversion per directory at a time.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"pdbtomrc/pkg/config"
)

// StepError reports a failed step in strict mode.
type StepError struct {
	Step     string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed with exit code %d: %v", e.Step, e.ExitCode, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Report describes what a call to Process did.
type Report struct {
	// Results holds one entry per step that was started, in order.
	Results []Result

	// Removed lists the intermediate files deleted during cleanup.
	Removed []string

	// CleanupErrors holds removal failures other than a missing file.
	CleanupErrors []error

	// Output is the path of the final map and OutputExists whether it was
	// found after the last step.
	Output       string
	OutputExists bool

	// OutputUpdated is false when the final map found after the run is one
	// left over from an earlier run that this run did not rewrite.
	OutputUpdated bool

	// Aborted is set when strict mode stopped the sequence early.
	Aborted bool
}

// Failed returns the results of steps that did not exit cleanly.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Pipeline runs the conversion for one set of parameters.
type Pipeline struct {
	params Params
	cfg    *config.Config
	runner Runner
	out    io.Writer
}

// New creates a pipeline. A nil cfg means config.DefaultConfig.
func New(params Params, cfg *config.Config, runner Runner) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Pipeline{
		params: params,
		cfg:    cfg,
		runner: runner,
		out:    os.Stdout,
	}
}

// SetOutput sets where progress messages are written. Nil discards them.
func (p *Pipeline) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	p.out = w
}

// Params returns the parameters the pipeline was built with.
func (p *Pipeline) Params() Params {
	return p.params
}

// Steps returns the three invocations in the order they run. Each step
// reads the file written by the one before it.
func (p *Pipeline) Steps() []Step {
	prm := p.params
	tools := p.cfg.Tools
	proc := p.cfg.Processing
	shift := strconv.Itoa(prm.ShiftPixels)

	return []Step{
		{
			Name: "convert model to map",
			Exec: tools.ModelToMap,
			Args: []string{
				"--apix=" + prm.PixelSize,
				"--res=" + strconv.FormatFloat(proc.Resolution, 'g', -1, 64),
				"--box=" + strconv.Itoa(prm.InitialBox),
				prm.InputModel,
				proc.IntermediateMap,
			},
			Output: proc.IntermediateMap,
		},
		{
			Name: "shift map to box centre",
			Exec: tools.ImageHandler,
			Args: []string{
				"--i", proc.IntermediateMap,
				"--o", proc.ShiftedMap,
				"--shift_x", shift,
				"--shift_y", shift,
				"--shift_z", shift,
			},
			Output: proc.ShiftedMap,
		},
		{
			Name: "re-box map",
			Exec: tools.ImageHandler,
			Args: []string{
				"--i", proc.ShiftedMap,
				"--o", prm.OutputFile(),
				"--new_box", strconv.Itoa(prm.BoxSize),
			},
			Output: prm.OutputFile(),
		},
	}
}

// Intermediates returns the files removed by Cleanup.
func (p *Pipeline) Intermediates() []string {
	return []string{p.cfg.Processing.IntermediateMap, p.cfg.Processing.ShiftedMap}
}

// Process runs every step in sequence and then removes the intermediates.
//
// By default a failed step is reported and the sequence carries on, and
// cleanup always runs. In strict mode the first failed step stops the
// sequence, cleanup is skipped so the intermediates can be inspected, and
// a *StepError is returned.
func (p *Pipeline) Process() (*Report, error) {
	report := &Report{Output: p.params.OutputFile()}
	steps := p.Steps()
	before, existed := p.modTime(report.Output)

	for i, step := range steps {
		fmt.Fprintf(p.out, "Step %d/%d: %s...\n", i+1, len(steps), step.Name)
		res := p.runner.Run(step)
		report.Results = append(report.Results, res)

		if res.OK() {
			continue
		}
		if p.cfg.Output.Strict {
			report.Aborted = true
			p.checkOutput(report, before, existed)
			return report, &StepError{Step: step.Name, ExitCode: res.ExitCode, Err: res.Err}
		}
		log.Printf("Warning: step %q failed (exit code %d): %v", step.Name, res.ExitCode, res.Err)
	}

	p.checkOutput(report, before, existed)

	fmt.Fprintln(p.out, "Removing intermediate files...")
	report.Removed, report.CleanupErrors = p.Cleanup()
	for _, err := range report.CleanupErrors {
		log.Printf("Warning: %v", err)
	}

	return report, nil
}

// Cleanup deletes the intermediate files. A file that does not exist is
// skipped silently; other failures are returned.
func (p *Pipeline) Cleanup() (removed []string, errs []error) {
	for _, name := range p.Intermediates() {
		path := p.params.resolve(name)
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = append(removed, path)
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", path, err))
		}
	}
	return removed, errs
}

// OutputPath returns the filesystem path of the final map.
func (p *Pipeline) OutputPath() string {
	return p.params.resolve(p.params.OutputFile())
}

func (p *Pipeline) modTime(name string) (time.Time, bool) {
	info, err := os.Stat(p.params.resolve(name))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// checkOutput records whether the final map exists and whether this run
// wrote it, given its modification time before the first step.
func (p *Pipeline) checkOutput(report *Report, before time.Time, existed bool) {
	after, exists := p.modTime(report.Output)
	report.OutputExists = exists
	report.OutputUpdated = exists && (!existed || !after.Equal(before))
}
