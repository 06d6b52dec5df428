// Package cli parses the pdbtomrc command line.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pdbtomrc/pkg/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Options holds everything given on the command line.
type Options struct {
	// InputModel is the -i value.
	InputModel string

	// PixelSize is the -a value, kept as typed.
	PixelSize string

	// BoxSize is the -b value.
	BoxSize int

	ConfigPath  string
	Strict      bool
	PreviewDir  string
	WriteConfig string
}

const usage = `
pdbtomrc - convert an atomic model into a centred, boxed density map.

Usage:
  pdbtomrc -i model.pdb -a 0.65 -b 512

Writes <model>.mrc to the current directory. intermediate.mrc and
intermediate2.mrc are created and removed in the same directory, so run
one conversion per directory at a time.

Options:
`

// Parse processes command-line arguments. It returns the options, a
// boolean indicating if the program should exit cleanly, or an ExitError.
//
// Values of -i and -a are not validated here; they go to the external
// tools as given. -b must be an integer since the shift and initial box
// are derived from it.
func Parse(args []string, output io.Writer) (*Options, bool, error) {
	flagSet := flag.NewFlagSet("pdbtomrc", flag.ContinueOnError)
	// Parse errors are reported through ExitError rather than printed.
	flagSet.SetOutput(io.Discard)
	flagSet.Usage = func() {}

	opts := &Options{}
	var box string
	flagSet.StringVar(&opts.InputModel, "i", "", "Input atomic model file (PDB).")
	flagSet.StringVar(&opts.PixelSize, "a", "", "Pixel size in Å/pixel.")
	flagSet.StringVar(&box, "b", "", "Output box size in pixels.")
	flagSet.StringVar(&opts.ConfigPath, "config", config.DefaultPath, "YAML configuration file. Defaults are used if it does not exist.")
	flagSet.BoolVar(&opts.Strict, "strict", false, "Stop at the first failed step and keep intermediate files.")
	flagSet.StringVar(&opts.PreviewDir, "preview", "", "Write JPEG previews of the central planes of the final map to this directory.")
	flagSet.StringVar(&opts.WriteConfig, "write-config", "", "Write the default configuration to this path and exit.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(output, usage)
			flagSet.SetOutput(output)
			flagSet.PrintDefaults()
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: describe(err)}
	}

	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: "Unexpected option " + flagSet.Arg(0)}
	}

	if opts.WriteConfig != "" {
		return opts, false, nil
	}

	if box != "" {
		n, err := strconv.Atoi(box)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid box size %q: must be an integer", box)}
		}
		opts.BoxSize = n
	}

	return opts, false, nil
}

// describe turns flag package errors into the messages pdbtomrc prints.
func describe(err error) string {
	const undefined = "flag provided but not defined: "
	msg := err.Error()
	if strings.HasPrefix(msg, undefined) {
		return "Unexpected option " + strings.TrimPrefix(msg, undefined)
	}
	return msg
}

// Validate performs the checks strict mode adds before anything runs.
func (o *Options) Validate() error {
	if o.InputModel == "" {
		return &ExitError{Code: 2, Message: "missing input model (-i)"}
	}
	if a, err := strconv.ParseFloat(o.PixelSize, 64); err != nil || a <= 0 {
		return &ExitError{Code: 2, Message: fmt.Sprintf("invalid pixel size %q: must be a positive number", o.PixelSize)}
	}
	if o.BoxSize <= 0 {
		return &ExitError{Code: 2, Message: fmt.Sprintf("invalid box size %d: must be positive", o.BoxSize)}
	}
	return nil
}
