package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"pdbtomrc/internal/cli"
	"pdbtomrc/internal/models"
	"pdbtomrc/pkg/config"
	"pdbtomrc/pkg/mrc"
	"pdbtomrc/pkg/pipeline"
	"pdbtomrc/pkg/visualization"
)

// newRunner builds the runner used for the external tools.
var newRunner = func(verbose bool) pipeline.Runner {
	return pipeline.NewExecRunner("", verbose)
}

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		var stepErr *pipeline.StepError
		switch {
		case errors.As(err, &exitErr):
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		case errors.As(err, &stepErr):
			fmt.Fprintln(os.Stderr, stepErr)
			fmt.Fprintln(os.Stderr, "Intermediate files were kept for inspection.")
			os.Exit(3)
		}
		log.Fatalf("%v", err)
	}
}

// run holds the program logic so it can be exercised from tests.
func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	if opts.WriteConfig != "" {
		if err := config.CreateDefaultConfigFile(opts.WriteConfig); err != nil {
			return err
		}
		fmt.Fprintf(outW, "Default configuration written to %s\n", opts.WriteConfig)
		return nil
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfg.Output.Strict = cfg.Output.Strict || opts.Strict
	if cfg.Output.Strict {
		if err := opts.Validate(); err != nil {
			return err
		}
	}

	params := pipeline.NewParams(opts.InputModel, opts.PixelSize, opts.BoxSize, "")

	fmt.Fprintln(outW, "================================")
	fmt.Fprintln(outW, "ATOMIC MODEL TO CENTRED DENSITY MAP")
	fmt.Fprintln(outW, "================================")
	fmt.Fprintf(outW, "Input model: %s\n", params.InputModel)
	fmt.Fprintf(outW, "Pixel size:  %s\n", params.PixelSize)
	fmt.Fprintf(outW, "Box size:    %d\n", params.BoxSize)
	fmt.Fprintf(outW, "Shift:       %d\n", params.ShiftPixels)
	fmt.Fprintf(outW, "Initial box: %d\n\n", params.InitialBox)

	p := pipeline.New(params, cfg, newRunner(cfg.Output.Verbose))
	p.SetOutput(outW)

	startTime := time.Now()
	report, err := p.Process()
	if err != nil {
		return err
	}
	if len(report.CleanupErrors) > 0 {
		return fmt.Errorf("cleanup failed: %w", errors.Join(report.CleanupErrors...))
	}

	if !report.OutputExists {
		log.Printf("Warning: final map %s was not produced", report.Output)
		return nil
	}
	if !report.OutputUpdated {
		log.Printf("Warning: final map %s was not rewritten by this run; it is left over from an earlier run", report.Output)
		return nil
	}

	fmt.Fprintf(outW, "\nFinished in %.2f seconds.\n", time.Since(startTime).Seconds())
	fmt.Fprintf(outW, "Output map saved to: %s\n", report.Output)

	if cfg.Output.Summarize || opts.PreviewDir != "" {
		inspect(outW, p, opts.PreviewDir, cfg.Output.Summarize)
	}
	return nil
}

// inspect prints the final map's statistics and writes previews. The
// summary is streamed from disk; the whole map is only loaded when
// previews are requested. Problems are reported as warnings only.
func inspect(outW io.Writer, p *pipeline.Pipeline, previewDir string, summarize bool) {
	var (
		s   mrc.Summary
		vol *models.Volume
		err error
	)
	if previewDir != "" {
		vol, err = mrc.Read(p.OutputPath())
		if err == nil {
			s = mrc.Summarize(vol)
		}
	} else {
		s, err = mrc.SummarizeFile(p.OutputPath())
	}
	if err != nil {
		log.Printf("Warning: could not read final map: %v", err)
		return
	}

	if summarize {
		fmt.Fprintf(outW, "\nFinal map:\n")
		fmt.Fprintf(outW, "- Dimensions: %dx%dx%d\n", s.Width, s.Height, s.Depth)
		fmt.Fprintf(outW, "- Pixel size: %.4f Å\n", s.PixelSize)
		fmt.Fprintf(outW, "- Density min/max: %.6g / %.6g\n", s.Min, s.Max)
		fmt.Fprintf(outW, "- Density mean/std: %.6g / %.6g\n", s.Mean, s.StdDev)
	}
	if box := p.Params().BoxSize; s.Width != box || s.Height != box || s.Depth != box {
		log.Printf("Warning: final map is %dx%dx%d, expected box %d",
			s.Width, s.Height, s.Depth, box)
	}

	if vol != nil {
		written, err := visualization.NewViewer(vol).SaveCentralSlices(previewDir)
		if err != nil {
			log.Printf("Warning: failed to save previews: %v", err)
			return
		}
		fmt.Fprintln(outW, "\nPreviews saved to:")
		for _, f := range written {
			fmt.Fprintf(outW, "%s\n", f)
		}
	}
}
