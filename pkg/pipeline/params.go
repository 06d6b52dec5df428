package pipeline

import (
	"path/filepath"
)

// Params holds the run parameters. It is built once after argument
// parsing by NewParams and is not modified afterwards.
type Params struct {
	// InputModel is the atomic model file (PDB) handed to the converter.
	InputModel string

	// PixelSize is the pixel size in Å/pixel, forwarded to the converter
	// exactly as it was given on the command line.
	PixelSize string

	// BoxSize is the edge length in pixels of the final cubic map.
	BoxSize int

	// ShiftPixels is the shift applied on all three axes to move the
	// converter's corner-origin map to the box centre.
	ShiftPixels int

	// InitialBox is the box the converter generates, twice the final box
	// so the re-boxing step has margin to crop from.
	InitialBox int

	// WorkDir is where the tools run and where intermediate files live.
	// Empty means the current working directory.
	WorkDir string
}

// NewParams builds the parameter set and derives ShiftPixels and
// InitialBox from boxSize.
func NewParams(inputModel, pixelSize string, boxSize int, workDir string) Params {
	return Params{
		InputModel:  inputModel,
		PixelSize:   pixelSize,
		BoxSize:     boxSize,
		ShiftPixels: ShiftFor(boxSize),
		InitialBox:  InitialBoxFor(boxSize),
		WorkDir:     workDir,
	}
}

// ShiftFor returns -boxSize/2 using truncating integer division.
func ShiftFor(boxSize int) int {
	return -boxSize / 2
}

// InitialBoxFor returns the box size the converter is asked to produce.
func InitialBoxFor(boxSize int) int {
	return 2 * boxSize
}

// OutputFile is the name the final map is written to: the model path with
// ".mrc" appended.
func (p Params) OutputFile() string {
	return p.InputModel + ".mrc"
}

// resolve maps a file name handed to the tools onto the filesystem path
// seen from this process.
func (p Params) resolve(name string) string {
	if p.WorkDir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.WorkDir, name)
}
