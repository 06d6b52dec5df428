package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"pdbtomrc/internal/models"
)

// Viewer renders planes of a density map as greyscale images so the
// centring of a converted map can be checked by eye.
type Viewer struct {
	// volume holds the density map
	volume *models.Volume

	// lo and hi are the density range mapped onto black and white
	lo, hi float64
}

// NewViewer creates a viewer over vol, scaling densities by the volume's
// own minimum and maximum
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{volume: vol}
	if len(vol.Data) > 0 {
		v.lo, v.hi = floats.Min(vol.Data), floats.Max(vol.Data)
	}
	return v
}

// normalize maps a density onto a 16-bit grey level
func (v *Viewer) normalize(d float64) uint16 {
	if v.hi <= v.lo {
		return 0
	}
	n := (d - v.lo) / (v.hi - v.lo)
	return uint16(math.Max(0, math.Min(65535, n*65535)))
}

// ExtractSlice extracts a 2D plane from the map along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	vol := v.volume
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}

		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, color.Gray16{Y: v.normalize(vol.Data[vol.Index(position, y, z)])})
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}

		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, color.Gray16{Y: v.normalize(vol.Data[vol.Index(x, position, z)])})
			}
		}

	case "z", "Z":
		// XY plane
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}

		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: v.normalize(vol.Data[vol.Index(x, y, position)])})
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveCentralSlices writes the central plane along each axis to
// central_x.jpg, central_y.jpg and central_z.jpg in outputDir. A centred
// map shows its density in the middle of all three images.
func (v *Viewer) SaveCentralSlices(outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	vol := v.volume
	centres := map[string]int{"x": vol.Width / 2, "y": vol.Height / 2, "z": vol.Depth / 2}

	var written []string
	for _, axis := range []string{"x", "y", "z"} {
		img, err := v.ExtractSlice(axis, centres[axis])
		if err != nil {
			return written, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("central_%s.jpg", axis))
		if err := v.SaveSlice(img, filename); err != nil {
			return written, err
		}
		written = append(written, filename)
	}

	return written, nil
}
