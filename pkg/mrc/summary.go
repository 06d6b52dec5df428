package mrc

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"pdbtomrc/internal/models"
)

// Summary holds density statistics of a map.
type Summary struct {
	Width, Height, Depth int
	PixelSize            float64
	Min, Max             float64
	Mean, StdDev         float64
}

// Summarize computes density statistics over every voxel of vol. An empty
// volume yields a zero summary apart from its dimensions.
func Summarize(vol *models.Volume) Summary {
	s := Summary{
		Width:     vol.Width,
		Height:    vol.Height,
		Depth:     vol.Depth,
		PixelSize: vol.VoxelSize.X,
	}
	if len(vol.Data) == 0 {
		return s
	}

	s.Min = floats.Min(vol.Data)
	s.Max = floats.Max(vol.Data)
	s.Mean, s.StdDev = stat.PopMeanStdDev(vol.Data, nil)
	return s
}

// SummarizeFile computes the same statistics as Summarize for the map at
// path without holding the voxel data in memory.
func SummarizeFile(path string) (Summary, error) {
	f, r, h, err := open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	s := Summary{Width: h.NX, Height: h.NY, Depth: h.NZ}
	s.PixelSize, _, _ = h.PixelSize()

	var acc moments
	err = eachChunk(r, h, acc.add)
	if err != nil {
		return Summary{}, err
	}
	if acc.n > 0 {
		s.Min, s.Max = acc.min, acc.max
		s.Mean, s.StdDev = acc.mean, math.Sqrt(acc.m2/acc.n)
	}
	return s, nil
}

// moments merges per-chunk population statistics (Chan et al.).
type moments struct {
	n, mean, m2 float64
	min, max    float64
}

func (m *moments) add(chunk []float64) {
	if len(chunk) == 0 {
		return
	}
	nb := float64(len(chunk))
	meanB, varB := stat.PopMeanVariance(chunk, nil)
	minB, maxB := floats.Min(chunk), floats.Max(chunk)

	if m.n == 0 {
		m.n, m.mean, m.m2 = nb, meanB, varB*nb
		m.min, m.max = minB, maxB
		return
	}

	n := m.n + nb
	delta := meanB - m.mean
	m.mean += delta * nb / n
	m.m2 += varB*nb + delta*delta*m.n*nb/n
	m.n = n
	m.min = math.Min(m.min, minB)
	m.max = math.Max(m.max, maxB)
}
