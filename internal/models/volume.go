package models

// Volume represents a 3D density map held in memory
type Volume struct {
	// Data is the 3D density data as a 1D array, x fastest then y then z
	Data []float64

	// Width is the number of voxels along x (columns)
	Width int

	// Height is the number of voxels along y (rows)
	Height int

	// Depth is the number of voxels along z (sections)
	Depth int

	// VoxelSize is the physical edge length of each voxel in Ångström
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume with the given dimensions and
// an isotropic voxel size
func NewVolume(width, height, depth int, apix float64) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = apix, apix, apix
	return v
}

// Index returns the offset of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// IsCubic reports whether all three dimensions equal n
func (v *Volume) IsCubic(n int) bool {
	return v.Width == n && v.Height == n && v.Depth == n
}
