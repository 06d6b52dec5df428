package mrc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"pdbtomrc/internal/models"
)

// createTestVolume creates a volume filled with a gradient along each axis
func createTestVolume(width, height, depth int, apix float64) *models.Volume {
	vol := models.NewVolume(width, height, depth, apix)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Data[vol.Index(x, y, z)] = float64(x) + 10*float64(y) + 100*float64(z)
			}
		}
	}
	return vol
}

// TestWriteRead verifies that a written map reads back with the same
// dimensions, voxel size and densities
func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.mrc")
	vol := createTestVolume(4, 3, 2, 0.65)

	if err := Write(path, vol); err != nil {
		t.Fatalf("Failed to write map: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat map: %v", err)
	}
	if want := int64(HeaderSize + 4*len(vol.Data)); info.Size() != want {
		t.Errorf("Expected file size %d, got %d", want, info.Size())
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Failed to read map: %v", err)
	}

	if got.Width != 4 || got.Height != 3 || got.Depth != 2 {
		t.Errorf("Expected dimensions 4x3x2, got %dx%dx%d", got.Width, got.Height, got.Depth)
	}
	if math.Abs(got.VoxelSize.X-0.65) > 1e-5 || math.Abs(got.VoxelSize.Z-0.65) > 1e-5 {
		t.Errorf("Expected voxel size 0.65, got %f,%f,%f", got.VoxelSize.X, got.VoxelSize.Y, got.VoxelSize.Z)
	}
	for i := range vol.Data {
		if got.Data[i] != vol.Data[i] {
			t.Fatalf("Voxel %d mismatch: expected %f, got %f", i, vol.Data[i], got.Data[i])
		}
	}
}

// TestReadHeaderBigEndian verifies that the machine stamp selects the byte order
func TestReadHeaderBigEndian(t *testing.T) {
	raw := rawHeader{NX: 8, NY: 8, NZ: 8, Mode: ModeInt16, MX: 8, MY: 8, MZ: 8, MapC: 1, MapR: 2, MapS: 3}
	raw.CellA = [3]float32{8, 8, 8}
	raw.MachSt = [4]byte{0x11, 0x11, 0, 0}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &raw); err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}

	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("Failed to read header: %v", err)
	}
	if h.NX != 8 || h.Mode != ModeInt16 {
		t.Errorf("Expected 8 voxels in mode 1, got %d in mode %d", h.NX, h.Mode)
	}
	if h.ByteOrder != binary.BigEndian {
		t.Errorf("Expected big endian byte order, got %v", h.ByteOrder)
	}
	if x, _, _ := h.PixelSize(); x != 1 {
		t.Errorf("Expected pixel size 1, got %f", x)
	}
}

// TestReadModes verifies integer modes and the extended header skip
func TestReadModes(t *testing.T) {
	raw := rawHeader{NX: 2, NY: 1, NZ: 1, Mode: ModeInt16, NSymBT: 8, MapC: 1, MapR: 2, MapS: 3}
	raw.CellA = [3]float32{2, 1, 1}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &raw)
	buf.Write(make([]byte, 8))
	binary.Write(&buf, binary.LittleEndian, []int16{-3, 7})

	path := filepath.Join(t.TempDir(), "int16.mrc")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write map: %v", err)
	}

	vol, err := Read(path)
	if err != nil {
		t.Fatalf("Failed to read map: %v", err)
	}
	if vol.Data[0] != -3 || vol.Data[1] != 7 {
		t.Errorf("Expected densities [-3 7], got %v", vol.Data)
	}
}

// TestReadErrors verifies that truncated and unsupported maps are rejected
func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.mrc")
	os.WriteFile(short, make([]byte, 100), 0644)
	if _, err := Read(short); err == nil {
		t.Error("Expected error for truncated header, got nil")
	}

	raw := rawHeader{NX: 1, NY: 1, NZ: 1, Mode: 4}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &raw)
	complexMap := filepath.Join(dir, "complex.mrc")
	os.WriteFile(complexMap, buf.Bytes(), 0644)
	if _, err := Read(complexMap); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("Expected ErrUnsupportedMode, got %v", err)
	}

	raw.Mode = ModeFloat32
	buf.Reset()
	binary.Write(&buf, binary.LittleEndian, &raw)
	noData := filepath.Join(dir, "nodata.mrc")
	os.WriteFile(noData, buf.Bytes(), 0644)
	if _, err := Read(noData); err == nil {
		t.Error("Expected error for missing voxel data, got nil")
	}

	if _, err := Read(filepath.Join(dir, "missing.mrc")); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

// TestSummarize verifies statistics against hand-computed values
func TestSummarize(t *testing.T) {
	vol := models.NewVolume(2, 2, 1, 1.5)
	copy(vol.Data, []float64{1, 2, 3, 6})

	s := Summarize(vol)
	if s.Min != 1 || s.Max != 6 {
		t.Errorf("Expected min 1 max 6, got %f %f", s.Min, s.Max)
	}
	if s.Mean != 3 {
		t.Errorf("Expected mean 3, got %f", s.Mean)
	}
	// population variance: (4+1+0+9)/4 = 3.5
	if math.Abs(s.StdDev-math.Sqrt(3.5)) > 1e-12 {
		t.Errorf("Expected std dev %f, got %f", math.Sqrt(3.5), s.StdDev)
	}
	if s.PixelSize != 1.5 {
		t.Errorf("Expected pixel size 1.5, got %f", s.PixelSize)
	}

	empty := Summarize(models.NewVolume(0, 0, 0, 1))
	if empty.Mean != 0 || empty.Max != 0 {
		t.Errorf("Expected zero summary for empty volume, got %+v", empty)
	}
}

// writeHeaderOnly writes a map file holding raw followed by extra bytes of data
func writeHeaderOnly(t *testing.T, raw rawHeader, extra int) string {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &raw); err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}
	buf.Write(make([]byte, extra))

	path := filepath.Join(t.TempDir(), "map.mrc")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write map: %v", err)
	}
	return path
}

// TestReadTruncated verifies that a map shorter than its header claims is
// rejected before any voxel storage is allocated
func TestReadTruncated(t *testing.T) {
	path := writeHeaderOnly(t, rawHeader{NX: 4, NY: 4, NZ: 4, Mode: ModeFloat32}, 10*4)

	if _, err := Read(path); err == nil {
		t.Error("Expected error for truncated map, got nil")
	}
	if _, err := SummarizeFile(path); err == nil {
		t.Error("Expected summary error for truncated map, got nil")
	}
}

// TestReadOversizedHeader verifies that huge dimensions in a small file
// produce an error instead of a failed allocation
func TestReadOversizedHeader(t *testing.T) {
	cases := map[string]rawHeader{
		"2^63 bytes":  {NX: 1 << 21, NY: 1 << 21, NZ: 1 << 21, Mode: ModeFloat32},
		"overflowing": {NX: math.MaxInt32, NY: math.MaxInt32, NZ: math.MaxInt32, Mode: ModeFloat32},
		"extended":    {NX: 1, NY: 1, NZ: 1, Mode: ModeInt8, NSymBT: math.MaxInt32},
	}

	for name, raw := range cases {
		path := writeHeaderOnly(t, raw, 0)

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("%s: Read panicked: %v", name, r)
				}
			}()
			if _, err := Read(path); err == nil {
				t.Errorf("%s: expected error, got nil", name)
			}
			if _, err := SummarizeFile(path); err == nil {
				t.Errorf("%s: expected summary error, got nil", name)
			}
		}()
	}
}

// TestSummarizeFile verifies that streaming statistics over several chunks
// match the in-memory summary
func TestSummarizeFile(t *testing.T) {
	vol := models.NewVolume(70, 40, 30, 1.2)
	for i := range vol.Data {
		vol.Data[i] = math.Sin(float64(i)/97) * float64(i%13)
	}
	if len(vol.Data) <= chunkVoxels {
		t.Fatalf("Test volume must span several chunks, has %d voxels", len(vol.Data))
	}

	path := filepath.Join(t.TempDir(), "map.mrc")
	if err := Write(path, vol); err != nil {
		t.Fatalf("Failed to write map: %v", err)
	}

	// Densities are stored as float32; compare against what was written.
	stored, err := Read(path)
	if err != nil {
		t.Fatalf("Failed to read map: %v", err)
	}
	want := Summarize(stored)

	got, err := SummarizeFile(path)
	if err != nil {
		t.Fatalf("Failed to summarize map: %v", err)
	}

	if got.Width != 70 || got.Height != 40 || got.Depth != 30 {
		t.Errorf("Expected dimensions 70x40x30, got %dx%dx%d", got.Width, got.Height, got.Depth)
	}
	if math.Abs(got.PixelSize-1.2) > 1e-5 {
		t.Errorf("Expected pixel size 1.2, got %f", got.PixelSize)
	}
	if got.Min != want.Min || got.Max != want.Max {
		t.Errorf("Expected min/max %f/%f, got %f/%f", want.Min, want.Max, got.Min, got.Max)
	}
	if math.Abs(got.Mean-want.Mean) > 1e-9 {
		t.Errorf("Expected mean %f, got %f", want.Mean, got.Mean)
	}
	if math.Abs(got.StdDev-want.StdDev) > 1e-9 {
		t.Errorf("Expected std dev %f, got %f", want.StdDev, got.StdDev)
	}
}
