// Package mrc reads and writes density maps in the MRC2014 format written
// by the external converter and image handler, so the final map of a run
// can be checked and summarised.
package mrc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"pdbtomrc/internal/models"
)

// HeaderSize is the size of the fixed MRC header in bytes.
const HeaderSize = 1024

// Data modes understood by Read.
const (
	ModeInt8    int32 = 0
	ModeInt16   int32 = 1
	ModeFloat32 int32 = 2
	ModeUint16  int32 = 6
)

// ErrUnsupportedMode is returned for data modes other than 0, 1, 2 and 6.
var ErrUnsupportedMode = errors.New("mrc: unsupported data mode")

// rawHeader mirrors the on-disk layout of the 1024 byte header.
type rawHeader struct {
	NX, NY, NZ                int32
	Mode                      int32
	NXStart, NYStart, NZStart int32
	MX, MY, MZ                int32
	CellA                     [3]float32
	CellB                     [3]float32
	MapC, MapR, MapS          int32
	DMin, DMax, DMean         float32
	ISPG                      int32
	NSymBT                    int32
	Extra                     [100]byte
	Origin                    [3]float32
	Map                       [4]byte
	MachSt                    [4]byte
	RMS                       float32
	NLabl                     int32
	Labels                    [10][80]byte
}

// Header holds the parts of an MRC header that pdbtomrc cares about.
type Header struct {
	NX, NY, NZ int
	Mode       int32

	// Sampling along each axis; equals NX, NY, NZ for single maps.
	MX, MY, MZ int

	// Cell dimensions in Ångström.
	CellA [3]float64

	// Extended header size in bytes, skipped before the voxel data.
	NSymBT int

	ByteOrder binary.ByteOrder
}

// PixelSize returns the voxel edge length along x, y and z. A zero
// sampling falls back to the grid dimension.
func (h *Header) PixelSize() (x, y, z float64) {
	size := func(cell float64, m, n int) float64 {
		if m == 0 {
			m = n
		}
		if m == 0 {
			return 0
		}
		return cell / float64(m)
	}
	return size(h.CellA[0], h.MX, h.NX), size(h.CellA[1], h.MY, h.NY), size(h.CellA[2], h.MZ, h.NZ)
}

func (h *Header) bytesPerVoxel() (int, error) {
	switch h.Mode {
	case ModeInt8:
		return 1, nil
	case ModeInt16, ModeUint16:
		return 2, nil
	case ModeFloat32:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedMode, h.Mode)
}

// ReadHeader decodes the fixed header from r. The byte order is taken from
// the machine stamp; maps without a stamp are read as little endian.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading mrc header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if buf[212] == 0x11 {
		order = binary.BigEndian
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(buf), order, &raw); err != nil {
		return nil, fmt.Errorf("decoding mrc header: %w", err)
	}

	if raw.NX < 0 || raw.NY < 0 || raw.NZ < 0 || raw.NSymBT < 0 {
		return nil, fmt.Errorf("corrupt mrc header: dimensions %dx%dx%d, extended header %d",
			raw.NX, raw.NY, raw.NZ, raw.NSymBT)
	}
	if raw.MapC != 0 && (raw.MapC != 1 || raw.MapR != 2 || raw.MapS != 3) {
		return nil, fmt.Errorf("unsupported axis order %d,%d,%d", raw.MapC, raw.MapR, raw.MapS)
	}

	return &Header{
		NX:        int(raw.NX),
		NY:        int(raw.NY),
		NZ:        int(raw.NZ),
		Mode:      raw.Mode,
		MX:        int(raw.MX),
		MY:        int(raw.MY),
		MZ:        int(raw.MZ),
		CellA:     [3]float64{float64(raw.CellA[0]), float64(raw.CellA[1]), float64(raw.CellA[2])},
		NSymBT:    int(raw.NSymBT),
		ByteOrder: order,
	}, nil
}

// chunkVoxels is the number of voxels decoded per read.
const chunkVoxels = 1 << 16

// dataSize returns the number of bytes of voxel data the header promises,
// or an error when the product does not fit in an int64.
func (h *Header) dataSize() (int64, error) {
	width, err := h.bytesPerVoxel()
	if err != nil {
		return 0, err
	}
	size := int64(width)
	for _, n := range []int{h.NX, h.NY, h.NZ} {
		if n != 0 && size > math.MaxInt64/int64(n) {
			return 0, fmt.Errorf("corrupt mrc header: %dx%dx%d voxels overflow", h.NX, h.NY, h.NZ)
		}
		size *= int64(n)
	}
	return size, nil
}

// open reads the header of the map at path and checks that the file is
// large enough to hold the voxel data it describes. The returned reader is
// positioned at the first voxel.
func open(path string) (*os.File, *bufio.Reader, *Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	fail := func(err error) (*os.File, *bufio.Reader, *Header, error) {
		f.Close()
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return fail(err)
	}

	r := bufio.NewReaderSize(f, 1<<20)
	h, err := ReadHeader(r)
	if err != nil {
		return fail(err)
	}
	size, err := h.dataSize()
	if err != nil {
		return fail(err)
	}
	if need := HeaderSize + int64(h.NSymBT) + size; need > info.Size() {
		return fail(fmt.Errorf("truncated map: header describes %d bytes, file has %d", need, info.Size()))
	}
	if _, err := r.Discard(h.NSymBT); err != nil {
		return fail(fmt.Errorf("skipping extended header: %w", err))
	}
	return f, r, h, nil
}

// Read loads the map at path into a volume.
func Read(path string) (*models.Volume, error) {
	f, r, h, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vol := models.NewVolume(h.NX, h.NY, h.NZ, 0)
	vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z = h.PixelSize()

	i := 0
	err = eachChunk(r, h, func(chunk []float64) {
		i += copy(vol.Data[i:], chunk)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

// eachChunk decodes the voxel data in chunks of up to chunkVoxels values
// and hands each chunk to fn. The slice is reused between calls.
func eachChunk(r io.Reader, h *Header, fn func(chunk []float64)) error {
	width, err := h.bytesPerVoxel()
	if err != nil {
		return err
	}

	total := h.NX * h.NY * h.NZ
	raw := make([]byte, chunkVoxels*width)
	values := make([]float64, chunkVoxels)

	for done := 0; done < total; {
		n := min(chunkVoxels, total-done)
		buf := raw[:n*width]
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("reading voxels %d-%d of %d: %w", done, done+n, total, err)
		}
		for i := 0; i < n; i++ {
			switch h.Mode {
			case ModeInt8:
				values[i] = float64(int8(buf[i]))
			case ModeInt16:
				values[i] = float64(int16(h.ByteOrder.Uint16(buf[2*i:])))
			case ModeUint16:
				values[i] = float64(h.ByteOrder.Uint16(buf[2*i:]))
			case ModeFloat32:
				values[i] = float64(math.Float32frombits(h.ByteOrder.Uint32(buf[4*i:])))
			}
		}
		fn(values[:n])
		done += n
	}
	return nil
}

// Write stores vol at path as a little endian mode 2 map.
func Write(path string, vol *models.Volume) error {
	if len(vol.Data) != vol.Width*vol.Height*vol.Depth {
		return fmt.Errorf("volume has %d voxels, want %dx%dx%d",
			len(vol.Data), vol.Width, vol.Height, vol.Depth)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	raw := rawHeader{
		NX:     int32(vol.Width),
		NY:     int32(vol.Height),
		NZ:     int32(vol.Depth),
		Mode:   ModeFloat32,
		MX:     int32(vol.Width),
		MY:     int32(vol.Height),
		MZ:     int32(vol.Depth),
		CellB:  [3]float32{90, 90, 90},
		MapC:   1,
		MapR:   2,
		MapS:   3,
		ISPG:   1,
		Map:    [4]byte{'M', 'A', 'P', ' '},
		MachSt: [4]byte{0x44, 0x44, 0, 0},
	}
	raw.CellA = [3]float32{
		float32(vol.VoxelSize.X * float64(vol.Width)),
		float32(vol.VoxelSize.Y * float64(vol.Height)),
		float32(vol.VoxelSize.Z * float64(vol.Depth)),
	}
	// NVERSION lives at byte 108, 12 bytes into the extra block.
	binary.LittleEndian.PutUint32(raw.Extra[12:16], 20140)
	if len(vol.Data) > 0 {
		s := Summarize(vol)
		raw.DMin, raw.DMax, raw.DMean, raw.RMS = float32(s.Min), float32(s.Max), float32(s.Mean), float32(s.StdDev)
	}

	if err := binary.Write(w, binary.LittleEndian, &raw); err != nil {
		f.Close()
		return fmt.Errorf("writing mrc header: %w", err)
	}
	buf := make([]byte, 4)
	for _, v := range vol.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := w.Write(buf); err != nil {
			f.Close()
			return fmt.Errorf("writing voxels: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
