package pointcloud

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrCompressed marks LAZ point data. ReadLAS returns it as is; Reader
// wraps it only when no decompressor could handle the file.
var ErrCompressed = errors.New("LAZ-compressed point data")

var lasSignature = []byte("LASF")

const (
	lasHeaderSize12 = 227
	lasHeaderSize14 = 375

	// maxPreallocPoints caps the up-front allocation so a corrupt point
	// count fails on a short read instead of exhausting memory.
	maxPreallocPoints = 1 << 24
)

// LASHeader is the part of the LAS public header block needed to decode
// coordinates.
type LASHeader struct {
	VersionMajor uint8
	VersionMinor uint8
	HeaderSize   uint16
	PointOffset  uint32
	PointFormat  uint8
	RecordLength uint16
	PointCount   uint64
	Scale        [3]float64
	Offset       [3]float64
	Min          [3]float64
	Max          [3]float64
}

// Compressed reports whether the point records are LAZ encoded.
func (h LASHeader) Compressed() bool {
	return h.PointFormat&0x80 != 0
}

func readLASHeader(r io.Reader) (LASHeader, error) {
	var h LASHeader
	buf := make([]byte, lasHeaderSize12)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if string(buf[0:4]) != string(lasSignature) {
		return h, fmt.Errorf("not a LAS file (signature %q)", buf[0:4])
	}

	le := binary.LittleEndian
	f64 := func(off int) float64 { return math.Float64frombits(le.Uint64(buf[off:])) }

	h.VersionMajor = buf[24]
	h.VersionMinor = buf[25]
	h.HeaderSize = le.Uint16(buf[94:])
	h.PointOffset = le.Uint32(buf[96:])
	h.PointFormat = buf[104]
	h.RecordLength = le.Uint16(buf[105:])
	h.PointCount = uint64(le.Uint32(buf[107:]))
	for i := 0; i < 3; i++ {
		h.Scale[i] = f64(131 + 8*i)
		h.Offset[i] = f64(155 + 8*i)
		h.Max[i] = f64(179 + 16*i)
		h.Min[i] = f64(187 + 16*i)
	}

	if h.HeaderSize < lasHeaderSize12 {
		return h, fmt.Errorf("header size %d too small", h.HeaderSize)
	}
	if uint32(h.HeaderSize) > h.PointOffset {
		return h, fmt.Errorf("point data offset %d inside header", h.PointOffset)
	}

	// LAS 1.4 moved the point count to a 64-bit field; the legacy field
	// is zero for files with more than 2^32 points or newer point formats.
	if h.VersionMajor == 1 && h.VersionMinor >= 4 && h.HeaderSize >= lasHeaderSize14 {
		ext := make([]byte, lasHeaderSize14-lasHeaderSize12)
		if _, err := io.ReadFull(r, ext); err != nil {
			return h, fmt.Errorf("read 1.4 header: %w", err)
		}
		if n := le.Uint64(ext[247-lasHeaderSize12:]); n != 0 {
			h.PointCount = n
		}
	}
	if h.RecordLength < 12 {
		return h, fmt.Errorf("point record length %d too small", h.RecordLength)
	}
	return h, nil
}

// ReadLAS decodes every point record of a LAS stream. Coordinates are
// scaled and offset as the header prescribes; all other attributes are
// ignored.
func ReadLAS(r io.Reader) ([]Point, LASHeader, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	h, err := readLASHeader(br)
	if err != nil {
		return nil, h, err
	}
	if h.Compressed() {
		return nil, h, ErrCompressed
	}

	consumed := int64(lasHeaderSize12)
	if h.VersionMajor == 1 && h.VersionMinor >= 4 && h.HeaderSize >= lasHeaderSize14 {
		consumed = lasHeaderSize14
	}
	// Skip the rest of the header and the variable length records.
	if _, err := io.CopyN(io.Discard, br, int64(h.PointOffset)-consumed); err != nil {
		return nil, h, fmt.Errorf("skip to point data: %w", err)
	}

	le := binary.LittleEndian
	capacity := h.PointCount
	if capacity > maxPreallocPoints {
		capacity = maxPreallocPoints
	}
	points := make([]Point, 0, capacity)
	rec := make([]byte, h.RecordLength)
	for i := uint64(0); i < h.PointCount; i++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, h, fmt.Errorf("read point %d of %d: %w", i, h.PointCount, err)
		}
		points = append(points, Point{
			X: float64(int32(le.Uint32(rec[0:])))*h.Scale[0] + h.Offset[0],
			Y: float64(int32(le.Uint32(rec[4:])))*h.Scale[1] + h.Offset[1],
			Z: float64(int32(le.Uint32(rec[8:])))*h.Scale[2] + h.Offset[2],
		})
	}
	return points, h, nil
}
