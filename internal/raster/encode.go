package raster

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxHeight is the largest encodable elevation in metres.
const MaxHeight = math.MaxUint16 / 100.0

// Quantize converts metres to centimetres, saturating at 0 and 655.35 m.
func Quantize(v float64) uint16 {
	cm := math.Round(v * 100)
	switch {
	case !(cm > 0): // also catches NaN
		return 0
	case cm >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(cm)
}

// Dequantize converts a stored sample back to metres.
func Dequantize(v uint16) float64 {
	return float64(v) / 100
}

// Encode serializes the grid as little-endian uint16 centimetres, row-major.
func Encode(g *HeightGrid) []byte {
	buf := make([]byte, 2*len(g.Cells))
	for i, v := range g.Cells {
		binary.LittleEndian.PutUint16(buf[2*i:], Quantize(v))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("odd grid length %d", len(data))
	}
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return out, nil
}
