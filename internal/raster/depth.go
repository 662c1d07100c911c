package raster

import (
	"fmt"
	"math"
)

// Depth is the sample type of a plane.
type Depth int

const (
	Invalid Depth = iota
	U8
	U16
	U32
	U64
	F32
	F64
)

func (d Depth) String() string {
	switch d {
	case U8:
		return "uint8"
	case U16:
		return "uint16"
	case U32:
		return "uint32"
	case U64:
		return "uint64"
	case F32:
		return "float32"
	case F64:
		return "float64"
	}
	return fmt.Sprintf("Depth(%d)", int(d))
}

// Bits is the number of bits per sample.
func (d Depth) Bits() int {
	return d.Bytes() * 8
}

// Bytes is the number of bytes per sample.
func (d Depth) Bytes() int {
	switch d {
	case U8:
		return 1
	case U16:
		return 2
	case U32, F32:
		return 4
	case U64, F64:
		return 8
	}
	return 0
}

func (d Depth) IsFloat() bool {
	return d == F32 || d == F64
}

// Max is the largest value an unsigned depth can hold. Float depths report
// math.MaxUint64 so clamping never narrows them.
func (d Depth) Max() uint64 {
	switch d {
	case U8:
		return math.MaxUint8
	case U16:
		return math.MaxUint16
	case U32:
		return math.MaxUint32
	}
	return math.MaxUint64
}

// ChooseDepth returns the narrowest unsigned depth that can store max.
func ChooseDepth(max uint64) Depth {
	switch {
	case max <= math.MaxUint8:
		return U8
	case max <= math.MaxUint16:
		return U16
	case max <= math.MaxUint32:
		return U32
	default:
		return U64
	}
}

// Narrow converts a label grid to the narrowest depth holding its largest
// value.
func Narrow(g *Grid[uint64]) Plane {
	_, hi := g.Bounds()
	return ToDepth(g, ChooseDepth(hi))
}

// ToDepth converts p to a grid of the given depth.
func ToDepth(p Plane, d Depth) Plane {
	switch d {
	case U8:
		return Convert[uint8](p)
	case U16:
		return Convert[uint16](p)
	case U32:
		return Convert[uint32](p)
	case U64:
		return Convert[uint64](p)
	case F32:
		return Convert[float32](p)
	case F64:
		return Convert[float64](p)
	}
	panic(fmt.Sprintf("raster: no grid type for %v", d))
}
