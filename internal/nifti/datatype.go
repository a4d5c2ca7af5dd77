package nifti

import "fmt"

// Datatype is the NIfTI-1 datatype code stored in the header.
type Datatype int16

const (
	Uint8   Datatype = 2
	Int16   Datatype = 4
	Int32   Datatype = 8
	Float32 Datatype = 16
	Float64 Datatype = 64
	Int8    Datatype = 256
	Uint16  Datatype = 512
	Uint32  Datatype = 768
	Int64   Datatype = 1024
	Uint64  Datatype = 1280
)

// Bitpix returns the number of bits per voxel, or 0 for unsupported codes.
func (d Datatype) Bitpix() int16 {
	switch d {
	case Uint8, Int8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Int64, Uint64, Float64:
		return 64
	default:
		return 0
	}
}

// Size returns the number of bytes per voxel.
func (d Datatype) Size() int {
	return int(d.Bitpix()) / 8
}

// Valid reports whether the codec can decode voxels of this type.
func (d Datatype) Valid() bool {
	return d.Bitpix() != 0
}

// IsFloat reports whether voxels are IEEE floating point.
func (d Datatype) IsFloat() bool {
	return d == Float32 || d == Float64
}

// String returns the numpy-style name of the datatype
func (d Datatype) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	default:
		return fmt.Sprintf("datatype(%d)", int16(d))
	}
}

// ParseDatatype parses a numpy-style datatype name.
func ParseDatatype(s string) (Datatype, error) {
	for _, d := range []Datatype{Uint8, Int16, Int32, Float32, Float64, Int8, Uint16, Uint32, Int64, Uint64} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedDatatype, s)
}
