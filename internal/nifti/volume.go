package nifti

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Volume is a header plus its voxel data, stored little-endian in the order
// given by the header's datatype.
type Volume struct {
	Header Header
	Data   []byte
}

// New creates a volume from raw little-endian voxel bytes.
func New(shape []int, dt Datatype, data []byte) (*Volume, error) {
	h, err := NewHeader(shape, dt)
	if err != nil {
		return nil, err
	}
	if want := h.NumVoxels() * dt.Size(); len(data) != want {
		return nil, fmt.Errorf("%w: %d bytes for shape %v %s, want %d", ErrShape, len(data), shape, dt, want)
	}
	return &Volume{Header: h, Data: data}, nil
}

// FromUint8 creates a uint8 volume. The slice is used as the backing store.
func FromUint8(shape []int, vals []uint8) (*Volume, error) {
	return New(shape, Uint8, vals)
}

// FromInt16 creates an int16 volume.
func FromInt16(shape []int, vals []int16) (*Volume, error) {
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return New(shape, Int16, buf)
}

// FromInt32 creates an int32 volume.
func FromInt32(shape []int, vals []int32) (*Volume, error) {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return New(shape, Int32, buf)
}

// FromFloat32 creates a float32 volume.
func FromFloat32(shape []int, vals []float32) (*Volume, error) {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return New(shape, Float32, buf)
}

// Shape returns the array dimensions.
func (v *Volume) Shape() []int {
	return v.Header.Shape()
}

// Affine returns the header's best affine.
func (v *Volume) Affine() *mat.Dense {
	return v.Header.Affine()
}

// raw decodes voxel i without scaling. Integer types are returned exactly in
// the int64/uint64 result; floats in f.
func (v *Volume) raw(i int) (s int64, u uint64, f float64, kind byte) {
	dt := v.Header.Datatype
	off := i * dt.Size()
	b := v.Data[off:]
	switch dt {
	case Uint8:
		return 0, uint64(b[0]), 0, 'u'
	case Int8:
		return int64(int8(b[0])), 0, 0, 'i'
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(b))), 0, 0, 'i'
	case Uint16:
		return 0, uint64(binary.LittleEndian.Uint16(b)), 0, 'u'
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(b))), 0, 0, 'i'
	case Uint32:
		return 0, uint64(binary.LittleEndian.Uint32(b)), 0, 'u'
	case Int64:
		return int64(binary.LittleEndian.Uint64(b)), 0, 0, 'i'
	case Uint64:
		return 0, binary.LittleEndian.Uint64(b), 0, 'u'
	case Float32:
		return 0, 0, float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'f'
	default:
		return 0, 0, math.Float64frombits(binary.LittleEndian.Uint64(b)), 'f'
	}
}

func (v *Volume) check() error {
	dt := v.Header.Datatype
	if !dt.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedDatatype, dt)
	}
	if want := v.Header.NumVoxels() * dt.Size(); len(v.Data) < want {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrTruncated, len(v.Data), want)
	}
	return nil
}

// Float64s returns the voxel values with scl_slope/scl_inter applied.
func (v *Volume) Float64s() ([]float64, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	n := v.Header.NumVoxels()
	out := make([]float64, n)
	for i := range out {
		s, u, f, kind := v.raw(i)
		switch kind {
		case 'i':
			out[i] = float64(s)
		case 'u':
			out[i] = float64(u)
		default:
			out[i] = f
		}
	}
	if v.Header.Scaled() {
		slope := float64(v.Header.SclSlope)
		inter := float64(v.Header.SclInter)
		for i := range out {
			out[i] = out[i]*slope + inter
		}
	}
	return out, nil
}

// CastUint8 returns the voxel values converted to uint8. Scaling is applied
// first when the header carries it. Integers wrap modulo 256; floats are
// truncated toward zero and then wrap; NaN and infinities become 0.
func (v *Volume) CastUint8() ([]uint8, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	n := v.Header.NumVoxels()
	out := make([]uint8, n)

	if v.Header.Scaled() {
		vals, err := v.Float64s()
		if err != nil {
			return nil, err
		}
		for i, f := range vals {
			out[i] = floatToUint8(f)
		}
		return out, nil
	}

	if v.Header.Datatype == Uint8 {
		copy(out, v.Data[:n])
		return out, nil
	}
	for i := range out {
		s, u, f, kind := v.raw(i)
		switch kind {
		case 'i':
			out[i] = uint8(s)
		case 'u':
			out[i] = uint8(u)
		default:
			out[i] = floatToUint8(f)
		}
	}
	return out, nil
}

// RoundInt32 returns the scaled voxel values rounded half to even and
// converted to int32.
func (v *Volume) RoundInt32() ([]int32, error) {
	vals, err := v.Float64s()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(vals))
	for i, f := range vals {
		r := math.RoundToEven(f)
		if math.IsNaN(r) || r > math.MaxInt32 || r < math.MinInt32 {
			return nil, fmt.Errorf("voxel %d: value %v does not fit int32", i, f)
		}
		out[i] = int32(r)
	}
	return out, nil
}

func floatToUint8(f float64) uint8 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	t := math.Trunc(f)
	if t >= math.MaxInt64 || t <= math.MinInt64 {
		return 0
	}
	return uint8(int64(t))
}
