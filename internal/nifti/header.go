// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and .nii.gz).
//
// Voxel data is always held little-endian in memory regardless of the byte
// order found on disk. Files are always written little-endian with no header
// extensions.
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is sizeof_hdr for NIfTI-1.
	HeaderSize = 348
	// nifti2HeaderSize is sizeof_hdr for NIfTI-2, which is not supported.
	nifti2HeaderSize = 540
	// dataOffset is where voxel data starts in files we write: header plus
	// the 4-byte extension flag.
	dataOffset = 352
)

var (
	ErrBadMagic            = errors.New("nifti: bad magic")
	ErrBadHeader           = errors.New("nifti: not a NIfTI-1 header")
	ErrNIfTI2              = errors.New("nifti: NIfTI-2 files are not supported")
	ErrPairFile            = errors.New("nifti: .hdr/.img pairs are not supported")
	ErrUnsupportedDatatype = errors.New("nifti: unsupported datatype")
	ErrTruncated           = errors.New("nifti: truncated voxel data")
	ErrShape               = errors.New("nifti: invalid shape")
)

var (
	magicSingle = [4]byte{'n', '+', '1', 0}
	magicPair   = [4]byte{'n', 'i', '1', 0}
)

// Header mirrors the on-disk NIfTI-1 header field for field. The struct is
// packed by encoding/binary, so field order and sizes must not change.
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      Datatype
	Bitpix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QFormCode     int16
	SFormCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QOffsetX      float32
	QOffsetY      float32
	QOffsetZ      float32
	SRowX         [4]float32
	SRowY         [4]float32
	SRowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// NewHeader returns a header for a volume of the given shape and datatype
// with unit spacing and no qform/sform.
func NewHeader(shape []int, dt Datatype) (Header, error) {
	var h Header
	h.SizeofHdr = HeaderSize
	h.Regular = 'r'
	h.Magic = magicSingle
	h.PixDim = [8]float32{1, 1, 1, 1, 1, 1, 1, 1}
	h.VoxOffset = dataOffset
	h.XYZTUnits = 2 // millimetres
	if err := h.SetShape(shape); err != nil {
		return Header{}, err
	}
	if err := h.SetDatatype(dt); err != nil {
		return Header{}, err
	}
	return h, nil
}

// decodeHeader parses the first HeaderSize bytes and reports the byte order
// the file was written with.
func decodeHeader(buf []byte) (Header, binary.ByteOrder, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: short header (%d bytes)", ErrBadHeader, len(buf))
	}

	var order binary.ByteOrder
	le := int32(binary.LittleEndian.Uint32(buf[:4]))
	be := int32(binary.BigEndian.Uint32(buf[:4]))
	switch {
	case le == HeaderSize:
		order = binary.LittleEndian
	case be == HeaderSize:
		order = binary.BigEndian
	case le == nifti2HeaderSize || be == nifti2HeaderSize:
		return Header{}, nil, ErrNIfTI2
	default:
		return Header{}, nil, fmt.Errorf("%w: sizeof_hdr=%d", ErrBadHeader, le)
	}

	var h Header
	if err := binary.Read(bytes.NewReader(buf[:HeaderSize]), order, &h); err != nil {
		return Header{}, nil, fmt.Errorf("decode header: %w", err)
	}

	switch h.Magic {
	case magicSingle:
	case magicPair:
		return Header{}, nil, ErrPairFile
	default:
		return Header{}, nil, fmt.Errorf("%w: %q", ErrBadMagic, h.Magic[:])
	}

	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return Header{}, nil, fmt.Errorf("%w: dim[0]=%d", ErrShape, h.Dim[0])
	}
	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return Header{}, nil, fmt.Errorf("%w: dim[%d]=%d", ErrShape, i, h.Dim[i])
		}
	}
	return h, order, nil
}

// encode writes the header in little-endian order.
func (h *Header) encode(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// Shape returns the array dimensions dim[1..dim[0]].
func (h *Header) Shape() []int {
	n := int(h.Dim[0])
	if n < 1 || n > 7 {
		return nil
	}
	shape := make([]int, n)
	for i := range shape {
		shape[i] = int(h.Dim[i+1])
	}
	return shape
}

// SetShape stores the array dimensions. Unused trailing dims are set to 1.
func (h *Header) SetShape(shape []int) error {
	if len(shape) < 1 || len(shape) > 7 {
		return fmt.Errorf("%w: %d dimensions", ErrShape, len(shape))
	}
	for _, s := range shape {
		if s < 1 || s > 32767 {
			return fmt.Errorf("%w: %v", ErrShape, shape)
		}
	}
	h.Dim[0] = int16(len(shape))
	for i := 1; i < 8; i++ {
		if i <= len(shape) {
			h.Dim[i] = int16(shape[i-1])
		} else {
			h.Dim[i] = 1
		}
	}
	return nil
}

// NumVoxels returns the product of the dimensions.
func (h *Header) NumVoxels() int {
	n := 1
	for _, s := range h.Shape() {
		n *= s
	}
	return n
}

// SetDatatype stores the datatype code and the matching bitpix.
func (h *Header) SetDatatype(dt Datatype) error {
	if !dt.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedDatatype, dt)
	}
	h.Datatype = dt
	h.Bitpix = dt.Bitpix()
	return nil
}

// Zooms returns the voxel spacing for the spatial axes.
func (h *Header) Zooms() [3]float64 {
	var z [3]float64
	for i := range z {
		z[i] = float64(h.PixDim[i+1])
	}
	return z
}

// Scaled reports whether scl_slope/scl_inter change voxel values on read.
func (h *Header) Scaled() bool {
	s := h.SclSlope
	if s == 0 || s != s {
		return false
	}
	return s != 1 || h.SclInter != 0
}

// Description returns descrip as a Go string.
func (h *Header) Description() string {
	return cString(h.Descrip[:])
}

// SetDescription stores s in descrip, truncated to fit.
func (h *Header) SetDescription(s string) {
	h.Descrip = [80]byte{}
	copy(h.Descrip[:len(h.Descrip)-1], s)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
