package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/mrsinham/spineprep/internal/util"
)

// gzipLevel is fixed so that re-saving a volume is byte-for-byte stable.
const gzipLevel = gzip.DefaultCompression

// IsNIfTIName reports whether name carries a NIfTI-1 single-file extension.
func IsNIfTIName(name string) bool {
	return strings.HasSuffix(name, ".nii") || strings.HasSuffix(name, ".nii.gz")
}

// TrimExt strips .nii.gz or .nii from name.
func TrimExt(name string) string {
	if s, ok := strings.CutSuffix(name, ".nii.gz"); ok {
		return s
	}
	return strings.TrimSuffix(name, ".nii")
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// open returns a reader over the decompressed file contents. Compression is
// detected from the gzip magic rather than the file name.
func open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrBadHeader)
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return &readCloser{Reader: br, closers: []io.Closer{f}}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: gzip: %w", path, err)
	}
	return &readCloser{Reader: zr, closers: []io.Closer{f, zr}}, nil
}

func readHeader(r io.Reader) (Header, binary.ByteOrder, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	return decodeHeader(buf)
}

// LoadHeader reads only the header of a volume.
func LoadHeader(path string) (*Header, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	h, _, err := readHeader(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &h, nil
}

// Load reads a volume's header and voxel data.
func Load(path string) (*Volume, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	v, err := decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func decode(r io.Reader) (*Volume, error) {
	h, order, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if !h.Datatype.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDatatype, h.Datatype)
	}

	skip := int64(h.VoxOffset) - HeaderSize
	if skip < 0 {
		skip = 0
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, fmt.Errorf("%w: extension block: %v", ErrTruncated, err)
	}

	size, err := dataSize(&h)
	if err != nil {
		return nil, err
	}
	// the buffer grows with what the stream delivers, never with what the
	// header claims
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(r, size)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if int64(buf.Len()) < size {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrTruncated, size, buf.Len())
	}
	data := buf.Bytes()
	if order == binary.BigEndian {
		swapBytes(data, h.Datatype.Size())
	}
	return &Volume{Header: h, Data: data}, nil
}

// dataSize is the voxel byte count declared by h.
func dataSize(h *Header) (int64, error) {
	size := int64(h.Datatype.Size())
	for _, d := range h.Shape() {
		if d < 1 {
			return 0, fmt.Errorf("%w: %v", ErrShape, h.Shape())
		}
		if size > math.MaxInt64/int64(d) {
			return 0, fmt.Errorf("%w: %v voxels of %d bytes overflow", ErrShape, h.Shape(), h.Datatype.Size())
		}
		size *= int64(d)
	}
	return size, nil
}

func swapBytes(data []byte, width int) {
	if width < 2 {
		return
	}
	for off := 0; off+width <= len(data); off += width {
		w := data[off : off+width]
		for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
			w[i], w[j] = w[j], w[i]
		}
	}
}

// Encode writes v as an uncompressed single-file NIfTI-1 stream.
func Encode(w io.Writer, v *Volume) error {
	if err := v.check(); err != nil {
		return err
	}
	h := v.Header
	h.SizeofHdr = HeaderSize
	h.Magic = magicSingle
	h.VoxOffset = dataOffset
	h.Bitpix = h.Datatype.Bitpix()

	if err := h.encode(w); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	// extension flag: none
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	size := h.NumVoxels() * h.Datatype.Size()
	_, err := w.Write(v.Data[:size])
	return err
}

// Save writes v to path, gzip-compressed when path ends in .gz. The file is
// written to a temporary name in the same directory and renamed into place.
func Save(path string, v *Volume) error {
	var buf bytes.Buffer
	if strings.HasSuffix(path, ".gz") {
		zw, err := gzip.NewWriterLevel(&buf, gzipLevel)
		if err != nil {
			return err
		}
		if err := Encode(zw, v); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
	} else if err := Encode(&buf, v); err != nil {
		return err
	}
	return util.WriteFileAtomic(path, buf.Bytes())
}
