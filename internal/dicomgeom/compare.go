package dicomgeom

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/spineprep/internal/nifti"
)

// Comparison is the agreement between a NIfTI header and a DICOM series.
type Comparison struct {
	Series      *Series
	SeriesShape []int
	Affine      *mat.Dense
	// MaxDiff is the largest absolute difference between the two affines.
	MaxDiff    float64
	ShapeMatch bool
	Axes       string
}

// Tolerance absorbs the float32 storage of NIfTI affines, in millimetres.
const Tolerance = 1e-4

// Consistent reports whether the volume matches the series geometry.
func (c Comparison) Consistent() bool {
	return c.ShapeMatch && c.MaxDiff <= Tolerance
}

// Compare reads the series in dir and measures hdr against it.
func Compare(hdr *nifti.Header, dir string) (Comparison, error) {
	s, err := ReadSeries(dir)
	if err != nil {
		return Comparison{}, err
	}
	aff := s.Affine()
	shape := s.Shape()
	got := hdr.Shape()
	return Comparison{
		Series:      s,
		SeriesShape: shape,
		Affine:      hdr.Affine(),
		MaxDiff:     nifti.AffineMaxDiff(hdr.Affine(), aff),
		ShapeMatch:  len(got) >= 3 && slices.Equal(got[:3], shape),
		Axes:        nifti.AxisCodes(aff),
	}, nil
}
