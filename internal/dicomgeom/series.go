// Package dicomgeom rebuilds the voxel-to-world affine of a DICOM series so
// that a converted NIfTI volume can be checked against its source.
package dicomgeom

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoSlices      = errors.New("no DICOM slices found")
	ErrMissingTag    = errors.New("missing DICOM attribute")
	ErrMixedGeometry = errors.New("slices do not share one orientation")
)

// Slice is the position of one image of the series.
type Slice struct {
	Path     string
	Position [3]float64
	Instance int
	// Distance is the position projected on the slice normal.
	Distance float64
}

// Series is the in-plane geometry shared by every slice plus the slices
// sorted along the normal.
type Series struct {
	UID          string
	Rows         int
	Columns      int
	RowCosines   [3]float64
	ColCosines   [3]float64
	PixelSpacing [2]float64 // between rows, between columns
	Thickness    float64
	Slices       []Slice
	// Skipped holds files that could not be read as DICOM.
	Skipped []string
}

// ReadSeries reads the headers of every file in dir. Only the first series
// found, by sorted file name, is kept; files of other series are skipped.
func ReadSeries(dir string) (*Series, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var s *Series
	var skipped []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		g, sl, err := readSlice(ds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sl.Path = path

		if s == nil {
			s = g
		} else if g.UID != s.UID {
			skipped = append(skipped, name)
			continue
		} else if !sameGeometry(s, g) {
			return nil, fmt.Errorf("%w: %s", ErrMixedGeometry, name)
		}
		s.Slices = append(s.Slices, sl)
	}
	if s == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoSlices, dir)
	}
	s.Skipped = skipped

	n := s.Normal()
	for i := range s.Slices {
		s.Slices[i].Distance = dot(n, s.Slices[i].Position)
	}
	sort.SliceStable(s.Slices, func(i, j int) bool { return s.Slices[i].Distance < s.Slices[j].Distance })
	return s, nil
}

func readSlice(ds dicom.Dataset) (*Series, Slice, error) {
	var g Series
	var sl Slice

	ipp, err := floats(ds, tag.ImagePositionPatient, 3)
	if err != nil {
		return nil, sl, err
	}
	copy(sl.Position[:], ipp)

	iop, err := floats(ds, tag.ImageOrientationPatient, 6)
	if err != nil {
		return nil, sl, err
	}
	copy(g.RowCosines[:], iop[:3])
	copy(g.ColCosines[:], iop[3:])

	ps, err := floats(ds, tag.PixelSpacing, 2)
	if err != nil {
		return nil, sl, err
	}
	copy(g.PixelSpacing[:], ps)

	if g.Rows, err = integer(ds, tag.Rows); err != nil {
		return nil, sl, err
	}
	if g.Columns, err = integer(ds, tag.Columns); err != nil {
		return nil, sl, err
	}
	if th, err := floats(ds, tag.SliceThickness, 1); err == nil {
		g.Thickness = th[0]
	}
	if uid, err := str(ds, tag.SeriesInstanceUID); err == nil {
		g.UID = uid
	}
	if in, err := str(ds, tag.InstanceNumber); err == nil {
		sl.Instance = instanceNumber(in)
	}
	return &g, sl, nil
}

// instanceNumber parses an InstanceNumber value. It is informational only:
// slices are ordered by position, so a malformed value reads as 0.
func instanceNumber(s string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil {
		return 0
	}
	return n
}

func str(ds dicom.Dataset, t tag.Tag) (string, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingTag, tagName(t))
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingTag, tagName(t))
	}
	return strings.TrimSpace(vals[0]), nil
}

func floats(ds dicom.Dataset, t tag.Tag, n int) ([]float64, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingTag, tagName(t))
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok || len(vals) < n {
		return nil, fmt.Errorf("%s: want %d values", tagName(t), n)
	}
	out := make([]float64, n)
	for i := range out {
		f, err := strconv.ParseFloat(strings.TrimSpace(vals[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tagName(t), err)
		}
		out[i] = f
	}
	return out, nil
}

func integer(ds dicom.Dataset, t tag.Tag) (int, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingTag, tagName(t))
	}
	vals, ok := elem.Value.GetValue().([]int)
	if !ok || len(vals) == 0 {
		return 0, fmt.Errorf("%s: not an integer", tagName(t))
	}
	return vals[0], nil
}

func tagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Name
	}
	return t.String()
}

const geomTol = 1e-4

func sameGeometry(a, b *Series) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(a.RowCosines[i]-b.RowCosines[i]) > geomTol || math.Abs(a.ColCosines[i]-b.ColCosines[i]) > geomTol {
			return false
		}
	}
	return a.Rows == b.Rows && a.Columns == b.Columns &&
		math.Abs(a.PixelSpacing[0]-b.PixelSpacing[0]) <= geomTol &&
		math.Abs(a.PixelSpacing[1]-b.PixelSpacing[1]) <= geomTol
}

// Normal is the slice normal, row cosines cross column cosines.
func (s *Series) Normal() [3]float64 {
	r, c := s.RowCosines, s.ColCosines
	return [3]float64{
		r[1]*c[2] - r[2]*c[1],
		r[2]*c[0] - r[0]*c[2],
		r[0]*c[1] - r[1]*c[0],
	}
}

// SliceStep is the mean distance between consecutive slices, falling back to
// the slice thickness (or 1) for a single slice.
func (s *Series) SliceStep() float64 {
	if len(s.Slices) < 2 {
		if s.Thickness > 0 {
			return s.Thickness
		}
		return 1
	}
	first, last := s.Slices[0].Distance, s.Slices[len(s.Slices)-1].Distance
	return (last - first) / float64(len(s.Slices)-1)
}

// MaxGapError is the largest deviation of a slice gap from SliceStep.
func (s *Series) MaxGapError() float64 {
	step := s.SliceStep()
	m := 0.0
	for i := 1; i < len(s.Slices); i++ {
		m = math.Max(m, math.Abs(s.Slices[i].Distance-s.Slices[i-1].Distance-step))
	}
	return m
}

// Shape is columns, rows, slices: the index order of the affine.
func (s *Series) Shape() []int {
	return []int{s.Columns, s.Rows, len(s.Slices)}
}

// Affine maps (column, row, slice) indices to RAS millimetres. DICOM
// patient space is LPS, so the first two world axes are negated.
func (s *Series) Affine() *mat.Dense {
	step := s.SliceStep()
	n := s.Normal()
	origin := s.Slices[0].Position

	lps := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		lps.Set(i, 0, s.RowCosines[i]*s.PixelSpacing[1])
		lps.Set(i, 1, s.ColCosines[i]*s.PixelSpacing[0])
		lps.Set(i, 2, n[i]*step)
		lps.Set(i, 3, origin[i])
	}
	lps.Set(3, 3, 1)

	flip := mat.NewDiagDense(4, []float64{-1, -1, 1, 1})
	var ras mat.Dense
	ras.Mul(flip, lps)
	return &ras
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
