// Package preview renders a slice of a volume to PNG for quick visual checks,
// optionally with a label mask blended on top.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"slices"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mrsinham/spineprep/internal/nifti"
	"github.com/mrsinham/spineprep/internal/util"
)

// Axis is the voxel axis a slice is taken across. The zero value is axial.
type Axis int

const (
	AxisZ Axis = iota
	AxisX
	AxisY
)

// dim is the index of the axis in the volume shape.
func (a Axis) dim() int {
	switch a {
	case AxisX:
		return 0
	case AxisY:
		return 1
	default:
		return 2
	}
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "unknown"
	}
}

var axisNames = []string{"x", "y", "z", "sagittal", "coronal", "axial"}

// ParseAxis parses "x", "y" or "z", also accepting the anatomical names
// sagittal, coronal and axial.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x", "sagittal":
		return AxisX, nil
	case "y", "coronal":
		return AxisY, nil
	case "z", "axial":
		return AxisZ, nil
	default:
		return 0, util.UnknownError("axis", s, axisNames)
	}
}

var (
	ErrSliceRange    = errors.New("slice index out of range")
	ErrMaskShape     = errors.New("mask shape does not match volume")
	ErrNotVolumetric = errors.New("volume has fewer than 3 dimensions")
)

// Options controls rendering. The zero value renders axial slice 0 at 512
// pixels on the long side without caption.
type Options struct {
	Axis Axis
	// Slice is the index along Axis; negative means the middle slice.
	Slice int
	// Size is the length of the longer image side in pixels.
	Size    int
	Caption string
	// Mask, when set, is blended over the slice; 0 is transparent.
	Mask    *nifti.Volume
	Opacity float64
}

const (
	defaultSize    = 512
	defaultOpacity = 0.5
)

// palette colours label values modulo its length.
var palette = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
	{210, 245, 60, 255},
	{250, 190, 212, 255},
	{0, 128, 128, 255},
	{170, 110, 40, 255},
}

// plane is a 2D cut of a volume, row-major with row 0 at the top.
type plane struct {
	w, h   int
	vals   []float64
	sx, sy float64 // physical pixel size
}

func cut(v *nifti.Volume, axis Axis, index int) (plane, int, error) {
	shape := v.Shape()
	if len(shape) < 3 {
		return plane{}, 0, ErrNotVolumetric
	}
	nx, ny, nz := shape[0], shape[1], shape[2]
	n := shape[axis.dim()]
	if index < 0 {
		index = n / 2
	}
	if index >= n {
		return plane{}, 0, fmt.Errorf("%w: %d not in 0..%d", ErrSliceRange, index, n-1)
	}

	all, err := v.Float64s()
	if err != nil {
		return plane{}, 0, err
	}
	at := func(x, y, z int) float64 { return all[x+nx*(y+ny*z)] }
	zooms := v.Header.Zooms()

	// image x runs along the first remaining axis, image y upward along the second
	var p plane
	switch axis {
	case AxisX:
		p = plane{w: ny, h: nz, sx: zooms[1], sy: zooms[2]}
		p.vals = make([]float64, ny*nz)
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				p.vals[(nz-1-z)*ny+y] = at(index, y, z)
			}
		}
	case AxisY:
		p = plane{w: nx, h: nz, sx: zooms[0], sy: zooms[2]}
		p.vals = make([]float64, nx*nz)
		for z := 0; z < nz; z++ {
			for x := 0; x < nx; x++ {
				p.vals[(nz-1-z)*nx+x] = at(x, index, z)
			}
		}
	default:
		p = plane{w: nx, h: ny, sx: zooms[0], sy: zooms[1]}
		p.vals = make([]float64, nx*ny)
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				p.vals[(ny-1-y)*nx+x] = at(x, y, index)
			}
		}
	}
	return p, index, nil
}

// Render draws the selected slice min-max windowed to grey levels and scaled
// to its physical aspect ratio.
func Render(v *nifti.Volume, opts Options) (*image.RGBA, error) {
	p, index, err := cut(v, opts.Axis, opts.Slice)
	if err != nil {
		return nil, err
	}

	var mask plane
	if opts.Mask != nil {
		if !slices.Equal(opts.Mask.Shape()[:min(3, len(opts.Mask.Shape()))], v.Shape()[:3]) {
			return nil, ErrMaskShape
		}
		if mask, _, err = cut(opts.Mask, opts.Axis, index); err != nil {
			return nil, err
		}
	}
	opacity := opts.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = defaultOpacity
	}

	lo, hi := window(p.vals)
	small := image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	for i, f := range p.vals {
		g := grey(f, lo, hi)
		c := color.RGBA{g, g, g, 255}
		if mask.vals != nil && mask.vals[i] != 0 {
			c = blend(c, palette[int(math.Abs(mask.vals[i]))%len(palette)], opacity)
		}
		small.SetRGBA(i%p.w, i/p.w, c)
	}

	size := opts.Size
	if size <= 0 {
		size = defaultSize
	}
	physW, physH := float64(p.w)*positive(p.sx), float64(p.h)*positive(p.sy)
	scale := float64(size) / math.Max(physW, physH)
	w := max(1, int(math.Round(physW*scale)))
	h := max(1, int(math.Round(physH*scale)))

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), draw.Src, nil)

	if opts.Caption != "" {
		drawCaption(out, opts.Caption)
	}
	return out, nil
}

func positive(f float64) float64 {
	if f <= 0 || math.IsNaN(f) {
		return 1
	}
	return f
}

func window(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

func grey(v, lo, hi float64) uint8 {
	if hi <= lo || math.IsNaN(v) {
		return 0
	}
	t := (v - lo) / (hi - lo)
	return uint8(math.Round(math.Max(0, math.Min(1, t)) * 255))
}

func blend(base, over color.RGBA, a float64) color.RGBA {
	mix := func(b, o uint8) uint8 { return uint8(math.Round(float64(b)*(1-a) + float64(o)*a)) }
	return color.RGBA{mix(base.R, over.R), mix(base.G, over.G), mix(base.B, over.B), 255}
}

// drawCaption writes text in the bottom-left corner over a black band,
// rendered with the 7x13 bitmap font and scaled up on large images.
func drawCaption(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	textW := font.MeasureString(face, text).Ceil()
	const textH = 13

	textImg := image.NewRGBA(image.Rect(0, 0, textW, textH))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	b := img.Bounds()
	scale := max(1, b.Dx()/256)
	w, h := textW*scale, textH*scale
	pad := scale * 2
	band := image.Rect(0, b.Max.Y-h-2*pad, min(b.Max.X, w+2*pad), b.Max.Y)
	draw.Draw(img, band, image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	dst := image.Rect(pad, b.Max.Y-h-pad, pad+w, b.Max.Y-pad)
	draw.NearestNeighbor.Scale(img, dst, textImg, textImg.Bounds(), draw.Over, nil)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePNG renders v and writes the PNG to path.
func WritePNG(path string, v *nifti.Volume, opts Options) error {
	img, err := Render(v, opts)
	if err != nil {
		return err
	}
	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data)
}
