package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Affine returns the voxel-to-world transform a reader should use: the sform
// when sform_code is set, else the qform when qform_code is set, else the
// centred base affine built from pixdim.
func (h *Header) Affine() *mat.Dense {
	switch {
	case h.SFormCode > 0:
		return h.SForm()
	case h.QFormCode > 0:
		return h.QForm()
	default:
		return h.BaseAffine()
	}
}

// SForm returns the affine stored in srow_x/y/z.
func (h *Header) SForm() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for j := 0; j < 4; j++ {
		m.Set(0, j, float64(h.SRowX[j]))
		m.Set(1, j, float64(h.SRowY[j]))
		m.Set(2, j, float64(h.SRowZ[j]))
	}
	m.Set(3, 3, 1)
	return m
}

// SetSForm stores the top three rows of m in srow_x/y/z and sets sform_code.
func (h *Header) SetSForm(m mat.Matrix, code int16) {
	for j := 0; j < 4; j++ {
		h.SRowX[j] = float32(m.At(0, j))
		h.SRowY[j] = float32(m.At(1, j))
		h.SRowZ[j] = float32(m.At(2, j))
	}
	h.SFormCode = code
}

// qfac returns the handedness flag stored in pixdim[0].
func (h *Header) qfac() float64 {
	if h.PixDim[0] < 0 {
		return -1
	}
	return 1
}

// QForm returns the affine encoded by the quaternion, qoffset and pixdim
// fields.
func (h *Header) QForm() *mat.Dense {
	b := float64(h.QuaternB)
	c := float64(h.QuaternC)
	d := float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// b,c,d is not a unit quaternion's vector part; renormalise it
		n := 1 / math.Sqrt(b*b+c*c+d*d)
		b, c, d, a = b*n, c*n, d*n, 0
	} else {
		a = math.Sqrt(a)
	}

	rot := mat.NewDense(3, 3, []float64{
		a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c),
		2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b),
		2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b,
	})

	zooms := h.Zooms()
	for i := range zooms {
		if zooms[i] <= 0 {
			zooms[i] = 1
		}
	}
	zooms[2] *= h.qfac()

	var lin mat.Dense
	lin.Mul(rot, mat.NewDiagDense(3, zooms[:]))

	m := mat.NewDense(4, 4, nil)
	m.Slice(0, 3, 0, 3).(*mat.Dense).Copy(&lin)
	m.Set(0, 3, float64(h.QOffsetX))
	m.Set(1, 3, float64(h.QOffsetY))
	m.Set(2, 3, float64(h.QOffsetZ))
	m.Set(3, 3, 1)
	return m
}

// SetQForm encodes m as quaternion, qoffset and pixdim and sets qform_code.
// The rotation part is orthogonalised first, so shears in m are lost.
func (h *Header) SetQForm(m mat.Matrix, code int16) {
	var zooms [3]float64
	lin := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		var norm float64
		for i := 0; i < 3; i++ {
			norm += m.At(i, j) * m.At(i, j)
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		zooms[j] = norm
		for i := 0; i < 3; i++ {
			lin.Set(i, j, m.At(i, j)/norm)
		}
	}

	rot := orthogonalize(lin)
	qfac := 1.0
	if mat.Det(rot) < 0 {
		qfac = -1
		for i := 0; i < 3; i++ {
			rot.Set(i, 2, -rot.At(i, 2))
		}
	}

	b, c, d := quaternion(rot)
	h.QuaternB = float32(b)
	h.QuaternC = float32(c)
	h.QuaternD = float32(d)
	h.QOffsetX = float32(m.At(0, 3))
	h.QOffsetY = float32(m.At(1, 3))
	h.QOffsetZ = float32(m.At(2, 3))
	h.PixDim[0] = float32(qfac)
	for i := range zooms {
		h.PixDim[i+1] = float32(zooms[i])
	}
	h.QFormCode = code
}

// orthogonalize returns the closest rotation to r (polar decomposition).
func orthogonalize(r *mat.Dense) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(r, mat.SVDFull) {
		return mat.DenseCopyOf(r)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	out := mat.NewDense(3, 3, nil)
	out.Mul(&u, v.T())
	return out
}

// quaternion returns the b, c, d components of the unit quaternion for a
// proper rotation matrix, with a >= 0.
func quaternion(r mat.Matrix) (b, c, d float64) {
	r00, r01, r02 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	r10, r11, r12 := r.At(1, 0), r.At(1, 1), r.At(1, 2)
	r20, r21, r22 := r.At(2, 0), r.At(2, 1), r.At(2, 2)

	var a float64
	trace := r00 + r11 + r22 + 1
	if trace > 0.5 {
		a = 0.5 * math.Sqrt(trace)
		b = 0.25 * (r21 - r12) / a
		c = 0.25 * (r02 - r20) / a
		d = 0.25 * (r10 - r01) / a
	} else {
		xd := 1 + r00 - (r11 + r22)
		yd := 1 + r11 - (r00 + r22)
		zd := 1 + r22 - (r00 + r11)
		switch {
		case xd > 1:
			b = 0.5 * math.Sqrt(xd)
			c = 0.25 * (r01 + r10) / b
			d = 0.25 * (r02 + r20) / b
			a = 0.25 * (r21 - r12) / b
		case yd > 1:
			c = 0.5 * math.Sqrt(yd)
			b = 0.25 * (r01 + r10) / c
			d = 0.25 * (r12 + r21) / c
			a = 0.25 * (r02 - r20) / c
		default:
			d = 0.5 * math.Sqrt(zd)
			b = 0.25 * (r02 + r20) / d
			c = 0.25 * (r12 + r21) / d
			a = 0.25 * (r10 - r01) / d
		}
		if a < 0 {
			b, c, d = -b, -c, -d
		}
	}
	return b, c, d
}

// BaseAffine returns the affine readers fall back to when neither form code
// is set: x flipped, spacing from pixdim, origin at the volume centre.
func (h *Header) BaseAffine() *mat.Dense {
	zooms := h.Zooms()
	shape := h.Shape()
	m := mat.NewDense(4, 4, nil)
	signs := [3]float64{-1, 1, 1}
	for i := 0; i < 3; i++ {
		n := 1
		if i < len(shape) {
			n = shape[i]
		}
		z := zooms[i]
		if z == 0 {
			z = 1
		}
		m.Set(i, i, signs[i]*z)
		m.Set(i, 3, -signs[i]*z*float64(n-1)/2)
	}
	m.Set(3, 3, 1)
	return m
}

// AffineEqual reports exact element-wise equality of two 4x4 affines.
func AffineEqual(a, b mat.Matrix) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return false
	}
	return mat.Equal(a, b)
}

// AffineMaxDiff returns the largest absolute element difference.
func AffineMaxDiff(a, b mat.Matrix) float64 {
	var diff mat.Dense
	diff.Sub(a, b)
	r, c := diff.Dims()
	var maxDiff float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			maxDiff = math.Max(maxDiff, math.Abs(diff.At(i, j)))
		}
	}
	return maxDiff
}

// AxisCodes returns the world direction each voxel axis points toward, e.g.
// "RAS" or "LPI". Ambiguous axes are reported as '?'.
func AxisCodes(m mat.Matrix) string {
	positive := [3]byte{'R', 'A', 'S'}
	negative := [3]byte{'L', 'P', 'I'}
	codes := make([]byte, 3)
	used := [3]bool{}
	for j := 0; j < 3; j++ {
		best, bestAbs := -1, 0.0
		for i := 0; i < 3; i++ {
			if v := math.Abs(m.At(i, j)); v > bestAbs {
				best, bestAbs = i, v
			}
		}
		if best < 0 || used[best] {
			codes[j] = '?'
			continue
		}
		used[best] = true
		if m.At(best, j) > 0 {
			codes[j] = positive[best]
		} else {
			codes[j] = negative[best]
		}
	}
	return string(codes)
}
