package nifti

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSetQForm_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		affine *mat.Dense
		codes  string
	}{
		{"LAS", testAffine(), "LAS"},
		{"RAS identity-like", mat.NewDense(4, 4, []float64{
			1, 0, 0, -10,
			0, 1, 0, 20,
			0, 0, 2, 5,
			0, 0, 0, 1,
		}), "RAS"},
		{"sagittal", mat.NewDense(4, 4, []float64{
			0, 0, -4, 30,
			-0.6, 0, 0, 100,
			0, -0.6, 0, 120,
			0, 0, 0, 1,
		}), "PIL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHeader([]int{10, 10, 10}, Uint8)
			require.NoError(t, err)
			h.SetQForm(tt.affine, 1)

			got := h.QForm()
			assert.Less(t, AffineMaxDiff(tt.affine, got), 1e-5)
			assert.Equal(t, tt.codes, AxisCodes(got))
			assert.Equal(t, int16(1), h.QFormCode)
		})
	}
}

func TestSetSForm_Exact(t *testing.T) {
	h, err := NewHeader([]int{4, 4, 4}, Uint8)
	require.NoError(t, err)
	h.SetSForm(testAffine(), 2)
	assert.True(t, AffineEqual(h.SForm(), h.Affine()))

	// float32 storage round-trips exactly through SetSForm
	var other Header
	other.SetSForm(h.SForm(), 2)
	assert.Equal(t, h.SRowX, other.SRowX)
	assert.Equal(t, h.SRowY, other.SRowY)
	assert.Equal(t, h.SRowZ, other.SRowZ)
}

func TestAffine_Precedence(t *testing.T) {
	h, err := NewHeader([]int{3, 5, 7}, Uint8)
	require.NoError(t, err)
	h.PixDim[1], h.PixDim[2], h.PixDim[3] = 2, 3, 4

	base := h.Affine()
	assert.Equal(t, -2.0, base.At(0, 0))
	assert.Equal(t, 2.0, base.At(0, 3))
	assert.Equal(t, -6.0, base.At(1, 3))
	assert.Equal(t, -12.0, base.At(2, 3))

	h.SetQForm(testAffine(), 1)
	assert.Less(t, AffineMaxDiff(testAffine(), h.Affine()), 1e-5)

	shifted := mat.DenseCopyOf(testAffine())
	shifted.Set(0, 3, 1)
	h.SetSForm(shifted, 1)
	assert.Equal(t, 1.0, h.Affine().At(0, 3))
}

func TestAffineEqual(t *testing.T) {
	a := testAffine()
	b := mat.DenseCopyOf(a)
	assert.True(t, AffineEqual(a, b))
	b.Set(2, 3, b.At(2, 3)+1e-9)
	assert.False(t, AffineEqual(a, b))
	assert.InDelta(t, 1e-9, AffineMaxDiff(a, b), 1e-12)
}

func TestDatatype(t *testing.T) {
	for _, dt := range []Datatype{Uint8, Int16, Int32, Float32, Float64, Int8, Uint16, Uint32, Int64, Uint64} {
		parsed, err := ParseDatatype(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
		assert.True(t, dt.Valid())
	}
	assert.False(t, Datatype(128).Valid()) // RGB24
	_, err := ParseDatatype("complex64")
	assert.ErrorIs(t, err, ErrUnsupportedDatatype)
}
