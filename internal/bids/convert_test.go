package bids

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsinham/spineprep/internal/batch"
	"github.com/mrsinham/spineprep/internal/nifti"
)

func TestSubjectID(t *testing.T) {
	tests := []struct {
		name   string
		index  int
		want   string
		parsed bool
	}{
		{"100 Smith 20130610.nii.gz", 0, "100_20130610", true},
		{"7_x_2.nii.gz", 4, "7_2", true},
		{"scan.nii.gz", 0, "ldh001", false},
		{"scan 20130610.nii.gz", 41, "ldh042", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, parsed := SubjectID(tt.name, tt.index)
			assert.Equal(t, tt.want, id)
			assert.Equal(t, tt.parsed, parsed)
		})
	}
}

func TestParseRemap(t *testing.T) {
	got, err := ParseRemap([]string{"1=101", " 2=3 "})
	require.NoError(t, err)
	assert.Equal(t, map[int32]int32{1: 101, 2: 3}, got)

	_, err = ParseRemap([]string{"1:101"})
	assert.Error(t, err)
	_, err = ParseRemap([]string{"1=2", "1=3"})
	assert.Error(t, err)
}

func TestRemapLabels_NoChain(t *testing.T) {
	vals := []int32{0, 1, 2, 3}
	RemapLabels(vals, map[int32]int32{1: 2, 2: 3})
	assert.Equal(t, []int32{0, 2, 3, 3}, vals)
}

func writeScan(t *testing.T, path string, vals []float32) {
	t.Helper()
	v, err := nifti.FromFloat32([]int{2, 2, 1}, vals)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, nifti.Save(path, v))
}

func buildSource(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	img := filepath.Join(src, "images")
	lbl := filepath.Join(src, "labels")
	for _, name := range []string{"100 Other 20130610.nii.gz", "100 Smith 20130610.nii.gz", "abc.nii.gz", "nolabel.nii.gz"} {
		writeScan(t, filepath.Join(img, name), []float32{1, 2, 3, 4})
	}
	for _, name := range []string{"100 Other 20130610.nii.gz", "100 Smith 20130610.nii.gz", "abc.nii.gz"} {
		writeScan(t, filepath.Join(lbl, name), []float32{0, 1, 2, 0.6})
	}
	require.NoError(t, os.WriteFile(filepath.Join(img, "readme.txt"), nil, 0o644))
	return src
}

func testOptions(src, out string) Options {
	opts := DefaultOptions()
	opts.SourceDir = src
	opts.OutputDir = out
	opts.Workers = 2
	return opts
}

func TestMakePlan(t *testing.T) {
	src := buildSource(t)
	plan, err := MakePlan(testOptions(src, "/out"))
	require.NoError(t, err)

	require.Len(t, plan.Subjects, 2)
	assert.Equal(t, "100_20130610", plan.Subjects[0].ID)
	assert.Equal(t, "ldh003", plan.Subjects[1].ID)
	assert.Equal(t, filepath.Join("/out", "sub-ldh003", "anat", "sub-ldh003_T2w.nii.gz"), plan.Subjects[1].ImageDest)
	assert.Equal(t,
		filepath.Join("/out", "derivatives", "labels_iso", "sub-ldh003", "anat", "sub-ldh003_T2w_label-spine_dseg.nii.gz"),
		plan.Subjects[1].LabelDest)

	assert.Equal(t, []string{"nolabel.nii.gz"}, plan.Skipped)
	require.Len(t, plan.Duplicates, 1)
	assert.Equal(t, "100_20130610", plan.Duplicates[0].ID)
}

func TestMakePlan_NoSource(t *testing.T) {
	_, err := MakePlan(testOptions(t.TempDir(), t.TempDir()))
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestConvert(t *testing.T) {
	src := buildSource(t)
	out := filepath.Join(t.TempDir(), "bids")

	res, err := Convert(context.Background(), testOptions(src, out))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Fixed)
	assert.Equal(t, 1, res.Summary.Missing)
	assert.Equal(t, 1, res.Summary.Errors)
	assert.Equal(t, batch.StatusFailure, res.Outcomes[len(res.Outcomes)-1].Status)

	img, lbl := testOptions(src, out).Layout("100_20130610")
	copied, err := os.ReadFile(img)
	require.NoError(t, err)
	original, err := os.ReadFile(filepath.Join(src, "images", "100 Other 20130610.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, original, copied)

	label, err := nifti.Load(lbl)
	require.NoError(t, err)
	assert.Equal(t, nifti.Int32, label.Header.Datatype)
	vals, err := label.RoundInt32()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 101, 2, 101}, vals)
}

func TestConvert_OutputNotEmpty(t *testing.T) {
	src := buildSource(t)
	out := t.TempDir()
	stale := filepath.Join(out, "stale.txt")
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	_, err := Convert(context.Background(), testOptions(src, out))
	require.ErrorIs(t, err, ErrOutputNotEmpty)
	assert.FileExists(t, stale)

	opts := testOptions(src, out)
	opts.Force = true
	res, err := Convert(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Fixed)
	assert.NoFileExists(t, stale)
}

func TestConvert_CorruptLabelIsIsolated(t *testing.T) {
	src := buildSource(t)

	h, err := nifti.NewHeader([]int{2, 2, 1}, nifti.Float32)
	require.NoError(t, err)
	h.Dim[1] = -2
	var raw bytes.Buffer
	require.NoError(t, binary.Write(&raw, binary.LittleEndian, &h))
	raw.Write(make([]byte, 4+16))
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err = zw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(src, "labels", "abc.nii.gz"), gz.Bytes(), 0o644))

	out := filepath.Join(t.TempDir(), "bids")
	res, err := Convert(context.Background(), testOptions(src, out))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Fixed)
	// the corrupt label and the duplicate subject
	assert.Equal(t, 2, res.Summary.Errors)
	assert.Equal(t, "sub-ldh003", res.Summary.Failures[0].Name)
	assert.Contains(t, res.Summary.Failures[0].Reason, "invalid shape")

	_, lbl := testOptions(src, out).Layout("100_20130610")
	assert.FileExists(t, lbl)
}
