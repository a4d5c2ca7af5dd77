package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/spineprep/internal/nifti"
	"github.com/mrsinham/spineprep/internal/reconcile"
)

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Run(context.Background(), "test", args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeVolume(t *testing.T, path string, xOffset float64) {
	t.Helper()
	v, err := nifti.FromUint8([]int{2, 2, 2}, []uint8{0, 1, 1, 0, 2, 2, 0, 1})
	require.NoError(t, err)
	aff := mat.NewDense(4, 4, []float64{
		1, 0, 0, xOffset,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	v.Header.SetQForm(aff, 1)
	v.Header.SetSForm(aff, 1)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, nifti.Save(path, v))
}

// buildDataset creates imagesTr with a mismatching pair, a reference without
// companion and, when broken is set, a corrupt companion.
func buildDataset(t *testing.T, broken bool) string {
	t.Helper()
	root := t.TempDir()
	tr := filepath.Join(root, "imagesTr")
	writeVolume(t, filepath.Join(tr, "good_0000.nii.gz"), 10)
	writeVolume(t, filepath.Join(tr, "good_0001.nii.gz"), 12)
	writeVolume(t, filepath.Join(tr, "lonely_0000.nii.gz"), 10)
	if broken {
		writeVolume(t, filepath.Join(tr, "broken_0000.nii.gz"), 10)
		require.NoError(t, os.WriteFile(filepath.Join(tr, "broken_0001.nii.gz"), []byte("not a volume"), 0o644))
	}
	return root
}

func assertCount(t *testing.T, out, label string, n int) {
	t.Helper()
	assert.Regexp(t, regexp.MustCompile(regexp.QuoteMeta(label)+`:\s+`+strconv.Itoa(n)+`\b`), out)
}

func TestFixMetadata(t *testing.T) {
	root := buildDataset(t, true)
	code, out, _ := run(t, "fix-metadata", "-d", root, "-w", "2")
	require.Equal(t, 0, code, out)

	assertCount(t, out, "Pairs", 3)
	assertCount(t, out, "Fixed", 1)
	assertCount(t, out, "Missing _0001 files", 1)
	assertCount(t, out, "Errors", 1)
	assert.Contains(t, out, "broken_0001.nii.gz")

	tr := filepath.Join(root, "imagesTr")
	assert.FileExists(t, reconcile.BackupPath(filepath.Join(tr, "good_0001.nii.gz")))
	assert.NoFileExists(t, filepath.Join(tr, "lonely_0001.nii.gz"))

	ref, err := nifti.LoadHeader(filepath.Join(tr, "good_0000.nii.gz"))
	require.NoError(t, err)
	dep, err := nifti.LoadHeader(filepath.Join(tr, "good_0001.nii.gz"))
	require.NoError(t, err)
	assert.True(t, nifti.AffineEqual(ref.Affine(), dep.Affine()))
}

func TestFixMetadata_NoBackup(t *testing.T) {
	root := buildDataset(t, false)
	code, _, _ := run(t, "fix-metadata", "--dataset-path", root, "--no-backup")
	require.Equal(t, 0, code)
	assert.NoFileExists(t, reconcile.BackupPath(filepath.Join(root, "imagesTr", "good_0001.nii.gz")))
}

func TestFixMetadata_InvalidRoot(t *testing.T) {
	code, out, errOut := run(t, "fix-metadata", "-d", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "dataset path does not exist")
	assert.NotContains(t, out, "Summary")

	code, _, errOut = run(t, "fix-metadata")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "dataset-path")
}

func TestVerify(t *testing.T) {
	root := buildDataset(t, false)

	code, out, _ := run(t, "verify", "-d", root)
	assert.Equal(t, 1, code)
	assertCount(t, out, "Inconsistent", 1)
	assert.Contains(t, out, "geometry mismatch")

	code, _, _ = run(t, "fix-metadata", "-d", root)
	require.Equal(t, 0, code)

	code, out, _ = run(t, "verify", "-d", root)
	assert.Equal(t, 0, code, out)
	assertCount(t, out, "Consistent", 1)
}

func TestConvert(t *testing.T) {
	src := t.TempDir()
	writeVolume(t, filepath.Join(src, "images", "100 Smith 20130610.nii.gz"), 0)
	writeVolume(t, filepath.Join(src, "labels", "100 Smith 20130610.nii.gz"), 0)
	writeVolume(t, filepath.Join(src, "images", "orphan.nii.gz"), 0)
	out := filepath.Join(t.TempDir(), "bids")

	code, stdout, _ := run(t, "convert", "--source", src, "--output", out, "--remap", "1=101", "--remap", "2=7")
	require.Equal(t, 0, code, stdout)
	assertCount(t, stdout, "Converted", 1)
	assertCount(t, stdout, "Missing labels", 1)
	assert.Contains(t, stdout, "orphan.nii.gz: label not found")

	lbl := filepath.Join(out, "derivatives", "labels_iso", "sub-100_20130610", "anat", "sub-100_20130610_T2w_label-spine_dseg.nii.gz")
	v, err := nifti.Load(lbl)
	require.NoError(t, err)
	vals, err := v.RoundInt32()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 101, 101, 0, 7, 7, 0, 101}, vals)
	assert.FileExists(t, filepath.Join(out, "sub-100_20130610", "anat", "sub-100_20130610_T2w.nii.gz"))

	code, _, errOut := run(t, "convert", "--source", src, "--output", out)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--force")

	code, _, _ = run(t, "convert", "--source", src, "--output", out, "--force")
	assert.Equal(t, 0, code)
}

func TestConvert_BadRemap(t *testing.T) {
	code, _, errOut := run(t, "convert", "--source", t.TempDir(), "--output", t.TempDir(), "--remap", "1:101")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "FROM=TO")
}

func TestLabels(t *testing.T) {
	res := t.TempDir()

	code, out, _ := run(t, "labels", "preset", "--resources", res)
	require.Equal(t, 0, code, out)
	assert.FileExists(t, filepath.Join(res, "datasets", "dataset_step1.json"))
	assert.FileExists(t, filepath.Join(res, "labels_maps", "nnunet_step2.json"))

	code, out, _ = run(t, "labels", "validate", "--resources", res)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "step1")
	assert.Contains(t, out, "Region order:")

	code, out, _ = run(t, "labels", "order", "--first", "LDH", "--resources", res)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "step1 updated")
	assert.Contains(t, out, "step2 updated")

	code, out, _ = run(t, "labels", "validate", "--resources", res, "--step", "2")
	require.Equal(t, 0, code, out)
	assert.Regexp(t, `Region order:\s+12 1 2`, out)

	code, out, _ = run(t, "labels", "order", "--restore", "--resources", res)
	require.Equal(t, 0, code, out)
	code, out, _ = run(t, "labels", "order", "--restore", "--resources", res)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "already up to date")

	code, _, errOut := run(t, "labels", "prepend", "--resources", res)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "label already defined")

	code, out, _ = run(t, "labels", "prepend", "--name", "fracture", "--source", "200", "--resources", res)
	require.Equal(t, 0, code, out)
	code, out, _ = run(t, "labels", "validate", "--resources", res, "--step", "step1")
	require.Equal(t, 0, code, out)
	assertCount(t, out, "Max class", 11)
}

func TestLabels_OrderFlags(t *testing.T) {
	code, _, errOut := run(t, "labels", "order", "--resources", t.TempDir())
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "exactly one of --first or --restore")
}

func TestLabels_ValidateMissing(t *testing.T) {
	code, out, _ := run(t, "labels", "validate", "--resources", t.TempDir())
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "dataset_step1.json")
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan_0000.nii.gz")
	writeVolume(t, path, 10)

	code, out, _ := run(t, "inspect", path)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "scan_0000")
	assert.Regexp(t, `Shape:\s+2 x 2 x 2`, out)
	assert.Regexp(t, `Orientation:\s+RAS`, out)
	assert.Regexp(t, `qform / sform code:\s+1 / 1`, out)
	assert.Contains(t, out, "10.0000")

	code, out, _ = run(t, "inspect", path, filepath.Join(t.TempDir(), "notes.txt"))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "not a .nii or .nii.gz file")
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.nii.gz")
	writeVolume(t, path, 0)
	png := filepath.Join(dir, "scan.png")

	code, out, errOut := run(t, "preview", path, "--out", png, "--axis", "sagittal", "--mask", path, "--size", "64")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, png)

	data, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	code, _, errOut = run(t, "preview", path, "--out", png, "--axis", "axil")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown axis "axil", did you mean "axial"?`)
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "spineprep.log")
	cfgPath := filepath.Join(dir, "spineprep.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: 1\nbackup: false\nlog:\n  level: debug\n  file: "+logFile+"\n"), 0o644))

	root := buildDataset(t, false)
	code, out, _ := run(t, "--config", cfgPath, "fix-metadata", "-d", root)
	require.Equal(t, 0, code, out)
	assertCount(t, out, "Workers", 1)
	assert.Regexp(t, `Backup:\s+false`, out)
	assert.FileExists(t, logFile)

	t.Setenv("SPINEPREP_BACKUP", "true")
	code, out, _ = run(t, "--config", cfgPath, "fix-metadata", "-d", root, "-w", "2")
	require.Equal(t, 0, code, out)
	assert.Regexp(t, `Backup:\s+true`, out)
	assertCount(t, out, "Workers", 2)

	code, _, errOut := run(t, "--config", filepath.Join(dir, "spineprep.ini"), "verify", "-d", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported config format")
}

func TestLogLevelFlags(t *testing.T) {
	root := buildDataset(t, false)
	code, _, errOut := run(t, "fix-metadata", "-d", root, "--log-format", "json", "-v")
	require.Equal(t, 0, code)
	assert.Contains(t, errOut, `"level":"debug"`)

	code, _, errOut = run(t, "fix-metadata", "-d", root, "--log-format", "json", "-q")
	require.Equal(t, 0, code)
	assert.Empty(t, errOut)
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("SPINEPREP_WORKERS", "6")
	code, out, _ := run(t, "config", "--log-level", "warn")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "workers: 6")
	assert.Contains(t, out, "level: warn")

	path := filepath.Join(t.TempDir(), "effective.yaml")
	code, _, _ = run(t, "config", "--out", path)
	require.Equal(t, 0, code)

	code, out, _ = run(t, "--config", path, "config")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "workers: 6")
}
