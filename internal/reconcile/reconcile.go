// Package reconcile copies the spatial metadata of a reference channel onto a
// dependent channel of the same scan.
//
// The dependent volume keeps its voxels (cast to uint8) and takes the
// reference's affine and qform/sform codes, so both channels describe exactly
// the same geometry.
package reconcile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrsinham/spineprep/internal/batch"
	"github.com/mrsinham/spineprep/internal/nifti"
	"github.com/mrsinham/spineprep/internal/util"
)

// BackupPolicy says what happens to the dependent file before it is
// overwritten. The zero value is invalid.
type BackupPolicy int

const (
	// PreserveBackup copies the original dependent file next to it first.
	PreserveBackup BackupPolicy = iota + 1
	// Overwrite replaces the dependent file directly.
	Overwrite
)

// String returns the policy name
func (p BackupPolicy) String() string {
	switch p {
	case PreserveBackup:
		return "preserve-backup"
	case Overwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ErrInvalidPolicy is reported when Reconcile is called without a policy.
var ErrInvalidPolicy = errors.New("reconcile: backup policy must be PreserveBackup or Overwrite")

// BackupSuffix is inserted before the .nii extension of backup files.
const BackupSuffix = "_backup"

// BackupPath returns where the original dependent file is kept, e.g.
// case_0001.nii.gz -> case_0001_backup.nii.gz.
func BackupPath(dependentPath string) string {
	dir, name := filepath.Split(dependentPath)
	for _, ext := range []string{".nii.gz", ".nii"} {
		if stem, ok := strings.CutSuffix(name, ext); ok && stem != "" {
			return filepath.Join(dir, stem+BackupSuffix+ext)
		}
	}
	return dependentPath + BackupSuffix
}

// Reconciler applies reference geometry to dependent volumes.
type Reconciler struct {
	log zerolog.Logger
}

// New returns a Reconciler that logs through log.
func New(log zerolog.Logger) *Reconciler {
	return &Reconciler{log: log}
}

// Reconcile rewrites dependentPath so that its affine and qform/sform codes
// equal those of referencePath. The reference is never modified. Errors and
// panics never escape: they are reported as a failed outcome.
func (r *Reconciler) Reconcile(referencePath, dependentPath string, policy BackupPolicy) (out batch.Outcome) {
	name := filepath.Base(dependentPath)
	log := r.log.With().Str("reference", filepath.Base(referencePath)).Str("dependent", name).Logger()

	defer func() {
		if p := recover(); p != nil {
			out = batch.Failure(name, fmt.Errorf("panic: %v", p))
			log.Error().Str("reason", out.Reason).Msg("reconcile panicked")
		}
	}()

	if policy != PreserveBackup && policy != Overwrite {
		return batch.Failure(name, ErrInvalidPolicy)
	}

	if _, err := os.Stat(dependentPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Msg("dependent channel missing")
			return batch.Missing(name)
		}
		return batch.Failure(name, err)
	}

	if err := r.reconcile(referencePath, dependentPath, policy); err != nil {
		log.Warn().Err(err).Msg("reconcile failed")
		return batch.Failure(name, err)
	}
	log.Debug().Str("policy", policy.String()).Msg("geometry reconciled")
	return batch.Success(name)
}

func (r *Reconciler) reconcile(referencePath, dependentPath string, policy BackupPolicy) error {
	ref, err := nifti.LoadHeader(referencePath)
	if err != nil {
		return fmt.Errorf("load reference: %w", err)
	}
	dep, err := nifti.Load(dependentPath)
	if err != nil {
		return fmt.Errorf("load dependent: %w", err)
	}

	fixed, err := Apply(ref, dep)
	if err != nil {
		return err
	}
	if !sameSpatialShape(ref.Shape(), dep.Shape()) {
		r.log.Warn().
			Ints("reference_shape", ref.Shape()).
			Ints("dependent_shape", dep.Shape()).
			Str("dependent", filepath.Base(dependentPath)).
			Msg("channel shapes differ; geometry copied anyway")
	}

	if policy == PreserveBackup {
		if err := backup(dependentPath); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}
	if err := nifti.Save(dependentPath, fixed); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Apply builds the reconciled volume: dep's voxels cast to uint8 combined with
// ref's header geometry.
func Apply(ref *nifti.Header, dep *nifti.Volume) (*nifti.Volume, error) {
	data, err := dep.CastUint8()
	if err != nil {
		return nil, fmt.Errorf("cast dependent voxels: %w", err)
	}

	hdr := *ref
	if err := hdr.SetShape(dep.Shape()); err != nil {
		return nil, err
	}
	if err := hdr.SetDatatype(nifti.Uint8); err != nil {
		return nil, err
	}
	// label data must read back unscaled
	hdr.SclSlope, hdr.SclInter = 0, 0
	hdr.CalMin, hdr.CalMax = 0, 0
	hdr.GLMin, hdr.GLMax = 0, 0

	// the qform travels with the header copy; its code is set here
	hdr.SetSForm(ref.SForm(), ref.SFormCode)
	hdr.QFormCode = ref.QFormCode

	return &nifti.Volume{Header: hdr, Data: data}, nil
}

// backup copies the dependent file byte for byte. An existing backup is left
// alone so that re-running never replaces the true original.
func backup(dependentPath string) error {
	dst := BackupPath(dependentPath)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	return util.CopyFile(dependentPath, dst)
}

func sameSpatialShape(a, b []int) bool {
	for i := 0; i < 3; i++ {
		var x, y = 1, 1
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return false
		}
	}
	return true
}
