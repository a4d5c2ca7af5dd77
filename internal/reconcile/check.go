package reconcile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrsinham/spineprep/internal/batch"
	"github.com/mrsinham/spineprep/internal/nifti"
)

// CheckResult describes how a dependent channel's geometry compares to its
// reference without modifying either file.
type CheckResult struct {
	Name       string
	Missing    bool
	Err        error
	AffineDiff float64
	QFormMatch bool
	SFormMatch bool
	ShapeMatch bool
}

// Consistent reports whether the pair already agrees exactly.
func (c CheckResult) Consistent() bool {
	return !c.Missing && c.Err == nil && c.AffineDiff == 0 && c.QFormMatch && c.SFormMatch && c.ShapeMatch
}

// Outcome maps the check onto the batch taxonomy: consistent pairs succeed,
// inconsistent ones fail with a description of the mismatch.
func (c CheckResult) Outcome() batch.Outcome {
	switch {
	case c.Missing:
		return batch.Missing(c.Name)
	case c.Err != nil:
		return batch.Failure(c.Name, c.Err)
	case c.Consistent():
		return batch.Success(c.Name)
	default:
		return batch.Failure(c.Name, fmt.Errorf("geometry mismatch: affine diff %.3g, qform match %t, sform match %t, shape match %t",
			c.AffineDiff, c.QFormMatch, c.SFormMatch, c.ShapeMatch))
	}
}

// Check compares the headers of a pair. Only headers are read.
func Check(referencePath, dependentPath string) CheckResult {
	res := CheckResult{Name: filepath.Base(dependentPath)}

	dep, err := nifti.LoadHeader(dependentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.Missing = true
		} else {
			res.Err = fmt.Errorf("load dependent: %w", err)
		}
		return res
	}
	ref, err := nifti.LoadHeader(referencePath)
	if err != nil {
		res.Err = fmt.Errorf("load reference: %w", err)
		return res
	}

	res.AffineDiff = nifti.AffineMaxDiff(ref.Affine(), dep.Affine())
	res.QFormMatch = ref.QFormCode == dep.QFormCode
	res.SFormMatch = ref.SFormCode == dep.SFormCode
	res.ShapeMatch = sameSpatialShape(ref.Shape(), dep.Shape())
	return res
}
