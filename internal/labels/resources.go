package labels

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/mrsinham/spineprep/internal/util"
)

// Resources is the folder holding datasets/ and labels_maps/.
type Resources struct {
	Root string
}

func (r Resources) DatasetPath(step Step) string {
	return filepath.Join(r.Root, "datasets", fmt.Sprintf("dataset_%s.json", step))
}

func (r Resources) LabelMapPath(step Step) string {
	return filepath.Join(r.Root, "labels_maps", fmt.Sprintf("nnunet_%s.json", step))
}

func (r Resources) LoadDataset(step Step) (*Dataset, error) {
	path := r.DatasetPath(step)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

func (r Resources) LoadLabelMap(step Step) (LabelMap, error) {
	path := r.LabelMapPath(step)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lm, err := ParseLabelMap(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lm, nil
}

func (r Resources) SaveDataset(step Step, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	return save(r.DatasetPath(step), ds)
}

func (r Resources) SaveLabelMap(step Step, lm LabelMap) error {
	return save(r.LabelMapPath(step), lm)
}

func save(path string, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data)
}

// Prepend runs PrependClass on the files of every step. All steps are
// computed before anything is written.
func (r Resources) Prepend(name string, source int) error {
	type result struct {
		ds *Dataset
		lm LabelMap
	}
	results := make([]result, len(Steps))
	for i, step := range Steps {
		ds, err := r.LoadDataset(step)
		if err != nil {
			return err
		}
		lm, err := r.LoadLabelMap(step)
		if err != nil {
			return err
		}
		ds, lm, err = PrependClass(ds, lm, name, source)
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		if err := lm.Validate(ds); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		results[i] = result{ds: ds, lm: lm}
	}
	for i, step := range Steps {
		if err := r.SaveLabelMap(step, results[i].lm); err != nil {
			return err
		}
		if err := r.SaveDataset(step, results[i].ds); err != nil {
			return err
		}
	}
	return nil
}

// WritePresets overwrites every step with its canonical definition.
func (r Resources) WritePresets() error {
	for _, step := range Steps {
		ds, lm, err := Preset(step)
		if err != nil {
			return err
		}
		if err := lm.Validate(ds); err != nil {
			return fmt.Errorf("%s preset: %w", step, err)
		}
		if err := r.SaveDataset(step, ds); err != nil {
			return err
		}
		if err := r.SaveLabelMap(step, lm); err != nil {
			return err
		}
	}
	return nil
}

// Reorder moves the class of label name to the front of every step's region
// order, or restores ascending order when first is false. It returns the
// steps whose file changed.
func (r Resources) Reorder(name string, first bool) ([]Step, error) {
	var changed []Step
	for _, step := range Steps {
		ds, err := r.LoadDataset(step)
		if err != nil {
			return changed, err
		}
		before := slices.Clone(ds.RegionsClassOrder)
		if first {
			code, err := ds.ClassOf(name)
			if err != nil {
				return changed, fmt.Errorf("%s: %w", step, err)
			}
			if !MoveClassFirst(ds, code) {
				return changed, fmt.Errorf("%s: %w: %d", step, ErrNoSuchClass, code)
			}
		} else {
			RestoreAscendingOrder(ds)
		}
		if slices.Equal(ds.RegionsClassOrder, before) {
			continue
		}
		if err := r.SaveDataset(step, ds); err != nil {
			return changed, err
		}
		changed = append(changed, step)
	}
	return changed, nil
}
