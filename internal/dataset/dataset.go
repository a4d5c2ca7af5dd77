// Package dataset discovers channel pairs in an nnU-Net raw dataset folder
// and runs geometry reconciliation over them.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ReferenceSuffix marks the channel whose geometry is authoritative.
	ReferenceSuffix = "_0000.nii.gz"
	// DependentSuffix marks the channel that must share the reference geometry.
	DependentSuffix = "_0001.nii.gz"

	TrainSplit = "imagesTr"
	TestSplit  = "imagesTs"
)

var (
	ErrDatasetNotFound = errors.New("dataset path does not exist")
	ErrSplitNotFound   = errors.New("imagesTr folder not found")
)

// Pair is one reference channel and the companion path derived from it. The
// dependent file may not exist.
type Pair struct {
	Reference string
	Dependent string
}

// Name is the case identifier, the reference file name without its channel
// suffix.
func (p Pair) Name() string {
	return strings.TrimSuffix(filepath.Base(p.Reference), ReferenceSuffix)
}

// OutcomeName is the name every outcome of the pair is reported under, the
// dependent file name, whether it ran or was skipped.
func (p Pair) OutcomeName() string {
	return filepath.Base(p.Dependent)
}

// CompanionPath returns the dependent channel path for a reference path by
// substituting the channel suffix within the same directory.
func CompanionPath(reference string) string {
	dir, name := filepath.Split(reference)
	if stem, ok := strings.CutSuffix(name, ReferenceSuffix); ok {
		name = stem + DependentSuffix
	}
	return filepath.Join(dir, name)
}

// Split is one image folder of the dataset with its pairs sorted by name.
type Split struct {
	Name  string
	Dir   string
	Pairs []Pair
}

// Layout is the set of splits found under a dataset root.
type Layout struct {
	Root   string
	Splits []Split
}

// NumPairs counts pairs over all splits.
func (l Layout) NumPairs() int {
	n := 0
	for _, s := range l.Splits {
		n += len(s.Pairs)
	}
	return n
}

// Discover validates the dataset root and lists the reference files of the
// training split and, when present, the test split. A missing root or
// training split is fatal; nothing is listed in that case.
func Discover(root string) (Layout, error) {
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return Layout{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, root)
	}

	trainDir := filepath.Join(root, TrainSplit)
	if fi, err := os.Stat(trainDir); err != nil || !fi.IsDir() {
		return Layout{}, fmt.Errorf("%w: %s", ErrSplitNotFound, trainDir)
	}

	layout := Layout{Root: root}
	for _, name := range []string{TrainSplit, TestSplit} {
		dir := filepath.Join(root, name)
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}
		pairs, err := listPairs(dir)
		if err != nil {
			return Layout{}, err
		}
		layout.Splits = append(layout.Splits, Split{Name: name, Dir: dir, Pairs: pairs})
	}
	return layout, nil
}

func listPairs(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ReferenceSuffix) {
			continue
		}
		ref := filepath.Join(dir, e.Name())
		pairs = append(pairs, Pair{Reference: ref, Dependent: CompanionPath(ref)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Reference < pairs[j].Reference })
	return pairs, nil
}
