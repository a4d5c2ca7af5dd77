// Package bids converts a flat images/labels folder of clinical scans into a
// BIDS-style tree with one subject per scan and the labels under
// derivatives.
package bids

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrsinham/spineprep/internal/batch"
	"github.com/mrsinham/spineprep/internal/nifti"
	"github.com/mrsinham/spineprep/internal/util"
)

var (
	ErrSourceNotFound   = errors.New("source folder not found")
	ErrOutputNotEmpty   = errors.New("output folder exists and is not empty")
	ErrDuplicateSubject = errors.New("duplicate subject id")
)

// namePattern extracts the leading case number and the trailing date from
// names such as "100 Smith 20130610.nii.gz".
var namePattern = regexp.MustCompile(`^(\d+).*?(\d+)\.nii\.gz$`)

// Options configures a conversion.
type Options struct {
	SourceDir string
	OutputDir string
	// Force removes an existing non-empty output folder first.
	Force bool
	// Remap rewrites label values before saving, e.g. {1: 101}.
	Remap map[int32]int32
	// ImageSuffix and LabelSuffix form the BIDS file names.
	ImageSuffix    string
	LabelSuffix    string
	DerivativesDir string
	Workers        int
	Logger         zerolog.Logger
	Progress       batch.ProgressFunc
}

// DefaultOptions returns the layout used for the T2w spine dataset.
func DefaultOptions() Options {
	return Options{
		Remap:          map[int32]int32{1: 101},
		ImageSuffix:    "T2w",
		LabelSuffix:    "label-spine_dseg",
		DerivativesDir: "labels_iso",
		Logger:         zerolog.Nop(),
	}
}

// Subject is one planned conversion.
type Subject struct {
	ID        string
	Source    string
	Label     string
	ImageDest string
	LabelDest string
}

// Plan is the sequential part of a conversion: ids are assigned, missing
// labels skipped and duplicate ids rejected before anything is written.
type Plan struct {
	Subjects   []Subject
	Skipped    []string
	Duplicates []Subject
}

// SubjectID derives the subject id from a source file name. index is the
// 0-based position of the file in the sorted listing, used for names that do
// not carry a number and a date.
func SubjectID(name string, index int) (id string, parsed bool) {
	if m := namePattern.FindStringSubmatch(name); m != nil {
		return m[1] + "_" + m[2], true
	}
	return fmt.Sprintf("ldh%03d", index+1), false
}

// Layout returns the image and label destinations for a subject id.
func (o Options) Layout(id string) (image, label string) {
	sub := "sub-" + id
	image = filepath.Join(o.OutputDir, sub, "anat", fmt.Sprintf("%s_%s.nii.gz", sub, o.ImageSuffix))
	label = filepath.Join(o.OutputDir, "derivatives", o.DerivativesDir, sub, "anat",
		fmt.Sprintf("%s_%s_%s.nii.gz", sub, o.ImageSuffix, o.LabelSuffix))
	return image, label
}

// MakePlan lists the source images and decides where each goes.
func MakePlan(opts Options) (Plan, error) {
	imagesDir := filepath.Join(opts.SourceDir, "images")
	labelsDir := filepath.Join(opts.SourceDir, "labels")
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s", ErrSourceNotFound, imagesDir)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".nii.gz") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var plan Plan
	seen := map[string]bool{}
	for idx, name := range names {
		label := filepath.Join(labelsDir, name)
		if _, err := os.Stat(label); err != nil {
			opts.Logger.Warn().Str("image", name).Msg("label not found, skipping")
			plan.Skipped = append(plan.Skipped, name)
			continue
		}

		id, parsed := SubjectID(name, idx)
		if !parsed {
			opts.Logger.Warn().Str("image", name).Str("subject", id).Msg("could not parse file name, using default naming")
		}
		img, lbl := opts.Layout(id)
		s := Subject{ID: id, Source: filepath.Join(imagesDir, name), Label: label, ImageDest: img, LabelDest: lbl}
		if seen[id] {
			plan.Duplicates = append(plan.Duplicates, s)
			continue
		}
		seen[id] = true
		plan.Subjects = append(plan.Subjects, s)
	}
	return plan, nil
}

// Result summarises a conversion.
type Result struct {
	Plan     Plan
	Outcomes []batch.Outcome
	Summary  batch.Summary
}

// Convert plans and executes the conversion. Subjects are written in
// parallel; each writes to its own folders.
func Convert(ctx context.Context, opts Options) (Result, error) {
	plan, err := MakePlan(opts)
	if err != nil {
		return Result{}, err
	}
	if err := prepareOutput(opts.OutputDir, opts.Force); err != nil {
		return Result{}, err
	}

	outcomes, err := batch.MapOutcomes(ctx, plan.Subjects, opts.Workers,
		func(s Subject) string { return "sub-" + s.ID },
		func(s Subject) batch.Outcome { return convertSubject(s, opts) },
		batch.WithProgress(func(done, total int) {
			if done%50 == 0 {
				opts.Logger.Info().Int("done", done).Int("total", total).Msg("processed subjects")
			}
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
		}))

	for _, d := range plan.Duplicates {
		outcomes = append(outcomes, batch.Failure(filepath.Base(d.Source), fmt.Errorf("%w: sub-%s", ErrDuplicateSubject, d.ID)))
	}

	res := Result{Plan: plan, Outcomes: outcomes, Summary: batch.Summarize(outcomes)}
	res.Summary.Missing += len(plan.Skipped)
	return res, err
}

func prepareOutput(dir string, force bool) error {
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	case len(entries) > 0 && !force:
		return fmt.Errorf("%w: %s (use --force to replace it)", ErrOutputNotEmpty, dir)
	case len(entries) > 0:
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return os.MkdirAll(dir, 0o755)
}

// convertSubject writes one subject. Errors and panics become a failed
// outcome so the other subjects keep going.
func convertSubject(s Subject, opts Options) (out batch.Outcome) {
	name := "sub-" + s.ID
	defer func() {
		if p := recover(); p != nil {
			out = batch.Failure(name, fmt.Errorf("panic: %v", p))
			opts.Logger.Error().Str("subject", name).Str("reason", out.Reason).Msg("conversion panicked")
		}
	}()
	if err := util.CopyFile(s.Source, s.ImageDest); err != nil {
		return batch.Failure(name, fmt.Errorf("copy image: %w", err))
	}
	if err := writeLabel(s.Label, s.LabelDest, opts.Remap); err != nil {
		return batch.Failure(name, fmt.Errorf("label: %w", err))
	}
	return batch.Success(name)
}

// writeLabel rounds the label to int32, applies remap and saves it with the
// label's own geometry.
func writeLabel(src, dst string, remap map[int32]int32) error {
	v, err := nifti.Load(src)
	if err != nil {
		return err
	}
	vals, err := v.RoundInt32()
	if err != nil {
		return err
	}
	RemapLabels(vals, remap)

	out, err := nifti.FromInt32(v.Shape(), vals)
	if err != nil {
		return err
	}
	hdr := v.Header
	if err := hdr.SetDatatype(nifti.Int32); err != nil {
		return err
	}
	hdr.SclSlope, hdr.SclInter = 0, 0
	out.Header = hdr

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return nifti.Save(dst, out)
}

// RemapLabels rewrites every value present in remap. Mappings are applied
// simultaneously, so {1: 2, 2: 3} does not chain.
func RemapLabels(vals []int32, remap map[int32]int32) {
	if len(remap) == 0 {
		return
	}
	for i, v := range vals {
		if to, ok := remap[v]; ok {
			vals[i] = to
		}
	}
}

// ParseRemap parses "from=to" pairs such as "1=101".
func ParseRemap(pairs []string) (map[int32]int32, error) {
	out := make(map[int32]int32, len(pairs))
	for _, p := range pairs {
		var from, to int32
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d=%d", &from, &to); err != nil {
			return nil, fmt.Errorf("invalid remap %q (want FROM=TO): %w", p, err)
		}
		if _, dup := out[from]; dup {
			return nil, fmt.Errorf("remap for %d given twice", from)
		}
		out[from] = to
	}
	return out, nil
}
