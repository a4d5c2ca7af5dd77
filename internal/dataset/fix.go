package dataset

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mrsinham/spineprep/internal/batch"
	"github.com/mrsinham/spineprep/internal/reconcile"
)

// Options controls a reconciliation run.
type Options struct {
	Backup  reconcile.BackupPolicy
	Workers int
	// Progress, when set, is called per split as pairs complete.
	Progress func(split string, done, total int)
	Logger   zerolog.Logger
}

// SplitReport is the outcome of one split.
type SplitReport struct {
	Name     string
	Outcomes []batch.Outcome
	Summary  batch.Summary
}

// Report aggregates all splits of a run.
type Report struct {
	Splits  []SplitReport
	Summary batch.Summary
}

// FixMetadata reconciles every pair of every split in layout. Pairs are
// independent; a failing pair never stops the others. The returned error is
// only set when ctx was cancelled, in which case the report covers what ran.
func FixMetadata(ctx context.Context, layout Layout, opts Options) (Report, error) {
	r := reconcile.New(opts.Logger)
	return run(ctx, layout, opts, func(p Pair) batch.Outcome {
		return r.Reconcile(p.Reference, p.Dependent, opts.Backup)
	})
}

// Verify checks every pair without writing anything. Consistent pairs count
// as fixed, mismatching ones as errors.
func Verify(ctx context.Context, layout Layout, opts Options) (Report, error) {
	return run(ctx, layout, opts, func(p Pair) batch.Outcome {
		return reconcile.Check(p.Reference, p.Dependent).Outcome()
	})
}

func run(ctx context.Context, layout Layout, opts Options, fn func(Pair) batch.Outcome) (Report, error) {
	var report Report
	for _, split := range layout.Splits {
		if len(split.Pairs) == 0 {
			opts.Logger.Info().Str("split", split.Name).Msg("no reference files found")
			continue
		}

		var mapOpts []batch.Option
		if opts.Progress != nil {
			name := split.Name
			mapOpts = append(mapOpts, batch.WithProgress(func(done, total int) {
				opts.Progress(name, done, total)
			}))
		}

		outcomes, err := batch.MapOutcomes(ctx, split.Pairs, opts.Workers, Pair.OutcomeName, fn, mapOpts...)
		sr := SplitReport{Name: split.Name, Outcomes: outcomes, Summary: batch.Summarize(outcomes)}
		report.Splits = append(report.Splits, sr)
		report.Summary.Merge(sr.Summary)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}
