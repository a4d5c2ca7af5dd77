package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrsinham/spineprep/internal/batch"
	"github.com/mrsinham/spineprep/internal/dataset"
	"github.com/mrsinham/spineprep/internal/reconcile"
)

type datasetRun func(context.Context, dataset.Layout, dataset.Options) (dataset.Report, error)

// summaryLabels names the three counts of a dataset report.
type summaryLabels struct {
	fixed, missing, errors string
}

var (
	fixLabels    = summaryLabels{"Fixed", "Missing _0001 files", "Errors"}
	verifyLabels = summaryLabels{"Consistent", "Missing _0001 files", "Inconsistent"}
)

func (a *app) newFixMetadataCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "fix-metadata",
		Short: "Copy reference geometry onto each _0001 channel",
		Long: `fix-metadata walks imagesTr (and imagesTs when present) of an nnU-Net
dataset and rewrites every _0001 channel so that its affine and qform/sform
codes equal those of the matching _0000 channel. Voxel data is kept.

The original _0001 file is kept as <name>_backup.nii.gz unless --no-backup
is given.`,
		Example: "  spineprep fix-metadata -d data/nnUNet_raw/Dataset101_Spine -w 8",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy := reconcile.Overwrite
			if a.cfg.Backup {
				policy = reconcile.PreserveBackup
			}
			_, err := a.runDataset(cmd.Context(), root, "Fix metadata", policy, fixLabels, dataset.FixMetadata)
			return err
		},
	}
	cmd.Flags().StringVarP(&root, "dataset-path", "d", "", "nnU-Net dataset folder")
	cmd.Flags().Bool("no-backup", false, "overwrite _0001 files without keeping a backup")
	cmd.Flags().IntP("max-workers", "w", 0, "parallel workers (0 = number of CPUs)")
	_ = cmd.MarkFlagRequired("dataset-path")
	return cmd
}

func (a *app) newVerifyCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Report _0001 channels whose geometry differs from _0000",
		Long: `verify reads only the headers of each pair and reports those whose affine,
qform/sform codes or spatial shape disagree. Nothing is written. The exit
code is 1 when any pair is inconsistent or unreadable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := a.runDataset(cmd.Context(), root, "Verify metadata", 0, verifyLabels, dataset.Verify)
			if err != nil {
				return err
			}
			if summary.Errors > 0 {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&root, "dataset-path", "d", "", "nnU-Net dataset folder")
	cmd.Flags().IntP("max-workers", "w", 0, "parallel workers (0 = number of CPUs)")
	_ = cmd.MarkFlagRequired("dataset-path")
	return cmd
}

// runDataset discovers the dataset, prints the header, runs fn with a
// progress bar and prints the failures and summary. A dataset that cannot
// be discovered aborts before anything is processed.
func (a *app) runDataset(ctx context.Context, root, title string, policy reconcile.BackupPolicy, labels summaryLabels, fn datasetRun) (batch.Summary, error) {
	layout, err := dataset.Discover(root)
	if err != nil {
		return batch.Summary{}, a.fail("%v", err)
	}

	out := a.stdout
	printTitle(out, title)
	printField(out, "Dataset", layout.Root)
	printField(out, "Pairs", layout.NumPairs())
	printField(out, "Workers", batch.Workers(a.cfg.Workers, layout.NumPairs()))
	if policy != 0 {
		printField(out, "Backup", policy == reconcile.PreserveBackup)
	}
	fmt.Fprintln(out)

	bar := newProgressPrinter(out)
	report, err := fn(ctx, layout, dataset.Options{
		Backup:   policy,
		Workers:  a.cfg.Workers,
		Logger:   a.log,
		Progress: bar.update,
	})
	bar.finish()

	a.printSummary(out, report.Summary, labels)
	if errors.Is(err, context.Canceled) {
		return report.Summary, a.fail("interrupted, %d pairs not processed", report.Summary.Skipped)
	}
	return report.Summary, err
}

func (a *app) printSummary(out io.Writer, s batch.Summary, labels summaryLabels) {
	if len(s.Failures) > 0 {
		fmt.Fprintln(out, "Failures:")
		printFailures(out, s.Failures)
		fmt.Fprintln(out)
	}
	printTitle(out, "Summary")
	printField(out, labels.fixed, countStyle(s.Fixed, okStyle))
	printField(out, labels.missing, countStyle(s.Missing, warnStyle))
	printField(out, labels.errors, countStyle(s.Errors, errStyle))
	if s.Skipped > 0 {
		printField(out, "Skipped", countStyle(s.Skipped, warnStyle))
	}
}
