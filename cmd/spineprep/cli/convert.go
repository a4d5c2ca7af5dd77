package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrsinham/spineprep/internal/bids"
)

func (a *app) newConvertCmd() *cobra.Command {
	var (
		source, output string
		force          bool
		remap          []string
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a flat images/labels folder to BIDS",
		Long: `convert reads <source>/images/*.nii.gz and the label of the same name in
<source>/labels, and writes:

  <output>/sub-<id>/anat/sub-<id>_T2w.nii.gz
  <output>/derivatives/labels_iso/sub-<id>/anat/sub-<id>_T2w_label-spine_dseg.nii.gz

Subject ids are <case>_<date> taken from names such as "100 Smith 20130610.nii.gz",
or ldhNNN when the name does not match. Label values are rounded to integers and
remapped (default 1=101).`,
		Example: "  spineprep convert --source data/raw/ldh --output data/bids/ldh --remap 1=101",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("remap") {
				remap = a.cfg.Convert.Remap
			}
			values, err := bids.ParseRemap(remap)
			if err != nil {
				return err
			}

			opts := bids.DefaultOptions()
			opts.SourceDir = source
			opts.OutputDir = output
			opts.Force = force
			opts.Remap = values
			opts.ImageSuffix = a.cfg.Convert.ImageSuffix
			opts.LabelSuffix = a.cfg.Convert.LabelSuffix
			opts.DerivativesDir = a.cfg.Convert.DerivativesDir
			opts.Workers = a.cfg.Workers
			opts.Logger = a.log

			out := a.stdout
			printTitle(out, "Convert to BIDS")
			printField(out, "Source", source)
			printField(out, "Output", output)
			printField(out, "Remap", fmt.Sprint(remap))
			fmt.Fprintln(out)

			bar := newProgressPrinter(out)
			opts.Progress = func(done, total int) { bar.update("subjects", done, total) }
			res, err := bids.Convert(cmd.Context(), opts)
			bar.finish()
			if err != nil && res.Outcomes == nil {
				return a.fail("%v", err)
			}

			for _, name := range res.Plan.Skipped {
				fmt.Fprintf(out, "  %s %s: label not found\n", warnStyle.Render("!"), name)
			}
			a.printSummary(out, res.Summary, summaryLabels{"Converted", "Missing labels", "Errors"})
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "folder containing images/ and labels/")
	cmd.Flags().StringVar(&output, "output", "", "BIDS output folder")
	cmd.Flags().BoolVar(&force, "force", false, "replace a non-empty output folder")
	cmd.Flags().StringSliceVar(&remap, "remap", nil, "label value rewrite FROM=TO (repeatable)")
	cmd.Flags().IntP("max-workers", "w", 0, "parallel workers (0 = number of CPUs)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
