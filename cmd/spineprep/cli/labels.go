package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrsinham/spineprep/internal/labels"
)

func (a *app) newLabelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Maintain the dataset and label map JSON files",
		Long: `labels edits <resources>/datasets/dataset_stepN.json and
<resources>/labels_maps/nnunet_stepN.json for every training step. Every
file is validated before and after an edit; nothing is written when any
step fails.`,
	}
	cmd.PersistentFlags().String("resources", "", "resources folder (default from config)")
	cmd.AddCommand(
		a.newLabelsPrependCmd(),
		a.newLabelsPresetCmd(),
		a.newLabelsOrderCmd(),
		a.newLabelsValidateCmd(),
	)
	return cmd
}

func (a *app) resources() labels.Resources {
	return labels.Resources{Root: a.cfg.Resources}
}

func (a *app) newLabelsPrependCmd() *cobra.Command {
	var (
		name   string
		source int
	)
	cmd := &cobra.Command{
		Use:     "prepend",
		Short:   "Insert a new class 1 and shift existing classes up",
		Example: "  spineprep labels prepend --name LDH --source 101",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := a.resources()
			if err := res.Prepend(name, source); err != nil {
				return err
			}
			a.log.Info().Str("label", name).Int("source", source).Str("resources", res.Root).Msg("class prepended")
			for _, step := range labels.Steps {
				fmt.Fprintf(a.stdout, "%s %s: %s is class 1 (raw value %d)\n", okStyle.Render("✓"), step, name, source)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", labels.LDH, "label name")
	cmd.Flags().IntVar(&source, "source", labels.LDHSource, "raw annotation value mapped to the new class")
	return cmd
}

func (a *app) newLabelsPresetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preset",
		Short: "Write the canonical definitions with LDH appended as the last class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := a.resources()
			if err := res.WritePresets(); err != nil {
				return err
			}
			for _, step := range labels.Steps {
				fmt.Fprintf(a.stdout, "%s wrote %s and %s\n", okStyle.Render("✓"), res.DatasetPath(step), res.LabelMapPath(step))
			}
			return nil
		},
	}
}

func (a *app) newLabelsOrderCmd() *cobra.Command {
	var (
		first   string
		restore bool
	)
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Change regions_class_order",
		Long: `order moves the class of a label to the front of regions_class_order
(--first NAME) or restores ascending class order (--restore).`,
		Example: "  spineprep labels order --first LDH\n  spineprep labels order --restore",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (first == "") == !restore {
				return errors.New("exactly one of --first or --restore is required")
			}
			changed, err := a.resources().Reorder(first, first != "")
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				fmt.Fprintln(a.stdout, "regions_class_order already up to date")
				return nil
			}
			for _, step := range changed {
				fmt.Fprintf(a.stdout, "%s %s updated\n", okStyle.Render("✓"), step)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&first, "first", "", "label whose class goes first")
	cmd.Flags().BoolVar(&restore, "restore", false, "restore ascending order")
	return cmd
}

func (a *app) newLabelsValidateCmd() *cobra.Command {
	var stepFlag string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the JSON files and print their class layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps := labels.Steps
			if stepFlag != "" {
				step, err := labels.ParseStep(stepFlag)
				if err != nil {
					return err
				}
				steps = []labels.Step{step}
			}

			res := a.resources()
			failed := false
			for _, step := range steps {
				if err := a.validateStep(res, step); err != nil {
					fmt.Fprintf(a.stdout, "%s %s: %v\n", errStyle.Render("✗"), step, err)
					failed = true
				}
			}
			if failed {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stepFlag, "step", "", "only this step (1 or 2)")
	return cmd
}

func (a *app) validateStep(res labels.Resources, step labels.Step) error {
	ds, err := res.LoadDataset(step)
	if err != nil {
		return err
	}
	lm, err := res.LoadLabelMap(step)
	if err != nil {
		return err
	}
	if err := lm.Validate(ds); err != nil {
		return err
	}

	out := a.stdout
	printTitle(out, step.String())
	printField(out, "Labels", len(ds.Labels))
	printField(out, "Classes", len(ds.Classes()))
	printField(out, "Max class", ds.MaxClass())
	printField(out, "Map entries", len(lm))
	printField(out, "Mapped classes", len(lm.Targets()))
	order := make([]string, len(ds.RegionsClassOrder))
	for i, c := range ds.RegionsClassOrder {
		order[i] = fmt.Sprint(c)
	}
	printField(out, "Region order", strings.Join(order, " "))
	fmt.Fprintln(out)
	return nil
}
