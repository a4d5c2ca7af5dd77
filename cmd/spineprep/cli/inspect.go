package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/spineprep/internal/dicomgeom"
	"github.com/mrsinham/spineprep/internal/nifti"
	"github.com/mrsinham/spineprep/internal/preview"
)

func (a *app) newInspectCmd() *cobra.Command {
	var dicomDir string
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Print the geometry of NIfTI files",
		Long: `inspect prints shape, datatype, voxel size, orientation, qform/sform
codes and the affine of each file. Only headers are read.

With --dicom the affine is compared to the one derived from the DICOM series
in that folder, and the exit code is 1 when they disagree.`,
		Example: "  spineprep inspect imagesTr/case_0000.nii.gz imagesTr/case_0001.nii.gz\n" +
			"  spineprep inspect scan.nii.gz --dicom dicom/series1",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, path := range args {
				ok, err := a.inspectFile(path, dicomDir)
				if err != nil {
					fmt.Fprintf(a.stdout, "%s %s: %v\n\n", errStyle.Render("✗"), path, err)
				}
				failed = failed || err != nil || !ok
			}
			if failed {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dicomDir, "dicom", "", "DICOM series folder to compare against")
	return cmd
}

func (a *app) inspectFile(path, dicomDir string) (bool, error) {
	if !nifti.IsNIfTIName(path) {
		return false, fmt.Errorf("not a .nii or .nii.gz file")
	}
	hdr, err := nifti.LoadHeader(path)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	out := a.stdout
	printTitle(out, nifti.TrimExt(filepath.Base(path)))
	printField(out, "Size", humanize.Bytes(uint64(fi.Size())))
	printField(out, "Shape", joinInts(hdr.Shape(), " x "))
	printField(out, "Datatype", hdr.Datatype)
	z := hdr.Zooms()
	printField(out, "Voxel size", fmt.Sprintf("%.4g x %.4g x %.4g", z[0], z[1], z[2]))
	printField(out, "Orientation", nifti.AxisCodes(hdr.Affine()))
	printField(out, "qform / sform code", fmt.Sprintf("%d / %d", hdr.QFormCode, hdr.SFormCode))
	if d := hdr.Description(); d != "" {
		printField(out, "Description", d)
	}
	fmt.Fprintln(out, labelStyle.Render("Affine:"))
	printAffine(out, hdr.Affine())

	ok := true
	if dicomDir != "" {
		cmp, err := dicomgeom.Compare(hdr, dicomDir)
		if err != nil {
			return false, fmt.Errorf("dicom: %w", err)
		}
		fmt.Fprintln(out)
		printField(out, "DICOM series", cmp.Series.UID)
		printField(out, "DICOM slices", humanize.Comma(int64(len(cmp.Series.Slices))))
		printField(out, "DICOM shape", joinInts(cmp.SeriesShape, " x "))
		printField(out, "DICOM orientation", cmp.Axes)
		printField(out, "DICOM slice step", fmt.Sprintf("%.4g mm (max gap error %.3g)", cmp.Series.SliceStep(), cmp.Series.MaxGapError()))
		printField(out, "Max affine diff", fmt.Sprintf("%.3g mm", cmp.MaxDiff))
		ok = cmp.Consistent()
		if ok {
			printField(out, "Match", okStyle.Render("yes"))
		} else {
			printField(out, "Match", errStyle.Render("no"))
			a.log.Warn().Str("file", path).Str("dicom", dicomDir).Float64("max_diff", cmp.MaxDiff).Bool("shape_match", cmp.ShapeMatch).Msg("geometry differs from DICOM series")
		}
	}
	fmt.Fprintln(out)
	return ok, nil
}

func printAffine(w io.Writer, m mat.Matrix) {
	for i := 0; i < 3; i++ {
		fmt.Fprintf(w, "  [% 10.4f % 10.4f % 10.4f % 10.4f]\n", m.At(i, 0), m.At(i, 1), m.At(i, 2), m.At(i, 3))
	}
}

func joinInts(vals []int, sep string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, sep)
}

func (a *app) newPreviewCmd() *cobra.Command {
	var (
		out, axis, mask string
		slice, size     int
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Render one slice of a volume to PNG",
		Long: `preview writes a min-max windowed slice of FILE as PNG, scaled to its
physical aspect ratio and captioned with the file name. A label volume given
with --mask is blended on top.`,
		Example: "  spineprep preview case_0000.nii.gz --out case.png --axis sagittal --mask case_seg.nii.gz",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ax, err := preview.ParseAxis(axis)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("size") {
				size = a.cfg.Preview.Size
			}
			v, err := nifti.Load(args[0])
			if err != nil {
				return err
			}
			opts := preview.Options{
				Axis:    ax,
				Slice:   slice,
				Size:    size,
				Caption: filepath.Base(args[0]),
				Opacity: a.cfg.Preview.Opacity,
			}
			if mask != "" {
				if opts.Mask, err = nifti.Load(mask); err != nil {
					return fmt.Errorf("mask: %w", err)
				}
			}
			if err := preview.WritePNG(out, v, opts); err != nil {
				return err
			}
			a.log.Info().Str("file", args[0]).Str("axis", ax.String()).Str("out", out).Msg("preview written")
			fmt.Fprintf(a.stdout, "%s %s\n", okStyle.Render("✓"), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "PNG file to write")
	cmd.Flags().StringVar(&axis, "axis", "z", "slice axis: x, y, z (or sagittal, coronal, axial)")
	cmd.Flags().IntVar(&slice, "slice", -1, "slice index (default middle)")
	cmd.Flags().IntVar(&size, "size", 512, "longer image side in pixels")
	cmd.Flags().StringVar(&mask, "mask", "", "label volume blended over the slice")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
