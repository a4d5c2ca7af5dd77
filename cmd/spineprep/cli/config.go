package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrsinham/spineprep/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or save the effective configuration",
		Long: `config resolves defaults, the --config file, .env files, SPINEPREP_*
variables and flags, then prints the result as YAML or writes it to --out.`,
		Example: "  SPINEPREP_WORKERS=8 spineprep config --out spineprep.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out != "" {
				if err := config.SaveToYAML(a.cfg, out); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s %s\n", okStyle.Render("✓"), out)
				return nil
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the configuration to this YAML file")
	return cmd
}
