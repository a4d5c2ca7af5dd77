// Package cli implements the spineprep command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mrsinham/spineprep/internal/config"
	"github.com/mrsinham/spineprep/internal/logging"
)

// errReported marks an error whose message was already printed.
var errReported = errors.New("reported")

// app is the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	verbose    int
	quiet      bool

	cfg      *config.Config
	log      zerolog.Logger
	closeLog io.Closer
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, version string, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	root := a.newRootCmd(version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.closeLog != nil {
		_ = a.closeLog.Close()
	}
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "spineprep",
		Short: "Prepare spine MRI segmentation datasets",
		Long: `spineprep repairs channel geometry in nnU-Net datasets, converts flat
image/label folders to BIDS and maintains the label taxonomy files used
for training.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (.yaml, .yml or .toml)")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "", "log format: auto, console, json")
	pf.String("log-file", "", "also write JSON logs to this file (rotated)")
	pf.CountVarP(&a.verbose, "verbose", "v", "more logging (repeatable)")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "only log errors")

	root.AddCommand(
		a.newFixMetadataCmd(),
		a.newVerifyCmd(),
		a.newConvertCmd(),
		a.newLabelsCmd(),
		a.newInspectCmd(),
		a.newPreviewCmd(),
		a.newConfigCmd(),
	)
	return root
}

// flagKeys maps flag names to config keys. Flags are bound only when the
// running command defines them.
var flagKeys = map[string]string{
	"log-level":   config.KeyLogLevel,
	"log-format":  config.KeyLogFormat,
	"log-file":    config.KeyLogFile,
	"max-workers": config.KeyWorkers,
	"resources":   config.KeyResources,
}

// setup resolves configuration (defaults, file, .env, SPINEPREP_* and flags)
// and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	config.LoadEnvFiles(".env", ".env.local")

	cfg := config.DefaultConfig()
	if a.configFile != "" {
		loaded, err := config.Load(a.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	v := cfg.NewViper()
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return bindErr
	}
	if err := cfg.Merge(v); err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("no-backup"); f != nil && f.Changed {
		cfg.Backup = false
	}

	cfg.Log.Level = logging.Verbosity(cfg.Log.Level, a.verbose, a.quiet)
	a.log, a.closeLog = logging.New(cfg.Log, a.stderr)
	a.cfg = cfg

	a.log.Debug().Str("config", a.configFile).Int("workers", cfg.Workers).Bool("backup", cfg.Backup).Msg("configuration resolved")
	return nil
}

// fail prints a one-line error in the command's style and returns an error
// that Run will not print again.
func (a *app) fail(format string, args ...any) error {
	fmt.Fprintf(a.stderr, "%s %s\n", errStyle.Render("Error:"), fmt.Sprintf(format, args...))
	return errReported
}
