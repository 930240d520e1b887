package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DB         string // sqlite path override
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the laundrysync CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "laundrysync",
		Short: "laundrysync - offline-first sync server for laundry outlets",
		Long: "Serves the device sync protocol (push, pull, invoice range claims) " +
			"and the operator commands around it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return commandError(KindUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return commandError(KindUsage, err.Error(), nil)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "sqlite database path (overrides config)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewFeedCommand(opts))
	cmd.AddCommand(NewQuotaCommand(opts))

	return cmd, opts
}

// Execute runs the CLI with args, prints any failure in the selected
// output format and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	ee := asExitError(err)
	format := opts.Format
	if !isValidFormat(format) {
		format = "text"
	}
	printer := &Printer{Format: format, Out: stdout, Diag: stderr, Verbose: opts.Verbose}
	if perr := printer.Failure(ee); perr != nil {
		fmt.Fprintln(stderr, ee)
	}
	return ee.Code
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
