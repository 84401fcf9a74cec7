// rustify profiles a Python script, translates its hot numeric functions to
// Rust/PyO3 and builds them into an extension module importable from Python.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/config"
	"github.com/phobologic/rustify/internal/logging"
	"github.com/phobologic/rustify/internal/report"
)

var version = "dev"

const (
	formatTable = "table"
	formatTOON  = "toon"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	verbose    int
	color      string
	configPath string

	cfg config.Config
	log *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "rustify",
		Short: "Accelerate Python numeric hotspots with generated Rust",
		Long: `rustify profiles a Python script, picks the functions that dominate its
runtime and translates them into a Rust/PyO3 extension module built with
maturin. Untranslatable constructs are reported, never silently dropped.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup() },
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.log.Sync() },
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("rustify {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.CountVarP(&a.verbose, "verbose", "v", "increase log verbosity (-v, -vv)")
	pf.StringVar(&a.color, "color", "auto", "colorize output (auto|on|off)")
	pf.StringVar(&a.configPath, "config", "", "config file (default ./"+config.FileName+" when present)")

	root.AddCommand(newAccelerateCmd(a))
	root.AddCommand(newScanCmd(a))
	root.AddCommand(newInitCmd(a))
	return root
}

func (a *app) setup() error {
	if _, err := report.UseColor(a.color, a.stdout); err != nil {
		return err
	}
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
	} else {
		a.cfg, err = config.Find(".")
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.log = logging.New(a.verbose, a.stderr)
	if a.cfg.Path != "" {
		a.log.Debug("loaded config", zap.String("path", a.cfg.Path))
	}
	return nil
}

func (a *app) printer() *report.Printer {
	useColor, _ := report.UseColor(a.color, a.stdout)
	return report.New(a.stdout, useColor)
}

// quietFor drops info logging for TOON output unless -v was given.
func (a *app) quietFor(format string) {
	if format == formatTOON && a.verbose == 0 {
		a.log = logging.Quiet(a.stderr)
	}
}

func checkFormat(format string) error {
	if format != formatTable && format != formatTOON {
		return fmt.Errorf("invalid --format %q (want %s or %s)", format, formatTable, formatTOON)
	}
	return nil
}
