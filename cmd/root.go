package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/wikictl/internal/config"
	"github.com/zjrosen/wikictl/internal/flags"
	"github.com/zjrosen/wikictl/internal/log"
)

var (
	version = "dev"
	cfgFile string
	verbose bool
	debug   bool
	stopLog func()

	// cfg, cfgPath and featureFlags are filled by setup before any command
	// runs.
	cfg          config.Config
	cfgPath      string
	featureFlags *flags.Registry
)

var rootCmd = &cobra.Command{
	Use:   "wikictl",
	Short: "A command line client for MediaWiki sites",
	Long: `wikictl reads, edits, moves, deletes and uploads pages on MediaWiki sites
through the action API.

Commands that take several titles run each one in turn. Pass "-" as the only
argument to read one title per line from stdin. Ctrl+C stops the stream; the
record in flight is abandoned and nothing is printed for it.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .wikictl/config.yaml or ~/.config/wikictl/config.yaml)")
	pf.StringP("profile", "p", "", "saved session to use")
	pf.StringP("endpoint", "e", "", "api.php URL, overriding the profile's endpoint")
	pf.StringP("output", "o", "", "output format: text, json or yaml")
	pf.BoolVar(&debug, "debug", false, "write a debug log (path from WIKICTL_LOG, default debug.log)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "print progress to stderr")
}

// newViper binds the root flags so they override file and env values.
func newViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	for _, key := range []string{"profile", "endpoint", "output"} {
		if f := cmd.Flags().Lookup(key); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
	return v
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := initLogging(); err != nil {
		return err
	}

	loaded, path, err := config.Load(newViper(cmd), cfgFile)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	cfg, cfgPath = loaded, path
	featureFlags = flags.New(cfg.Flags)
	for _, name := range featureFlags.Unknown() {
		log.Warn(log.CatConfig, "Ignoring unknown feature flag", "flag", name, "config", path)
	}
	return nil
}

// initLogging installs the logger for this run: the debug log file when
// --debug or WIKICTL_DEBUG is set, and a stderr echo of info and above when
// --verbose is set.
func initLogging() error {
	if stopLog != nil {
		stopLog()
		stopLog = nil
	}
	if !debug && os.Getenv("WIKICTL_DEBUG") != "" {
		debug = true
	}
	if !debug && !verbose {
		return nil
	}

	opts := log.Options{MinLevel: log.LevelInfo}
	if debug {
		level, err := log.ParseLevel(os.Getenv("WIKICTL_LOG_LEVEL"))
		if err != nil {
			return fmt.Errorf("WIKICTL_LOG_LEVEL: %w", err)
		}
		opts.Path = cmp.Or(os.Getenv("WIKICTL_LOG"), "debug.log")
		opts.MinLevel = level
	}
	closeLog, err := log.Setup(opts)
	if err != nil {
		return err
	}
	stopLog = closeLog

	if verbose {
		if listener := log.NewListener(context.Background()); listener != nil {
			go listener.Forward(os.Stderr)
		}
	}
	return nil
}

// exitError carries a process exit code. Its message has already been
// reported when silent is set.
type exitError struct {
	code   int
	msg    string
	silent bool
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}

// Execute runs the root command and reports errors that were not already
// printed.
func Execute() error {
	err := rootCmd.Execute()
	if stopLog != nil {
		stopLog()
	}
	var exit *exitError
	if err != nil && !(errors.As(err, &exit) && exit.silent) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
