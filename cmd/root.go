package cmd

import (
	"context"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/spf13/cobra"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/loggers/cli"
)

var (
	configPath = config.DefaultLocation
	debug      = false
)

// errSilentExit ends the process with a non-zero status after the command
// has already reported the problem itself.
var errSilentExit = errors.Sentinel("exit")

var rootCommand = &cobra.Command{
	Use:   "fwauth",
	Short: "Registers this application with the host firewall so it can receive inbound connections.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
		initLogging()
	},
	RunE:          authorizeCmdRun,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCommand.Execute(); err != nil {
		if !errors.Is(err, errSilentExit) {
			cli.WithError(log.Log, err).Error("command failed")
		}
		os.Exit(1)
	}
}

func init() {
	rootCommand.PersistentFlags().StringVar(&configPath, "config", config.DefaultLocation, "set the location for the configuration file")
	rootCommand.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run in debug mode")

	addAuthorizeFlags(rootCommand)

	rootCommand.AddCommand(newAuthorizeCommand())
	rootCommand.AddCommand(newCheckCommand())
	rootCommand.AddCommand(newHistoryCommand())
	rootCommand.AddCommand(newConfigCommand())
	rootCommand.AddCommand(newVersionCommand())
	rootCommand.AddCommand(newDiagnosticsCommand())
}

// Reads the configuration from the disk and then sets up the global singleton
// with all the configuration values.
func initConfig() {
	resolveConfigPath()
	if err := config.FromFileOrDefaults(configPath); err != nil {
		cli.WithError(log.WithField("path", configPath), err).Fatal("cmd/root: error while reading configuration file")
	}
	if debug && !config.Get().Debug {
		config.SetDebugViaFlag(debug)
	}
}

func resolveConfigPath() {
	if !filepath.IsAbs(configPath) {
		d, err := os.Getwd()
		if err != nil {
			log.WithError(err).Fatal("cmd/root: could not determine directory")
		}
		configPath = filepath.Clean(filepath.Join(d, configPath))
	}
}

// Configures the global apex logger to write to the terminal and to a rotated
// JSON log file in the configured log directory.
func initLogging() {
	log.SetLevel(log.InfoLevel)
	if config.Get().Debug {
		log.SetLevel(log.DebugLevel)
	}

	dir := config.Get().System.LogDirectory
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.SetHandler(cli.Default)
		log.WithError(err).WithField("path", dir).Warn("cmd/root: failed to create log directory, logging to the terminal only")
		return
	}
	p := filepath.Join(dir, "fwauth.log")
	w, err := logrotate.NewFile(p)
	if err != nil {
		log.SetHandler(cli.Default)
		log.WithError(err).WithField("path", p).Warn("cmd/root: failed to open log file, logging to the terminal only")
		return
	}
	log.SetHandler(multi.New(cli.Default, json.New(w)))
	log.WithField("path", p).Debug("writing log files to disk")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
