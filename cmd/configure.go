package cmd

import (
	"fmt"
	"os"

	"emperror.dev/errors"
	"github.com/spf13/cobra"

	"github.com/priyxstudio/fwauth/config"
)

func newConfigCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the configuration file",
		// Only the path is needed, an invalid file must still be fixable.
		PersistentPreRun: func(*cobra.Command, []string) {
			resolveConfigPath()
		},
	}
	var force bool
	initCommand := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file holding the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := writeDefaultConfig(configPath, force, debug); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", configPath)
			return nil
		},
	}
	initCommand.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	command.AddCommand(initCommand)

	command.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a dotted configuration key, for example rule.name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SetValue(configPath, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s in %s\n", args[0], configPath)
			return nil
		},
	})
	command.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the location of the configuration file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath)
		},
	})
	return command
}

// writeDefaultConfig stores the defaults at path and makes them the active
// configuration. A debug flag passed on the command line is not persisted.
func writeDefaultConfig(path string, force, debugFlag bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Errorf("cmd: %s already exists, pass --force to overwrite it", path)
	}
	c, err := config.NewAtPath(path)
	if err != nil {
		return err
	}
	config.Set(c)
	if debugFlag {
		config.SetDebugViaFlag(debugFlag)
	}
	return config.WriteToDisk(config.Get())
}
