package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/priyxstudio/fwauth/system"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the current executable version and host information",
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s v%s\n", system.ShortName, system.Version)
			info, err := system.GetSystemInformation()
			if err != nil {
				fmt.Fprintln(out, color.YellowString("host information unavailable: %s", err))
				return
			}
			fmt.Fprintf(out, "%s %s (%s, kernel %s)\n", info.OSType, info.OS, info.Architecture, info.KernelVersion)
			if !system.IsElevated() {
				fmt.Fprintln(out, color.YellowString("not running elevated"))
			}
		},
	}
}
