package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/firewall"
)

func newCheckCommand() *cobra.Command {
	var backend string
	command := &cobra.Command{
		Use:   "check",
		Short: "Report whether the firewall rule for this application is registered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeDatabase()
			if backend != "" {
				config.Update(func(c *config.Configuration) { c.Backend = backend })
			}
			c := config.Get()
			service, err := newService(c)
			if err != nil {
				return err
			}
			ok, err := firewall.Exists(commandContext(cmd), service, c.RuleName())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "rule %q is not registered with the %s firewall\n", c.RuleName(), service.Name())
				return errSilentExit
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rule %q is registered with the %s firewall\n", c.RuleName(), service.Name())
			return nil
		},
	}
	command.Flags().StringVar(&backend, "backend", "", "override the firewall backend (auto, windows, sqlite, memory)")
	return command
}
