package cmd

import (
	"context"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/internal/database"
	"github.com/priyxstudio/fwauth/internal/history"
	"github.com/priyxstudio/fwauth/system"
)

var authorizeArgs struct {
	Name       string
	Executable string
	Backend    string
}

func addAuthorizeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&authorizeArgs.Name, "name", "", "override the firewall rule name")
	cmd.Flags().StringVar(&authorizeArgs.Executable, "executable", "", "override the program the rule applies to")
	cmd.Flags().StringVar(&authorizeArgs.Backend, "backend", "", "override the firewall backend (auto, windows, sqlite, memory)")
}

func newAuthorizeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "authorize",
		Short: "Add or replace the inbound allow rule for this application",
		RunE:  authorizeCmdRun,
	}
	addAuthorizeFlags(command)
	return command
}

func authorizeCmdRun(cmd *cobra.Command, _ []string) error {
	applyAuthorizeFlags()
	defer closeDatabase()

	if !system.IsElevated() {
		log.Warn("process is not running elevated, the firewall may refuse changes")
	}
	ok, err := authorize(commandContext(cmd), config.Get())
	if err != nil {
		return err
	}
	if !ok {
		return errSilentExit
	}
	return nil
}

func applyAuthorizeFlags() {
	config.Update(func(c *config.Configuration) {
		if authorizeArgs.Name != "" {
			c.Rule.Name = authorizeArgs.Name
		}
		if authorizeArgs.Executable != "" {
			c.Rule.Executable = authorizeArgs.Executable
		}
		if authorizeArgs.Backend != "" {
			c.Backend = authorizeArgs.Backend
		}
	})
}

// authorize registers the configured application with the configured
// firewall backend. The returned error covers problems setting up the run;
// a failed authorization is reported through the boolean and the log.
func authorize(ctx context.Context, c *config.Configuration) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	path, err := c.ApplicationPath()
	if err != nil {
		return false, errors.WrapIf(err, "cmd: failed to resolve application path")
	}
	service, err := newService(c)
	if err != nil {
		return false, err
	}

	opts := []firewall.Option{
		firewall.WithLogger(log.WithField("component", "firewall")),
		firewall.WithTimeout(c.TimeoutDuration()),
	}
	if c.History.Enabled {
		if err := openDatabase(c); err != nil {
			log.WithError(err).Warn("history is enabled but the local database could not be opened")
		} else {
			opts = append(opts, firewall.WithObserver(history.NewRecorder(database.Instance(), c.History.Retain).Observe))
		}
	}

	return firewall.NewAuthorizer(service, c.RuleName(), path, opts...).Authorize(ctx), nil
}
