package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/internal/database"
	"github.com/priyxstudio/fwauth/internal/diagnostics"
	"github.com/priyxstudio/fwauth/loggers/cli"
)

var diagnosticsArgs struct {
	IncludeLogs bool
	Yes         bool
	LogLines    int
	History     int
}

func newDiagnosticsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "diagnostics",
		Short: "Collect information about this host and its firewall registration to assist in debugging.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
			log.SetHandler(cli.Default)
		},
		RunE: diagnosticsCmdRun,
	}

	command.Flags().BoolVarP(&diagnosticsArgs.Yes, "yes", "y", false, "do not prompt, include the latest logs")
	command.Flags().IntVar(&diagnosticsArgs.LogLines, "log-lines", diagnostics.DefaultLogLines, "the number of log lines to include in the report")
	command.Flags().IntVar(&diagnosticsArgs.History, "history", 10, "the number of authorization attempts to include in the report")

	return command
}

func diagnosticsCmdRun(cmd *cobra.Command, _ []string) error {
	defer closeDatabase()

	diagnosticsArgs.IncludeLogs = true
	if !diagnosticsArgs.Yes {
		err := huh.NewConfirm().
			Title("Do you want to include the latest logs?").
			Description("The logs contain executable paths and host names, review them before sharing the report.").
			Value(&diagnosticsArgs.IncludeLogs).
			Run()
		if err != nil {
			if err == huh.ErrUserAborted {
				return nil
			}
			return err
		}
	}

	c := config.Get()
	service, err := newService(c)
	if err != nil {
		return err
	}
	var db *gorm.DB
	if err := openDatabase(c); err != nil {
		log.WithError(err).Warn("local database unavailable, the report will not include history")
	} else {
		db = database.Instance()
	}

	report := diagnostics.Generate(commandContext(cmd), c, service, db, diagnostics.Options{
		IncludeLogs:  diagnosticsArgs.IncludeLogs,
		LogLines:     diagnosticsArgs.LogLines,
		HistoryLimit: diagnosticsArgs.History,
	})

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n---------------  generated report  ---------------")
	fmt.Fprintln(out, report)
	fmt.Fprint(out, "---------------   end of report    ---------------\n\n")
	return nil
}
