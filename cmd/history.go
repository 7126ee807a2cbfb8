package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/internal/database"
	"github.com/priyxstudio/fwauth/internal/history"
	"github.com/priyxstudio/fwauth/internal/models"
)

func newHistoryCommand() *cobra.Command {
	var limit int
	var asJSON bool
	command := &cobra.Command{
		Use:   "history",
		Short: "List recent authorization attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeDatabase()
			c := config.Get()
			if err := openDatabase(c); err != nil {
				return err
			}
			records, err := history.NewRecorder(database.Instance(), c.History.Retain).Recent(limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			printHistory(cmd, records)
			return nil
		},
	}
	command.Flags().IntVar(&limit, "limit", 10, "number of attempts to show")
	command.Flags().BoolVar(&asJSON, "json", false, "print the attempts as JSON")
	return command
}

func printHistory(cmd *cobra.Command, records []models.Authorization) {
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no authorization attempts recorded")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tBACKEND\tRULE\tRESULT\tSTAGE\tDURATION")
	for _, r := range records {
		result := "ok"
		if !r.Success {
			result = "failed " + r.Code
		} else if r.Replaced {
			result = "replaced"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(r.StartedAt),
			r.Backend,
			r.RuleName,
			result,
			r.Stage,
			time.Duration(r.DurationMs)*time.Millisecond,
		)
	}
	_ = w.Flush()
}
