package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hbuild/internal/app"
)

func newLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <unit>",
		Short: "Print recorded step output of a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			entries, err := service.UnitLogs(cmd.Context(), app.LogsRequest{Identity: args[0]})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range entries {
				if entry.Stage != "" {
					fmt.Fprintf(out, "--- [%s] %s\n", entry.Stage, entry.CreatedAt.Format(time.RFC3339))
				} else {
					fmt.Fprintf(out, "--- %s\n", entry.CreatedAt.Format(time.RFC3339))
				}
				fmt.Fprint(out, entry.Text)
				if !strings.HasSuffix(entry.Text, "\n") {
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}
}

type historyOptions struct {
	Limit int
}

func newHistoryCommand() *cobra.Command {
	opts := historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent runner jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			jobs, err := service.History(cmd.Context(), app.HistoryRequest{Limit: opts.Limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, job := range jobs {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n",
					job.ID, job.CreatedAt.Format(time.RFC3339), job.Runner, job.Status, strings.Join(job.Units, ","))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Number of jobs to show")
	return cmd
}
