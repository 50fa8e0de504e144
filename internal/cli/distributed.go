package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hbuild/internal/app"
)

func newSubmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit [unit...]",
		Short: "Ask the coordinator to build units",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			if err := service.Submit(cmd.Context(), app.SubmitRequest{Selection: args}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "submitted")
			return nil
		},
	}
}

type dispatchOptions struct {
	MaxMessages int
}

func newDispatchCommand() *cobra.Command {
	opts := dispatchOptions{}
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run the coordinator that turns build requests into ordered jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			return service.Dispatch(cmd.Context(), app.DispatchRequest{MaxMessages: opts.MaxMessages})
		},
	}
	cmd.Flags().IntVar(&opts.MaxMessages, "max-messages", 0, "Stop after this many messages (0 runs forever)")
	return cmd
}

type runnerOptions struct {
	Name        string
	MaxMessages int
}

func newRunnerCommand() *cobra.Command {
	opts := runnerOptions{}
	cmd := &cobra.Command{
		Use:   "runner",
		Short: "Run a worker that executes dispatched build orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			return service.Runner(cmd.Context(), app.RunnerRequest{
				Name:        resolveString(cmd, opts.Name, "runner.name", "name"),
				MaxMessages: opts.MaxMessages,
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "Runner name recorded in history (defaults to the host name)")
	cmd.Flags().IntVar(&opts.MaxMessages, "max-messages", 0, "Stop after this many messages (0 runs forever)")
	_ = viper.BindPFlag("runner.name", cmd.Flags().Lookup("name"))
	return cmd
}
