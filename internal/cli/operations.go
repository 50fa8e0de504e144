package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hbuild/internal/app"
)

type operationFunc func(ctx context.Context, service *app.Service, req app.OperationRequest) (app.OperationResult, error)

// newOperationCommand builds one of the per-unit operation commands. They
// all take the selection as positional arguments.
func newOperationCommand(use string, short string, run operationFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [unit...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			result, err := run(cmd.Context(), service, app.OperationRequest{Selection: args})
			printOrder(cmd, use, result)
			return err
		},
	}
}

func newBuildCommand() *cobra.Command {
	return newOperationCommand("build", "Build units and everything they depend on",
		func(ctx context.Context, s *app.Service, req app.OperationRequest) (app.OperationResult, error) {
			return s.Build(ctx, req)
		})
}

func newInstallCommand() *cobra.Command {
	return newOperationCommand("install", "Merge built units into the system root or prefix",
		func(ctx context.Context, s *app.Service, req app.OperationRequest) (app.OperationResult, error) {
			return s.Install(ctx, req)
		})
}

func newCleanCommand() *cobra.Command {
	return newOperationCommand("clean", "Remove unit output and forget their state",
		func(ctx context.Context, s *app.Service, req app.OperationRequest) (app.OperationResult, error) {
			return s.Clean(ctx, req)
		})
}

func newUnbuildCommand() *cobra.Command {
	return newOperationCommand("unbuild", "Move units one state down without touching files",
		func(ctx context.Context, s *app.Service, req app.OperationRequest) (app.OperationResult, error) {
			return s.Unbuild(ctx, req)
		})
}

func newPackageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "package [unit...]",
		Short: "Emit .deb archives for built packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			result, err := service.Package(cmd.Context(), app.OperationRequest{Selection: args})
			printOrder(cmd, "package", result.OperationResult)
			for _, deb := range result.Debs {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", deb)
			}
			return err
		},
	}
}

type showOptions struct {
	DOT bool
}

func newShowCommand() *cobra.Command {
	opts := showOptions{}
	cmd := &cobra.Command{
		Use:   "show [unit...]",
		Short: "Print the resolved dependency tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newAppService(cmd.Context())
			if err != nil {
				return err
			}
			defer service.Close()
			_, err = service.Show(cmd.Context(), app.ShowRequest{
				Selection: args,
				DOT:       opts.DOT,
				Out:       cmd.OutOrStdout(),
			})
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.DOT, "dot", false, "Print the graph in DOT format")
	return cmd
}

func printOrder(cmd *cobra.Command, op string, result app.OperationResult) {
	if len(result.Order) == 0 && len(result.Skipped) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s order: %s\n", op, strings.Join(result.Order, ", "))
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "already installed: %s\n", strings.Join(result.Skipped, ", "))
	}
}
