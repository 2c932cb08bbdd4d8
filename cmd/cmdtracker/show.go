package main

import (
	"github.com/spf13/cobra"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <command-id>",
		Short: "Show a recorded command run and its attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			run, err := t.Storage().GetCommandRun(ctx, args[0])
			if err != nil {
				return err
			}
			attempts, err := t.Storage().GetAttempts(ctx, run.ID)
			if err != nil {
				return err
			}
			printCommandRun(cmd.OutOrStdout(), run, attempts)
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the task tree of a submitted job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			info, err := t.JobMaster().Status(ctx, args[0])
			if err != nil {
				return err
			}
			printJobInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func newCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a submitted job and its unfinished tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			if err := t.JobMaster().Cancel(ctx, args[0]); err != nil {
				return err
			}
			printCancelled(cmd.OutOrStdout(), args[0])
			return nil
		},
	}
}
