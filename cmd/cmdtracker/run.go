package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	tracker "github.com/jdziat/durable-cmd-tracker"
)

var errCommandsFailed = errors.New("one or more commands did not complete")

func newRunCmd(a *app) *cobra.Command {
	var (
		file    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the commands of a YAML file and print their results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := tracker.LoadCommands(file)
			if err != nil {
				return err
			}
			if len(cmds) == 0 {
				return fmt.Errorf("no commands in %s", file)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			results, err := runCommands(ctx, a, cmds)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), results)
			for _, res := range results {
				if !res.Succeeded() {
					return errCommandsFailed
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "commands.yaml", "YAML file listing the commands")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel commands still running after this long")
	return cmd
}

// runCommands starts an embedded tracker and runs cmds one after another.
func runCommands(ctx context.Context, a *app, cmds []tracker.CmdConfig) ([]*tracker.Result, error) {
	t, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		cancel()
		t.Wait()
	}()
	if err := t.Start(workerCtx); err != nil {
		return nil, err
	}

	results := make([]*tracker.Result, 0, len(cmds))
	for _, c := range cmds {
		res, err := t.Run(ctx, c)
		if err != nil {
			return results, fmt.Errorf("%s: %w", c.Name(), err)
		}
		results = append(results, res)
	}
	return results, nil
}
