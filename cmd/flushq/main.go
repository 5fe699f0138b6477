package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"

	"flushq/internal/app"
	"flushq/internal/storage"
	"flushq/internal/wire"
	logx "flushq/pkg/logx"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "flushq",
		Short:         "In-process flush queue",
		Long:          "flushq queues payloads and hands them to configured commands in batches, retrying failures on the next flush.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(runCmd(), inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		cfgPath   string
		fromStdin bool
		drain     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}

			inputDone := make(chan error, 1)
			if fromStdin {
				go func() {
					_, err := a.EnqueueLines(ctx, os.Stdin)
					if err == nil {
						wctx, wcancel := context.WithTimeout(ctx, drain)
						err = a.Engine().Wait(wctx)
						wcancel()
					}
					inputDone <- err
				}()
			}

			reason := app.StopSignal
			var runErr error
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
				runErr = a.Err()
			case err := <-inputDone:
				reason = app.StopInputDone
				if err != nil && ctx.Err() == nil {
					runErr = fmt.Errorf("stdin: %w", err)
				}
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer stopCancel()
			if err := a.Stop(stopCtx, reason); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "enqueue each line of stdin, then exit once dispatched")
	cmd.Flags().DurationVar(&drain, "drain", 30*time.Second, "how long to wait for in-flight work after stdin closes")
	return cmd
}

func inspectCmd() *cobra.Command {
	var (
		driver string
		path   string
		state  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List journaled items",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storage.Open(storage.Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				return err
			}
			if st == nil {
				return storage.ErrDisabled
			}
			defer st.Close()

			recs, err := st.List(cmd.Context(), state)
			if err != nil {
				return err
			}
			return printRecords(recs, output)
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "file", "journal driver (file or sqlite)")
	cmd.Flags().StringVar(&path, "path", "./data/journal", "journal path")
	cmd.Flags().StringVar(&state, "state", "", "only show items in this state (pending, canceled, succeeded)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json, yaml)")
	return cmd
}

func printRecords(recs []wire.Record, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(recs)
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	if len(recs) == 0 {
		fmt.Println("No items journaled")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "State", "Submitted", "Completed", "Attempts", "Last Error")
	for _, r := range recs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Local().Format(time.DateTime)
		}
		table.Append(
			r.ID,
			r.State,
			r.SubmittedAt.Local().Format(time.DateTime),
			completed,
			strconv.Itoa(len(r.Attempts)),
			truncate(r.LastError(), 60),
		)
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("\nTotal items: %d\n", len(recs))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
