package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mediaforge/internal/api"
	"mediaforge/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the worker pool and HTTP API in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker pool, and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			stdout := cmd.OutOrStdout()
			printDaemonStatus(stdout, status, shouldColorize(stdout))
			return nil
		},
	}
}

func printDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	section := func(title string) {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(out, line)
		}
	}

	section("System")
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", "OK", fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", "ERROR", "Not running", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Database", "INFO", status.DatabasePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock", "INFO", status.LockFilePath, colorize))
	for _, check := range status.Checks {
		state := "OK"
		if !check.Passed {
			state = "ERROR"
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, state, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	section("Workers")
	poolState := "WARN"
	poolDetail := "Stopped"
	if status.Pool.Running {
		poolState = "OK"
		poolDetail = fmt.Sprintf("%d/%d busy, %d executed", status.Pool.Busy, status.Pool.Workers, status.Pool.Executed)
	}
	fmt.Fprintln(out, renderStatusLine("Pool", poolState, poolDetail, colorize))
	if strings.TrimSpace(status.Pool.LastError) != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", "WARN", status.Pool.LastError, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Dispatch", "INFO",
		fmt.Sprintf("%s (%d queued, %d claimed)", status.Queue.Backend, status.Queue.Queued, status.Queue.Claimed), colorize))
	fmt.Fprintln(out)

	section("Dependencies")
	for _, dep := range status.Dependencies {
		if dep.Available {
			fmt.Fprintln(out, renderStatusLine(dep.Name, "OK", "Ready (command: "+dep.Command+")", colorize))
			continue
		}
		detail := dep.Detail
		if detail == "" {
			detail = "not available"
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, "ERROR", detail, colorize))
	}
	fmt.Fprintln(out)

	section("Jobs")
	rows := make([][]string, 0, len(status.Jobs))
	for _, count := range status.Jobs {
		rows = append(rows, []string{statusLabel(count.Status), fmt.Sprintf("%d", count.Count)})
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}
