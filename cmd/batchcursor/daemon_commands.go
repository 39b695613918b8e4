package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"batchcursor/internal/api"
	"batchcursor/internal/daemonclient"
	"batchcursor/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the batchcursor daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				exe, err := daemonExecutable()
				if err != nil {
					return err
				}
				result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx, startLogLevel), 10*time.Second)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				switch result.State {
				case daemonctl.StartStateAlreadyRunning:
					fmt.Fprintln(stdout, "Daemon already running")
				default:
					fmt.Fprintf(stdout, "Daemon started (pid %d) at %s\n", result.PID, client.BaseURL())
				}
				return nil
			})
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Log level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the batchcursor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				stdout := cmd.OutOrStdout()
				result, err := daemonctl.StopAndTerminate(cmd.Context(), client, ctx.configValue(), 5*time.Second)
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				if err != nil {
					return err
				}
				if result.ForcedKill {
					fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
				return nil
			})
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the batchcursor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				stdout := cmd.OutOrStdout()
				exe, err := daemonExecutable()
				if err != nil {
					return err
				}
				if _, err := daemonctl.StopAndTerminate(cmd.Context(), client, ctx.configValue(), 5*time.Second); err != nil && !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					return err
				}
				result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx, restartLogLevel), 10*time.Second)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.PID)
				return nil
			})
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Log level for the launched daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and stored cursors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				records, err := client.Records(cmd.Context())
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, struct {
						Daemon  *api.DaemonStatus `json:"daemon"`
						Records []api.Record      `json:"records"`
					}{status, records})
				}
				renderDaemonStatus(cmd, client.BaseURL(), status, records)
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderDaemonStatus(cmd *cobra.Command, baseURL string, status *api.DaemonStatus, records []api.Record) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	runKind := statusError
	if status.Running {
		runKind = statusOK
	}
	fmt.Fprintln(stdout, renderStatusLine("Running", runKind, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	fmt.Fprintln(stdout, renderStatusLine("API", statusInfo, baseURL, colorize))
	fmt.Fprintln(stdout, renderStatusLine("State backend", statusInfo, status.StateBackend, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Step", statusInfo, status.Step, colorize))
	schedulerKind := statusWarn
	if status.SchedulerConfigured {
		schedulerKind = statusOK
	}
	fmt.Fprintln(stdout, renderStatusLine("Scheduler signal", schedulerKind, yesNo(status.SchedulerConfigured), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Tracing", statusInfo, yesNo(status.TracingEnabled), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Event clients", statusInfo, strconv.Itoa(status.EventClients), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))
	if status.Latency.Count > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Latency", statusInfo, fmt.Sprintf("n=%d p50=%.1fms p90=%.1fms p99=%.1fms max=%.1fms",
			status.Latency.Count, status.Latency.P50, status.Latency.P90, status.Latency.P99, status.Latency.Max), colorize))
	}
	fmt.Fprintln(stdout)

	if len(status.Jobs) > 0 {
		for _, line := range renderSectionHeader("Jobs", colorize) {
			fmt.Fprintln(stdout, line)
		}
		states := make([]string, 0, len(status.Jobs))
		for jobState := range status.Jobs {
			states = append(states, jobState)
		}
		sort.Strings(states)
		rows := make([][]string, 0, len(states))
		for _, jobState := range states {
			rows = append(rows, []string{displayState(jobState), strconv.Itoa(status.Jobs[jobState])})
		}
		fmt.Fprintln(stdout, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
		fmt.Fprintln(stdout)
	}

	for _, line := range renderSectionHeader("Cursors", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "No cursors stored")
		return
	}
	fmt.Fprintln(stdout, renderRecordsTable(records, colorize))
}

func renderRecordsTable(records []api.Record, colorize bool) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Collection,
			strconv.Itoa(rec.Offset),
			strconv.Itoa(rec.Total),
			colorizeText(displayState(rec.Status), recordStatusKind(rec.Status), colorize),
			rec.UpdatedAt,
		})
	}
	return renderTable(
		[]string{"Collection", "Offset", "Total", "Status", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configFlagValue(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
}
