package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"batchcursor/internal/api"
	"batchcursor/internal/daemonclient"
	"batchcursor/internal/logging"
)

const logPageSize = 200

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var component string
	var collection string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				return streamLogs(cmd, client, daemonclient.LogQuery{
					Limit:      lines,
					Tail:       true,
					Component:  strings.TrimSpace(component),
					Collection: strings.TrimSpace(collection),
				}, follow)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for the whole buffer)")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	cmd.Flags().StringVar(&collection, "collection", "", "Only show events for this collection")
	return cmd
}

func streamLogs(cmd *cobra.Command, client *daemonclient.Client, query daemonclient.LogQuery, follow bool) error {
	ctx := cmd.Context()
	if query.Limit <= 0 {
		query.Limit = logPageSize
	}
	out := cmd.OutOrStdout()
	printed := false
	for {
		resp, err := client.Logs(ctx, query)
		if err != nil {
			if follow && errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(out, formatLogEvent(evt))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		query.Since = resp.Next
		query.Limit = logPageSize
		query.Tail = false
		query.Follow = true
	}
}

func formatLogEvent(evt api.LogEvent) string {
	ts := evt.Timestamp
	if parsed, err := time.Parse(time.RFC3339Nano, evt.Timestamp); err == nil {
		ts = parsed.Local().Format("2006-01-02 15:04:05")
	}
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	line := strings.Join(parts, " ")
	if subject := logging.FormatSubject(evt.Collection, evt.Lane); subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(line)
	for _, key := range keys {
		value := strings.TrimSpace(evt.Fields[key])
		if value == "" {
			continue
		}
		b.WriteString("\n    - ")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}
