package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"batchcursor/internal/daemonclient"
	"batchcursor/internal/observer"
	"batchcursor/internal/watchui"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var collection string
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow invocation progress live",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				runCtx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				stream, err := client.Events(runCtx)
				if err != nil {
					return err
				}
				go func() {
					<-runCtx.Done()
					_ = stream.Close()
				}()

				events := make(chan observer.Event, 16)
				go pumpEvents(runCtx, stream, events)

				out := cmd.OutOrStdout()
				if plain || !shouldColorize(out) {
					return printEvents(runCtx, out, events, strings.TrimSpace(collection))
				}

				program := tea.NewProgram(
					watchui.New(events, collection),
					tea.WithContext(runCtx),
					tea.WithOutput(out),
					tea.WithAltScreen(),
				)
				if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
					return fmt.Errorf("run dashboard: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "Only show collections whose key contains this text")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print one line per event instead of the dashboard")
	return cmd
}

// pumpEvents forwards stream events to ch and closes ch when the stream ends.
func pumpEvents(ctx context.Context, stream *daemonclient.EventStream, ch chan<- observer.Event) {
	defer close(ch)
	for {
		evt, err := stream.Next()
		if err != nil {
			return
		}
		select {
		case ch <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func printEvents(ctx context.Context, w io.Writer, events <-chan observer.Event, filter string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if filter != "" && !strings.Contains(evt.Collection, filter) {
				continue
			}
			fmt.Fprintln(w, formatEventLine(evt))
		}
	}
}

func formatEventLine(evt observer.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", evt.Collection, evt.Progress)
	if evt.ItemID != "" {
		b.WriteString(" " + evt.ItemID)
	}
	b.WriteString(" " + string(evt.Status))
	if n := len(evt.Skipped); n > 0 {
		fmt.Fprintf(&b, " skipped=%d", n)
	}
	if evt.BatchComplete {
		b.WriteString(" complete")
	}
	if evt.Error != "" {
		b.WriteString(" error=" + evt.Error)
	}
	return b.String()
}
