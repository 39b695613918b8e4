package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"batchcursor/internal/api"
	"batchcursor/internal/daemonclient"
)

func newInvokeCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var token string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "invoke <collection>",
		Short: "Process the next item of a collection on the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			return ctx.withClient(func(client *daemonclient.Client) error {
				req := flags.apiRequest(args[0])
				req.Token = token
				resp, err := client.Invoke(cmd.Context(), req)
				if resp == nil {
					return err
				}
				if asJSON {
					if writeErr := writeJSON(cmd, resp); writeErr != nil {
						return writeErr
					}
					return err
				}
				if err == nil {
					printInvokeResult(cmd.OutOrStdout(), resp.Result, shouldColorize(cmd.OutOrStdout()))
				}
				return err
			})
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&token, "token", "", "Token forwarded with the continuation signal")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the full response as JSON")
	return cmd
}

func printInvokeResult(w io.Writer, res api.InvokeResult, colorize bool) {
	item := res.ItemID
	if item == "" {
		item = "(no item)"
	}
	fmt.Fprintf(w, "%s  %s\n", res.Progress, item)
	if res.ItemPath != "" {
		fmt.Fprintf(w, "  path:    %s\n", res.ItemPath)
	}
	fmt.Fprintf(w, "  status:  %s\n", colorizeText(displayState(res.Status), recordStatusKind(res.Status), colorize))
	for _, skipped := range res.Skipped {
		fmt.Fprintln(w, colorizeText(fmt.Sprintf("  skipped: %s (offset %d): %s", skipped.ItemID, skipped.Offset, skipped.Reason), statusWarn, colorize))
	}
	if res.Signal != "" {
		fmt.Fprintf(w, "  signal:  %s\n", res.Signal)
	}
	if res.SignalError != "" {
		fmt.Fprintln(w, colorizeText("  signal error: "+res.SignalError, statusError, colorize))
	}
	if res.BatchComplete {
		fmt.Fprintln(w, colorizeText("  batch complete", statusOK, colorize))
	}
}
