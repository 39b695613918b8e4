package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"batchcursor/internal/api"
	"batchcursor/internal/daemonclient"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"cursors"},
		Short:   "List stored cursors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				records, err := client.Records(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.RecordsResponse{Records: records})
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No cursors stored")
					return nil
				}
				fmt.Fprintln(out, renderRecordsTable(records, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [collection]",
		Short: "Reset a collection's cursor, or every cursor with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ResetRequest{All: all}
			if len(args) == 1 {
				req.Collection = strings.TrimSpace(args[0])
			}
			switch {
			case all && req.Collection != "":
				return errors.New("pass either a collection or --all, not both")
			case !all && req.Collection == "":
				return errors.New("a collection is required (or pass --all)")
			}
			return ctx.withClient(func(client *daemonclient.Client) error {
				resp, err := client.Reset(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.All {
					fmt.Fprintln(out, "All cursors cleared")
					return nil
				}
				if resp.Record != nil {
					fmt.Fprintf(out, "Reset %s (offset %d, %s)\n", resp.Record.Collection, resp.Record.Offset, displayState(resp.Record.Status))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Clear every stored cursor")
	return cmd
}
