package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"batchcursor/internal/api"
	"batchcursor/internal/daemonclient"
)

const jobPollInterval = 200 * time.Millisecond

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage daemon-scheduled sequences",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsSubmitCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List retained jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				jobs, err := client.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobsResponse{Jobs: jobs})
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					progress := "-"
					if job.Last != nil && job.Last.Progress != "" {
						progress = job.Last.Progress
					}
					rows = append(rows, []string{
						job.Token,
						job.Collection,
						displayState(job.State),
						strconv.Itoa(job.Invocations),
						progress,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Token", "Collection", "State", "Invocations", "Progress"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var wait bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit <collection>",
		Short: "Schedule a sequence that the daemon drives until halt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			return ctx.withClient(func(client *daemonclient.Client) error {
				job, err := client.SubmitJob(cmd.Context(), flags.apiRequest(args[0]))
				if err != nil {
					return err
				}
				if wait {
					job, err = waitForJob(cmd.Context(), client, job.Token)
					if err != nil {
						return err
					}
				}
				if asJSON {
					return writeJSON(cmd, api.JobResponse{Job: *job})
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <token>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobResponse{Job: *job})
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <token>",
		Short: "Stop scheduling further invocations for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonclient.Client) error {
				job, err := client.CancelJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s canceled after %d invocations\n", job.Token, job.Invocations)
				return nil
			})
		},
	}
}

func jobFinished(state string) bool {
	switch state {
	case "completed", "failed", "canceled":
		return true
	default:
		return false
	}
}

func waitForJob(ctx context.Context, client *daemonclient.Client, token string) (*api.Job, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()
	for {
		job, err := client.Job(ctx, token)
		if err != nil {
			return nil, err
		}
		if jobFinished(job.State) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJob(w io.Writer, job *api.Job) {
	fmt.Fprintf(w, "Job %s\n", job.Token)
	fmt.Fprintf(w, "  collection:  %s\n", job.Collection)
	if job.Lane != "" {
		fmt.Fprintf(w, "  lane:        %s\n", job.Lane)
	}
	fmt.Fprintf(w, "  state:       %s\n", displayState(job.State))
	fmt.Fprintf(w, "  invocations: %d\n", job.Invocations)
	if job.Last != nil && job.Last.Progress != "" {
		fmt.Fprintf(w, "  progress:    %s\n", job.Last.Progress)
	}
	if job.Error != "" {
		fmt.Fprintf(w, "  error:       %s (%s)\n", job.Error, job.ErrorKind)
	}
}
