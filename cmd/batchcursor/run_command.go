package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	ossignal "os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"batchcursor/internal/api"
	"batchcursor/internal/engine"
	"batchcursor/internal/iteration"
	"batchcursor/internal/logging"
	"batchcursor/internal/preflight"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/signal"
)

// runSummary is the --json output of run.
type runSummary struct {
	Token       string            `json:"token"`
	Invocations int               `json:"invocations"`
	Processed   int               `json:"processed"`
	Skipped     int               `json:"skipped"`
	Completed   bool              `json:"completed"`
	ElapsedMs   float64           `json:"elapsedMs"`
	Last        *api.InvokeResult `json:"last,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"errorKind,omitempty"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var maxInvocations int
	var asJSON bool
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run <collection>",
		Short: "Walk a collection in-process until the batch completes or halts",
		Long: "Run drives the iteration engine locally, re-invoking it while it signals continue.\n" +
			"The collection is a directory of images or a .yaml/.json manifest.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.validate(); err != nil {
				return err
			}

			signalCtx, cancel := ossignal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer cancel()

			stdout := cmd.OutOrStdout()
			stderr := cmd.ErrOrStderr()
			if !skipPreflight {
				results := preflight.RunAll(signalCtx, cfg, args[0])
				if preflight.Failed(results) {
					printPreflightResults(stderr, results, shouldColorize(stderr))
					return errors.New("preflight checks failed (use --skip-preflight to bypass)")
				}
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Writer: stderr,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			local := signal.NewLocalSignal(8)
			eng, err := engine.Build(signalCtx, cfg, engine.Options{
				Logger:  logger,
				Signals: []signal.Signal{local},
			})
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())

			colorize := shouldColorize(stdout)
			loopOpts := []scheduler.LoopOption{
				scheduler.WithRate(cfg.Iteration.MaxRate),
				scheduler.WithMaxInvocations(maxInvocations),
				scheduler.WithLoopLogger(logger),
			}
			if !asJSON {
				loopOpts = append(loopOpts, scheduler.WithResultHook(func(res iteration.Result) {
					fmt.Fprintln(stdout, formatResultLine(res, colorize))
				}))
			}
			loop := scheduler.NewLoop(eng, local, loopOpts...)

			req := engine.DefaultRequest(cfg, flags.request(args[0]))
			summary, runErr := loop.Run(signalCtx, req)
			limited := errors.Is(runErr, scheduler.ErrInvocationLimit)
			if limited {
				runErr = nil
			}

			if asJSON {
				out := runSummary{
					Token:       summary.Token,
					Invocations: summary.Invocations,
					Processed:   summary.Processed,
					Skipped:     summary.Skipped,
					Completed:   summary.Completed,
					ElapsedMs:   float64(summary.Elapsed.Microseconds()) / 1000,
				}
				if summary.Last != nil {
					last := api.FromResult(*summary.Last)
					out.Last = &last
				}
				if runErr != nil {
					out.Error = runErr.Error()
					out.ErrorKind = iteration.Kind(runErr)
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
				return runErr
			}

			if runErr != nil {
				return runErr
			}
			switch {
			case summary.Completed:
				fmt.Fprintln(stdout, colorizeText(fmt.Sprintf("Batch complete: %d processed, %d skipped", summary.Processed, summary.Skipped), statusOK, colorize))
			case limited:
				fmt.Fprintf(stdout, "Stopped after %d invocations; rerun to continue\n", summary.Invocations)
			default:
				fmt.Fprintf(stdout, "Halted after %d invocations\n", summary.Invocations)
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().IntVar(&maxInvocations, "max-invocations", 0, "Stop after this many invocations (0 = no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON summary instead of per-item lines")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip environment checks before running")
	return cmd
}

func formatResultLine(res iteration.Result, colorize bool) string {
	var b strings.Builder
	if res.Item != nil {
		fmt.Fprintf(&b, "%-18s %s", res.Progress, res.Item.ID)
	} else {
		fmt.Fprintf(&b, "%-18s %s", res.Progress, "(no item)")
	}
	if n := len(res.Skipped); n > 0 {
		b.WriteString(colorizeText(fmt.Sprintf("  skipped %d", n), statusWarn, colorize))
	}
	if res.BatchComplete {
		b.WriteString(colorizeText("  done", statusOK, colorize))
	}
	if res.SignalError != "" {
		b.WriteString(colorizeText("  signal failed: "+res.SignalError, statusError, colorize))
	}
	return b.String()
}

func printPreflightResults(w io.Writer, results []preflight.Result, colorize bool) {
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		fmt.Fprintln(w, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
}
