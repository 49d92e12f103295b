package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/progress"
)

type runOptions struct {
	name       string
	iterations int
	interval   time.Duration
	series     string
	timeout    time.Duration
	parallel   int
	output     string
}

func runCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job in the foreground, logging progress until it finishes or is interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJobs(ctx, opts, slog.Default(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "pi", "Job name")
	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", 10, "Number of series terms to sum")
	cmd.Flags().DurationVar(&opts.interval, "interval", compute.DefaultInterval, "Pause between steps (0 disables it)")
	cmd.Flags().StringVar(&opts.series, "series", "leibniz", fmt.Sprintf("Series to sum %v", compute.SeriesNames()))
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Cancel the run after this long (0 means no limit)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 1, "Number of identical jobs to run concurrently")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Outcome format (text, json)")

	return cmd
}

// runJobs runs opts.parallel jobs sharing one cancellation signal and
// writes each outcome to out. Cancelled runs are not errors.
func runJobs(ctx context.Context, opts runOptions, logger *slog.Logger, out io.Writer) error {
	if opts.parallel < 1 {
		return errors.Errorf("--parallel must be at least 1, got %d", opts.parallel)
	}
	if opts.output != "text" && opts.output != "json" {
		return errors.Errorf("unknown output format %q", opts.output)
	}
	series, err := compute.SeriesByName(opts.series)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	job := compute.New(
		compute.WithSeries(series),
		compute.WithInterval(opts.interval),
		compute.WithSink(progress.NewLogSink(logger, slog.LevelInfo)),
		compute.WithLogger(logger),
	)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.parallel; i++ {
		name := opts.name
		if opts.parallel > 1 {
			name = fmt.Sprintf("%s-%d", opts.name, i+1)
		}
		g.Go(func() error {
			outcome, err := job.Run(ctx, compute.Request{Name: name, Iterations: opts.iterations})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return writeOutcome(out, opts.output, outcome)
		})
	}
	return g.Wait()
}

func writeOutcome(w io.Writer, format string, out compute.Outcome) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(out)
	}
	_, err := fmt.Fprintf(w, "%s: %s after %d/%d iterations, value %.10f, elapsed %s\n",
		out.JobName, out.State, out.IterationsCompleted, out.Iterations, out.FinalValue, out.Elapsed)
	return err
}
