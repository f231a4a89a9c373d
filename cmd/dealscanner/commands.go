package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"DealScanner/internal/app"
	"DealScanner/internal/config"
	"DealScanner/internal/logging"
)

func newApplication(cmd *cobra.Command) (*app.Application, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format))
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the worker pool and the enqueue schedule; stops on SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return application.Run(ctx)
		},
	}
}

func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue [source...]",
		Short: "Submit ingestion jobs for the given sources, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			jobs, stats, err := application.Enqueue(cmd.Context(), args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, job := range jobs {
				fmt.Fprintf(out, "enqueued %s (%s)\n", job.SourceKey, job.ID)
			}
			fmt.Fprintf(out, "queue: %d queued, %d in flight, %d dead\n", stats.Queued, stats.InFlight, stats.Dead)
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <source>",
		Short: "Run one ingestion job synchronously and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := application.Ingest(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTYPE\tTARGET")
			for _, s := range application.Sources() {
				target := s.Config.FeedURL
				if s.Config.FetcherRef != "" {
					target = s.Config.FetcherRef + " " + target
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.Type, target)
			}
			return w.Flush()
		},
	}
}
