package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rezkam/chronoqueue/queue"
)

func runFailed(ctx context.Context, backend queue.Backend, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("failed: expected a subcommand (list, retry, forget)")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "list":
		return failedList(ctx, backend)
	case "retry":
		return failedRetry(ctx, backend, rest)
	case "forget":
		return failedForget(ctx, backend, rest)
	default:
		return fmt.Errorf("failed: unknown subcommand %q", sub)
	}
}

func failedList(ctx context.Context, backend queue.Backend) error {
	records, err := backend.FailedJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed list: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no failed jobs")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tQUEUE\tFAILED_AT\tEXCEPTION")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Queue, r.FailedAt.Format("2006-01-02T15:04:05Z"), truncate(r.Exception, 80))
	}
	return tw.Flush()
}

func failedRetry(ctx context.Context, backend queue.Backend, rest []string) error {
	fs := flag.NewFlagSet("failed retry", flag.ContinueOnError)
	all := fs.Bool("all", false, "retry every Failed Record")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	if *all {
		records, err := backend.FailedJobs(ctx)
		if err != nil {
			return fmt.Errorf("failed retry --all: %w", err)
		}
		retried := 0
		for _, r := range records {
			ok, err := backend.RetryFailedJob(ctx, r.ID)
			if err != nil {
				return fmt.Errorf("failed retry --all: retry %s: %w", r.ID, err)
			}
			if ok {
				retried++
			}
		}
		fmt.Printf("retried %d failed job(s)\n", retried)
		return nil
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("failed retry: expected exactly one <id>, or --all")
	}
	ok, err := backend.RetryFailedJob(ctx, fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed retry: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed retry: no such failed job %q", fs.Arg(0))
	}
	fmt.Printf("retried %s\n", fs.Arg(0))
	return nil
}

func failedForget(ctx context.Context, backend queue.Backend, rest []string) error {
	if len(rest) != 1 {
		return fmt.Errorf("failed forget: expected exactly one <id>")
	}
	ok, err := backend.ForgetFailedJob(ctx, rest[0])
	if err != nil {
		return fmt.Errorf("failed forget: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed forget: no such failed job %q", rest[0])
	}
	fmt.Printf("forgot %s\n", rest[0])
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
