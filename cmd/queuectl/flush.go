package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rezkam/chronoqueue/queue"
)

func runFlush(ctx context.Context, backend queue.Backend, args []string) error {
	fs := flag.NewFlagSet("flush", flag.ContinueOnError)
	queueName := fs.String("queue", "", "clear this live queue")
	failed := fs.Bool("failed", false, "clear every Failed Record")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *queueName == "" && !*failed {
		return fmt.Errorf("flush: expected --queue=<name> or --failed")
	}

	if *queueName != "" {
		n, err := backend.Clear(ctx, *queueName)
		if err != nil {
			return fmt.Errorf("flush --queue=%s: %w", *queueName, err)
		}
		fmt.Printf("cleared %d record(s) from queue %q\n", n, *queueName)
	}

	if *failed {
		n, err := backend.ClearFailedJobs(ctx)
		if err != nil {
			return fmt.Errorf("flush --failed: %w", err)
		}
		fmt.Printf("cleared %d failed record(s)\n", n)
	}

	return nil
}
