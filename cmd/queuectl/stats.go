package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rezkam/chronoqueue/queue"
)

func runStats(ctx context.Context, backend queue.Backend, defaultQueue string, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	queuesCSV := fs.String("queue", defaultQueue, "comma-separated queue names to report on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var queues []string
	for _, q := range strings.Split(*queuesCSV, ",") {
		q = strings.TrimSpace(q)
		if q != "" {
			queues = append(queues, q)
		}
	}
	if len(queues) == 0 {
		queues = []string{defaultQueue}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING")
	for _, q := range queues {
		n, err := backend.Size(ctx, q)
		if err != nil {
			return fmt.Errorf("stats: queue %s: %w", q, err)
		}
		fmt.Fprintf(tw, "%s\t%d\n", q, n)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	failedJobs, err := backend.FailedJobs(ctx)
	if err != nil {
		return fmt.Errorf("stats: failed jobs: %w", err)
	}
	fmt.Printf("failed\t%d\n", len(failedJobs))
	return nil
}
