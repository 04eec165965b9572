// Command queuectl is the operator's inspection and maintenance tool
// for the live and failed queue state: listing, retrying, and
// forgetting Failed Records; flushing a queue or the failed store; and
// reporting pending/failed counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rezkam/chronoqueue/internal/bootstrap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "queuectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: queuectl [--config=<dir>] [--config-file=<name>] <command> [args]

commands:
  failed list              enumerate Failed Records
  failed retry <id>|--all  requeue one or every Failed Record
  failed forget <id>       delete one Failed Record
  flush --queue=<name>     clear a live queue
  flush --failed           clear every Failed Record
  stats --queue=<csv>      report pending/failed counts`)
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("no command given")
	}

	// --config/--config-file are accepted before the subcommand; scan
	// them off first so each subcommand's FlagSet only has to deal with
	// its own flags.
	var configDir, configFile string
	top := flag.NewFlagSet("queuectl", flag.ContinueOnError)
	top.StringVar(&configDir, "config", "./config", "directory holding the application config")
	top.StringVar(&configFile, "config-file", "config.yaml", "application config file name, relative to --config")
	top.Usage = usage

	rest, command, err := splitCommand(top, args)
	if err != nil {
		return err
	}
	if command == "" {
		usage()
		return fmt.Errorf("no command given")
	}

	ctx := context.Background()
	app, err := bootstrap.Load(ctx, fmt.Sprintf("%s/%s", configDir, configFile))
	if err != nil {
		return fmt.Errorf("load app: %w", err)
	}
	defer app.Close()

	backend := app.Backend

	switch command {
	case "failed":
		return runFailed(ctx, backend, rest)
	case "flush":
		return runFlush(ctx, backend, rest)
	case "stats":
		return runStats(ctx, backend, app.Config.Queue.DefaultQueue, rest)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// splitCommand parses top's flags from the front of args, stopping at
// the first non-flag argument, and returns that argument as the
// subcommand name along with the arguments after it.
func splitCommand(top *flag.FlagSet, args []string) (rest []string, command string, err error) {
	if err := top.Parse(args); err != nil {
		return nil, "", err
	}
	rest = top.Args()
	if len(rest) == 0 {
		return nil, "", nil
	}
	return rest[1:], rest[0], nil
}
