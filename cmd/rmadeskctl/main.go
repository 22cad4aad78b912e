package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rmadesk/rmadesk/cmd/rmadeskctl/cli"
	"github.com/rmadesk/rmadesk/internal/app"
	"github.com/rmadesk/rmadesk/internal/discounts"
	"github.com/rmadesk/rmadesk/internal/inventory"
	"github.com/rmadesk/rmadesk/internal/platform/db"
)

const usage = `usage: rmadeskctl <command> [flags]

commands:
  kits validate --file PATH [--json]
  stock import --account a|b --file PATH [--dry-run] [--json]
  jobs trigger NAME
  jobs stats
  jobs scheduled [--size N]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	switch args[0] + " " + args[1] {
	case "kits validate":
		fs := flag.NewFlagSet("kits validate", flag.ContinueOnError)
		fs.SetOutput(stderr)
		path := fs.String("file", cfg.KitRulesPath, "kit table yaml")
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "connect postgres: %v\n", err)
			return 1
		}
		defer pool.Close()
		return cli.NewKitsCLI(discounts.NewRepository(pool)).ValidateCommand(ctx, cli.KitsValidateOptions{
			Path: *path, JSONOutput: *asJSON, Stdout: stdout, Stderr: stderr,
		})

	case "stock import":
		fs := flag.NewFlagSet("stock import", flag.ContinueOnError)
		fs.SetOutput(stderr)
		account := fs.String("account", "", "stock account (a or b)")
		file := fs.String("file", "", "xlsx workbook")
		dryRun := fs.Bool("dry-run", false, "compute the result without writing")
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "connect postgres: %v\n", err)
			return 1
		}
		defer pool.Close()
		return cli.NewStockCLI(inventory.NewRepository(pool)).ImportCommand(ctx, cli.StockImportOptions{
			Account: *account, File: *file, DryRun: *dryRun, JSONOutput: *asJSON, Stdout: stdout, Stderr: stderr,
		})

	case "jobs trigger", "jobs stats", "jobs scheduled":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
			return 1
		}
		defer func() { _ = jobsCLI.Close() }()
		return runJobs(ctx, jobsCLI, args[1], args[2:], stdout, stderr)
	}

	_, _ = fmt.Fprint(stderr, usage)
	return 2
}

func runJobs(ctx context.Context, jobsCLI *cli.JobsCLI, sub string, args []string, stdout, stderr io.Writer) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	switch sub {
	case "trigger":
		if len(args) != 1 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[0])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_ = enc.Encode(stats)
	case "scheduled":
		fs := flag.NewFlagSet("jobs scheduled", flag.ContinueOnError)
		fs.SetOutput(stderr)
		size := fs.Int("size", 10, "page size")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
		}
	}
	return 0
}
