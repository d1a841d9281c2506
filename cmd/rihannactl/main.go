// Command rihannactl is an operator tool for enqueuing jobs and reverting
// failed ones, talking directly to the store — no dispatcher involved.
// THIS is not a production-grade tool, just a thin wrapper for
// development/ops use from a shell.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rezkam/rihanna/internal/config"
	"github.com/rezkam/rihanna/internal/domain"
	"github.com/rezkam/rihanna/internal/env"
	"github.com/rezkam/rihanna/internal/store/postgres"
)

// storeConfig mirrors the Database/Lock fields of config.WorkerConfig
// without the dispatcher-only settings; rihannactl never polls or claims.
type storeConfig struct {
	Database config.DatabaseConfig
	Lock     config.LockConfig
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "enqueue":
		runEnqueue(os.Args[2:])
	case "retry-failed":
		runRetryFailed(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rihannactl <enqueue|retry-failed> [flags]")
	fmt.Fprintln(os.Stderr, "  enqueue -module NAME -args JSON [-due-in DURATION] [-priority N]")
	fmt.Fprintln(os.Stderr, "  retry-failed -id JOB_ID")
}

func runEnqueue(args []string) {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	module := fs.String("module", "", "module name to dispatch to (required unless -opaque)")
	argsJSON := fs.String("args", "{}", "module args, as a JSON object")
	opaque := fs.String("opaque", "", "opaque payload, as a raw JSON value (mutually exclusive with -module)")
	dueIn := fs.Duration("due-in", 0, "delay before the job becomes claimable (0 = immediately)")
	priority := fs.Int("priority", 0, "priority override; 0 keeps the default")
	fs.Parse(args)

	if *module == "" && *opaque == "" {
		log.Fatal("one of -module or -opaque is required")
	}
	if *module != "" && *opaque != "" {
		log.Fatal("-module and -opaque are mutually exclusive")
	}

	var payload domain.Payload
	var err error
	if *module != "" {
		var rawArgs json.RawMessage
		if err := json.Unmarshal([]byte(*argsJSON), &rawArgs); err != nil {
			log.Fatalf("invalid -args JSON: %v", err)
		}
		payload, err = domain.NewModulePayload(*module, rawArgs)
	} else {
		var rawValue json.RawMessage
		if err := json.Unmarshal([]byte(*opaque), &rawValue); err != nil {
			log.Fatalf("invalid -opaque JSON: %v", err)
		}
		payload, err = domain.NewOpaquePayload(rawValue)
	}
	if err != nil {
		log.Fatalf("failed to build payload: %v", err)
	}

	opts := domain.EnqueueOptions{}
	if *dueIn > 0 {
		opts.DueAt = domain.DueIn(*dueIn)
	}
	if *priority != 0 {
		p := int32(*priority)
		opts.Priority = &p
	}

	store := mustStore()
	defer store.Close()

	job, err := store.Enqueue(context.Background(), payload, opts)
	if err != nil {
		log.Fatalf("enqueue failed: %v", err)
	}

	fmt.Printf("enqueued job %d (priority=%d)\n", job.ID, job.Priority)
}

func runRetryFailed(args []string) {
	fs := flag.NewFlagSet("retry-failed", flag.ExitOnError)
	id := fs.Int64("id", 0, "job id to revert to ready (required)")
	fs.Parse(args)

	if *id == 0 {
		log.Fatal("-id is required")
	}

	store := mustStore()
	defer store.Close()

	job, err := store.RetryFailed(context.Background(), *id)
	if err != nil {
		log.Fatalf("retry-failed failed: %v", err)
	}

	fmt.Printf("job %d reverted to ready (enqueued_at=%s)\n", job.ID, job.EnqueuedAt.Format(time.RFC3339))
}

func mustStore() *postgres.Store {
	cfg := &storeConfig{}
	if err := env.Load(cfg); err != nil {
		log.Fatalf("invalid store config: %v", err)
	}

	store, err := postgres.NewPostgresStore(context.Background(), cfg.Database.DSN, cfg.Lock.ClassID)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return store
}
