package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"garden.school/lessonbank/internal/cli"
	"garden.school/lessonbank/internal/dedupe"
	"garden.school/lessonbank/internal/logging"
	"garden.school/lessonbank/internal/match"
)

func runBackfill(args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	limit := fs.Int("limit", 1000, "Maximum lessons to fingerprint in this run")
	batchSize := fs.Int("batch-size", 200, "Select batch size")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	engine := dedupe.NewService(pool, logger, match.DefaultConfig(), cfg.EmbeddingModelName, cfg.EmbeddingModelVersion)
	result, err := engine.BackfillFingerprints(ctx, dedupe.BackfillOptions{
		Limit:     *limit,
		BatchSize: *batchSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backfill failed after processing %d lessons: %v\n", result.Processed, err)
		return 1
	}

	fmt.Printf(
		"backfill processed=%d updated=%d skipped=%d\n",
		result.Processed,
		result.Updated,
		result.Skipped,
	)
	return 0
}
