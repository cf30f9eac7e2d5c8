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

func runEmbed(args []string) int {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	limit := fs.Int("limit", 256, "Maximum lessons to embed in this run")
	batchSize := fs.Int("batch-size", dedupe.DefaultEmbeddingBatchSize, "Embedding request batch size")
	endpoint := fs.String("endpoint", "", "Embedding service endpoint (defaults to EMBEDDING_ENDPOINT)")
	maxLength := fs.Int("max-length", dedupe.DefaultEmbeddingMaxLength, "Token truncation length per input")
	requestTimeout := fs.Duration("request-timeout", dedupe.DefaultEmbeddingRequestTimeout, "Per-batch embedding request timeout")

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

	resolvedEndpoint := *endpoint
	if resolvedEndpoint == "" {
		resolvedEndpoint = cfg.EmbeddingEndpoint
	}

	engine := dedupe.NewService(pool, logger, match.DefaultConfig(), cfg.EmbeddingModelName, cfg.EmbeddingModelVersion)
	result, err := engine.EmbedPending(ctx, dedupe.EmbedOptions{
		Limit:          *limit,
		BatchSize:      *batchSize,
		Endpoint:       resolvedEndpoint,
		MaxLength:      *maxLength,
		RequestTimeout: *requestTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed after processing %d lessons: %v\n", result.Processed, err)
		return 1
	}

	fmt.Printf(
		"embed processed=%d embedded=%d skipped=%d failed=%d model=%s/%s\n",
		result.Processed,
		result.Embedded,
		result.Skipped,
		result.Failed,
		cfg.EmbeddingModelName,
		cfg.EmbeddingModelVersion,
	)
	return 0
}
