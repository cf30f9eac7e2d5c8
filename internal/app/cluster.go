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

func runCluster(args []string) int {
	fs := flag.NewFlagSet("cluster", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
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
	groups, err := engine.BuildGroups(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cluster sweep failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if groups == nil {
			groups = []dedupe.DuplicateGroup{}
		}
		if err := printJSON(map[string]any{"groups": groups, "count": len(groups)}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(groups))
	for _, group := range groups {
		rows = append(rows, []string{
			group.Signature[:12],
			string(group.Confidence),
			group.DetectionMethod,
			fmt.Sprintf("%d", len(group.Members)),
			group.Members[0].Title,
		})
	}
	if err := writeTable([]string{"signature", "confidence", "method", "members", "first_title"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	fmt.Printf("cluster groups=%d\n", len(groups))
	return 0
}
