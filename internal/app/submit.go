package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"garden.school/lessonbank/internal/cli"
	"garden.school/lessonbank/internal/dedupe"
	"garden.school/lessonbank/internal/intake"
	"garden.school/lessonbank/internal/logging"
	"garden.school/lessonbank/internal/match"
)

func runSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	payload := fs.String("payload", "", "Lesson submission payload JSON")
	payloadFile := fs.String("payload-file", "", "Path to payload JSON file (overrides --payload)")
	format := fs.String("format", outputFormatJSON, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	payloadJSON, err := loadJSONInput(*payload, *payloadFile, "payload")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
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

	intakeService := intake.NewService(pool, logger)
	record, err := intakeService.Accept(ctx, payloadJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Submission rejected: %v\n", err)
		return 1
	}

	engine := dedupe.NewService(pool, logger, match.DefaultConfig(), cfg.EmbeddingModelName, cfg.EmbeddingModelVersion)
	result, err := engine.Detect(ctx, dedupe.DetectRequest{
		SubmissionID: record.SubmissionID,
		Title:        record.Title,
		Summary:      record.Summary,
		Content:      record.Content,
		Metadata:     record.Metadata,
		Embedding:    record.Embedding,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Submission stored but detection failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{
			"submission_id": record.SubmissionUUID,
			"fingerprint": map[string]string{
				"kind":   string(result.Fingerprint.Kind),
				"digest": result.Fingerprint.Digest,
			},
			"duplicates":  result.Duplicates,
			"diagnostics": result.Diagnostics,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	printDuplicateTable(result)
	return 0
}

func printDuplicateTable(result dedupe.DetectResult) {
	rows := make([][]string, 0, len(result.Duplicates))
	for _, duplicate := range result.Duplicates {
		rows = append(rows, []string{
			duplicate.CandidateID,
			duplicate.Title,
			fmt.Sprintf("%.4f", duplicate.CombinedScore),
			string(duplicate.Classification),
		})
	}
	if err := writeTable([]string{"candidate_id", "title", "score", "classification"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return
	}
	fmt.Printf(
		"scored=%d returned=%d skipped=%d semantic_degraded=%t\n",
		result.Diagnostics.CandidatesScored,
		result.Diagnostics.CandidatesReturned,
		result.Diagnostics.CandidatesSkipped,
		result.Diagnostics.SemanticDegraded,
	)
}
