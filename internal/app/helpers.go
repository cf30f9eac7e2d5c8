package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"garden.school/lessonbank/internal/cli"
	"garden.school/lessonbank/internal/config"
	"garden.school/lessonbank/internal/db"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// loadJSONInput resolves an inline JSON flag against an optional file flag;
// the file wins when both are set.
func loadJSONInput(inline, filePath, label string) (json.RawMessage, error) {
	if trimmedPath := strings.TrimSpace(filePath); trimmedPath != "" {
		raw, err := os.ReadFile(trimmedPath)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", label, err)
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%s file is not valid JSON", label)
		}
		return raw, nil
	}

	trimmed := strings.TrimSpace(inline)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", label)
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("%s is not valid JSON", label)
	}
	return json.RawMessage(trimmed), nil
}

func connectPool(timeout time.Duration, envLoader *cli.EnvLoader) (context.Context, context.CancelFunc, *config.Config, *db.Pool, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return ctx, cancel, cfg, pool, nil
}
