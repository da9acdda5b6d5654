package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"horse.fit/techwatch/internal/cli"
	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/ledger"
)

type outputFormat string

const (
	outputFormatTable outputFormat = "table"
	outputFormatJSON  outputFormat = "json"
)

var statusColumns = []ledger.Status{
	ledger.StatusNew,
	ledger.StatusReady,
	ledger.StatusEvaluated,
	ledger.StatusDuplicate,
	ledger.StatusIgnoredOld,
}

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Query timeout")
	formatRaw := fs.String("format", string(outputFormatTable), "Output format: table|json")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	format, err := parseOutputFormat(*formatRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	s, err := connect(envLoader, *timeout, "stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stats, err := s.pool.QueryStats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("stats query failed")
		return 1
	}

	if format == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeStatsTable(os.Stdout, stats); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write table: %v\n", err)
		return 1
	}
	return 0
}

func writeStatsTable(w io.Writer, stats *db.Stats) error {
	headers := []string{"TOPIC"}
	for _, status := range statusColumns {
		headers = append(headers, strings.ToUpper(string(status)))
	}
	headers = append(headers, "REPRESENTATIVES", "AVG_SCORE")

	rows := make([][]string, 0, len(stats.Topics))
	for _, topic := range stats.Topics {
		row := []string{topic.Topic}
		for _, status := range statusColumns {
			row = append(row, fmt.Sprintf("%d", topic.Statuses[string(status)]))
		}
		row = append(row, fmt.Sprintf("%d", topic.Representatives), fmt.Sprintf("%.2f", topic.AverageScore))
		rows = append(rows, row)
	}
	if err := writeTable(w, headers, rows); err != nil {
		return err
	}

	relations := make([]string, 0, len(stats.Relations))
	for relation := range stats.Relations {
		relations = append(relations, relation)
	}
	sort.Strings(relations)
	relationRows := make([][]string, 0, len(relations))
	for _, relation := range relations {
		relationRows = append(relationRows, []string{relation, fmt.Sprintf("%d", stats.Relations[relation])})
	}
	relationRows = append(relationRows, []string{"vectors", fmt.Sprintf("%d", stats.Vectors)})

	fmt.Fprintln(w)
	return writeTable(w, []string{"RELATION", "COUNT"}, relationRows)
}

func parseOutputFormat(raw string) (outputFormat, error) {
	switch outputFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case outputFormatTable:
		return outputFormatTable, nil
	case outputFormatJSON:
		return outputFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid --format %q (expected table or json)", raw)
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
