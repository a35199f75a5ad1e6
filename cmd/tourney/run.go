package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knoguchi/tourney/internal/candidate"
	"github.com/knoguchi/tourney/internal/ingestion"
	"github.com/knoguchi/tourney/internal/runfile"
	"github.com/knoguchi/tourney/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rerank an input file into a TREC run file",
	Long: `Read first-stage results, rerank every query and write a TREC run file.

Examples:
  tourney run --input rerank.jsonl.gz                     # flat dump input
  tourney run --input records.jsonl --format records      # grouped records
  tourney run --rerank-topk 20 --skip-issubset --output run.txt`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("input", "i", "", "input file, optionally gzip-compressed")
	runCmd.Flags().StringP("output", "o", "", "run file to write")
	runCmd.Flags().String("format", "", "input format: dump or records")
	runCmd.Flags().String("tag", "", "run tag written in the last column")
	addTournamentFlags(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	applyFlags(cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recs, err := loadInput(cfg.InputPath, cfg.InputFormat)
	if err != nil {
		return err
	}

	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create run file: %w", err)
	}
	defer out.Close()

	writer := runfile.NewWriter(out, cfg.RunTag)
	svc, b, err := buildService(ctx, service.WithSink(writer))
	if err != nil {
		return err
	}
	defer b.Close()

	_, stats, err := svc.Rerank(ctx, recs)
	if err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close run file: %w", err)
	}

	logger.Info("run file written",
		"path", cfg.OutputPath,
		"queries", stats.Queries,
		"fallbacks", stats.Fallbacks,
		"groups", stats.Groups,
		"elapsed_ms", stats.Duration.Milliseconds(),
	)
	return nil
}

func loadInput(path, format string) ([]candidate.Record, error) {
	in, err := ingestion.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var (
		recs  []candidate.Record
		stats ingestion.Stats
	)
	switch format {
	case "dump":
		recs, stats, err = ingestion.ReadDump(in)
	case "records":
		recs, stats, err = ingestion.ReadRecords(in, cfg.Keys())
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	logger.Info("input loaded",
		"path", path,
		"records", stats.Records,
		"candidates", stats.Candidates,
		"labeled", stats.Labeled,
		"elapsed_ms", stats.ProcessingTime.Milliseconds(),
	)
	return recs, nil
}
