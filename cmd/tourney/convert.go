package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knoguchi/tourney/internal/ingestion"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Group a flat retrieval dump into per-query records",
	Long: `Read a flat dump with one (qid, query, docno, text, score) row per line and
write one record per query, candidates ordered by descending score.

Examples:
  tourney convert --input rerank.jsonl.gz --output records.jsonl`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("input", "i", "", "flat dump, optionally gzip-compressed")
	convertCmd.Flags().StringP("output", "o", "records.jsonl", "records file to write")
}

func runConvert(cmd *cobra.Command, args []string) error {
	applyFlags(cmd.Flags())

	recs, err := loadInput(cfg.InputPath, "dump")
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create records file: %w", err)
	}
	defer out.Close()

	if err := ingestion.WriteRecords(out, recs); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close records file: %w", err)
	}

	logger.Info("records written", "path", output, "records", len(recs))
	return nil
}
