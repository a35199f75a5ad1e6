package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addTournamentFlags registers flags that override tournament settings.
func addTournamentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("topk", 0, "number of first-stage candidates entering the tournament")
	f.Int("listwise-k", 0, "group size of one comparison")
	f.Int("out-k", 0, "winners promoted per group")
	f.Int("rerank-topk", 0, "length of the resolved prefix")
	f.Int("dummy-number", 0, "number of reserved placeholder passages")
	f.Int("bsize", 0, "groups per comparator batch")
	f.Int("concurrency", 0, "batches in flight")
	f.Int("max-input-tokens", 0, "passage token budget, -1 disables truncation")
	f.Uint64("seed", 0, "placeholder rotation and sampling seed")
	f.String("truncation", "", "winner truncation policy: group or rank")
	f.String("backend", "", "comparator backend: llm, embedding or http")
	f.Bool("skip-no-candidate", false, "skip queries whose relevant passages are absent from the pool")
	f.Bool("skip-issubset", false, "stop once every relevant passage is resolved")
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(flags *pflag.FlagSet) {
	ints := map[string]*int{
		"topk":             &cfg.TopK,
		"listwise-k":       &cfg.ListwiseK,
		"out-k":            &cfg.OutK,
		"rerank-topk":      &cfg.RerankTopK,
		"dummy-number":     &cfg.DummyNumber,
		"bsize":            &cfg.BatchSize,
		"concurrency":      &cfg.Concurrency,
		"max-input-tokens": &cfg.MaxInputTokens,
	}
	strs := map[string]*string{
		"truncation": &cfg.Truncation,
		"backend":    &cfg.ComparatorBackend,
		"input":      &cfg.InputPath,
		"output":     &cfg.OutputPath,
		"format":     &cfg.InputFormat,
		"tag":        &cfg.RunTag,
	}
	bools := map[string]*bool{
		"skip-no-candidate": &cfg.SkipNoCandidate,
		"skip-issubset":     &cfg.SkipIsSubset,
	}

	for name, dst := range ints {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	for name, dst := range strs {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	for name, dst := range bools {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
}
