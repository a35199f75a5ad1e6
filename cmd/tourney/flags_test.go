package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tourney/internal/config"
)

func TestApplyFlags_OnlyChanged(t *testing.T) {
	loaded, err := config.Load()
	require.NoError(t, err)
	cfg = loaded

	cmd := &cobra.Command{Use: "test"}
	addTournamentFlags(cmd)
	cmd.Flags().String("output", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{
		"--listwise-k", "3",
		"--out-k", "1",
		"--truncation", "rank",
		"--skip-issubset",
		"--seed", "7",
		"--output", "out.txt",
	}))

	applyFlags(cmd.Flags())

	assert.Equal(t, 3, cfg.ListwiseK)
	assert.Equal(t, 1, cfg.OutK)
	assert.Equal(t, "rank", cfg.Truncation)
	assert.True(t, cfg.SkipIsSubset)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "out.txt", cfg.OutputPath)

	// Untouched flags keep the loaded values.
	assert.Equal(t, 100, cfg.TopK)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.False(t, cfg.SkipNoCandidate)
}
