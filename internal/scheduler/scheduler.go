// Package scheduler partitions candidate pools into fixed-size comparator
// groups and packs groups from one or more queries into batches.
package scheduler

import (
	"github.com/knoguchi/tourney/internal/candidate"
)

// Padder fills short groups with reserved placeholder slots. Which
// placeholders are used is a pure function of the seed and a caller-supplied
// salt, so padding is reproducible across runs.
type Padder struct {
	size int
	seed uint64
}

// NewPadder creates a padder over size reserved placeholders.
func NewPadder(size int, seed uint64) *Padder {
	return &Padder{size: size, seed: seed}
}

// Pad returns n distinct placeholder slots. n must not exceed the pool size.
func (p *Padder) Pad(n int, salt uint64) []candidate.Slot {
	if n <= 0 || p.size <= 0 {
		return nil
	}
	start := int(splitmix64(p.seed^salt) % uint64(p.size))
	out := make([]candidate.Slot, n)
	for i := range out {
		out[i] = candidate.PlaceholderSlot((start + i) % p.size)
	}
	return out
}

// splitmix64 is the SplitMix64 finalizer.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Partition splits pool (candidate indices) into consecutive groups of exactly
// k slots, padding the last group when len(pool) is not a multiple of k.
// Pool order is preserved.
func Partition(pool []int, k int, pad *Padder, salt uint64) []candidate.Group {
	if len(pool) == 0 || k <= 0 {
		return nil
	}

	groups := make([]candidate.Group, 0, (len(pool)+k-1)/k)
	for start := 0; start < len(pool); start += k {
		end := min(start+k, len(pool))

		g := make(candidate.Group, 0, k)
		for _, idx := range pool[start:end] {
			g = append(g, candidate.RealSlot(idx))
		}
		if short := k - len(g); short > 0 {
			g = append(g, pad.Pad(short, salt+uint64(len(groups)))...)
		}
		groups = append(groups, g)
	}
	return groups
}

// Job is one group to be judged against one query.
type Job struct {
	// Query is the position of the owning query in the caller's record slice.
	Query int
	Group candidate.Group
}

// Batch packs jobs into consecutive batches of at most size jobs. Jobs are
// neither reordered nor merged.
func Batch(jobs []Job, size int) [][]Job {
	if len(jobs) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(jobs)
	}

	batches := make([][]Job, 0, (len(jobs)+size-1)/size)
	for start := 0; start < len(jobs); start += size {
		end := min(start+size, len(jobs))
		batches = append(batches, jobs[start:end:end])
	}
	return batches
}
