// Command tourney reranks first-stage retrieval results with a listwise
// tournament.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
