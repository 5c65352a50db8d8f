// Command sercha-retrieve is the CLI entry point for the hybrid
// retrieval core: query, ingest, feedback, and stats over a local
// workspace database.
package main

import (
	"fmt"
	"os"

	"github.com/sercha/retrieval-core/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sercha-retrieve:", err)
		os.Exit(1)
	}
}
