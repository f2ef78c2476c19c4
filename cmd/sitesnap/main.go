package main

import (
	"fmt"
	"os"

	"github.com/grantcarthew/sitesnap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// Print error if not already printed by the command
		if !cli.IsPrintedError(err) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}
