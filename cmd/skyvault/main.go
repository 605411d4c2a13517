package main

import (
	"fmt"
	"os"

	"github.com/skyvault-io/skyvault/cmd/skyvault/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
