package main

import (
	"fmt"
	"os"

	memopediacmder "github.com/RNA4219/SAIVerse/cmd/memopedia"
)

func main() {
	cmd := memopediacmder.NewMemopediaCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
