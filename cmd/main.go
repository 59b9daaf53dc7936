package main

import (
	"os"

	"medquiz-challenge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
