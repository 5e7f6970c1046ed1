package main

import (
	"os"

	"github.com/stockpile-dev/stockpile/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
