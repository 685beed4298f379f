package main

import (
	"os"

	"github.com/ziminpro/bird/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
