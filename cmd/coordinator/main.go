package main

import (
	"os"

	"github.com/jimbogithub/kafka/cmd/coordinator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
