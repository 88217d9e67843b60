package main

import (
	"os"

	"github.com/spigell/bpmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
