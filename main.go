package main

import (
	"os"

	"github.com/thinkhire/interview-pipeline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
