package main

import (
	"os"

	"github.com/noah-isme/sma-schedule-engine/cmd/schedctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
