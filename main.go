package main

import (
	"os"

	"github.com/crisisworks/lifeline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
