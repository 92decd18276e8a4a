package main

import (
	"os"

	"github.com/dmaas/ivcrush/cmd/ivcrush/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
