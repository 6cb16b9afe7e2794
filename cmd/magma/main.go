package main

import (
	"os"

	"github.com/moolen/magma/cmd/magma/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
