package main

import (
	"os"

	"github.com/dandantas/pijob/cmd/pijob/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
