package main

import (
	"os"

	"github.com/solatis/qengine/cmd/qengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
