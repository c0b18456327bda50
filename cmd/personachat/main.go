package main

import (
	"os"

	"github.com/execsim/personachat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
