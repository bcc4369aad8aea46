package main

import (
	"os"

	"github.com/lvls/supportbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
