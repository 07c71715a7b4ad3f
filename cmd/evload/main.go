package main

import (
	"fmt"
	"os"

	"github.com/nishad/eudravigilance/internal/cli"
)

var (
	version = "0.0.1-dev"
	commit  = "dev"
)

func main() {
	root := cli.NewRootCmd(fmt.Sprintf("%s (commit: %s)", version, commit))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
