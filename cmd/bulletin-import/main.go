package main

import (
	"os"

	"github.com/spherical/bulletin-import/cmd/bulletin-import/commands"
	"github.com/spherical/bulletin-import/cmd/bulletin-import/ui"
)

var (
	version = "0.1.0"
)

func main() {
	if err := commands.Execute(version); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}
