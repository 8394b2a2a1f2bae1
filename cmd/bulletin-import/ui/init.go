package ui

import (
	"github.com/fatih/color"
)

// InitUI applies the colour setting for the rest of the run.
func InitUI(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}
