package ui

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
)

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	s.spinner.Lock()
	s.spinner.Suffix = " " + message
	s.spinner.Unlock()
}
