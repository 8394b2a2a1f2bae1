// Package ui provides the console output of the bulletin-import CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.Bold)
)

// Table writes data as aligned columns.
func Table(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(tw, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	_ = tw.Flush()
}

// Section displays a section header.
func Section(title string) {
	fmt.Fprintln(os.Stdout)
	headerColor.Fprintln(os.Stdout, title)
	fmt.Fprintf(os.Stdout, "%s\n\n", strings.Repeat("=", len([]rune(title))))
}

// KeyValue displays a key-value pair in a formatted way.
func KeyValue(key, value string) {
	fmt.Fprintf(os.Stdout, "  %s: %s\n", key, value)
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	warningColor.Fprintf(os.Stdout, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stdout, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
