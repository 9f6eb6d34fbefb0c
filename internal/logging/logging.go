// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New creates a [log.Logger] writing to w with timestamps enabled.
// The writer defaults to [os.Stderr].
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, Level: lvl})
}

// Setup installs a logger at the given level as the package default, so
// that plain log.Info / log.Warn calls across the codebase pick it up.
func Setup(level string) {
	log.SetDefault(New(os.Stderr, level))
}
