// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"filmmigrate/internal/config"

	"github.com/hashicorp/go-hclog"
)

// Name is the root logger name; packages derive children with Named.
const Name = "filmmigrate"

// New returns a logger writing to w (stderr when nil). An unknown level
// falls back to info.
func New(cfg config.Log, w io.Writer) hclog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       Name,
		Level:      level,
		Output:     w,
		JSONFormat: cfg.Format == "json",
		TimeFormat: "2006-01-02T15:04:05.000Z0700",
	})
}
