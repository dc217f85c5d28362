package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/soocke/pixel-watch-go/config"
)

// NewLogger returns a structured JSON logger writing to stdout and, when
// cfg.File is set, to a rotating log file. The closer releases the file.
func NewLogger(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.Replace(strings.ToUpper(cfg.Level), "WARNING", "WARN", 1))); err != nil {
		level = slog.LevelInfo
	}
	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}
	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(h), closer
}
