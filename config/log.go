package config

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

func (l Log) level() (slog.Level, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log: level %q: %w", l.Level, err)
	}
	return lv, nil
}

// NewLogger builds the logger: text on stderr, or JSON into a rotated
// file when a file is set. Verbose forces the debug level. The returned
// closer releases the file.
func (l Log) NewLogger(verbose bool, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	lv, err := l.level()
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		lv = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lv}
	if l.File == "" {
		return slog.New(slog.NewTextHandler(stderr, opts)), io.NopCloser(nil), nil
	}
	w := &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAgeDays,
		Compress:   l.Compress,
	}
	return slog.New(slog.NewJSONHandler(w, opts)), w, nil
}
