// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// New builds the process logger. format is either "text" or "json"; level is
// any value slog understands (debug, info, warn, error).
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil

	case "text":
		opts.ReplaceAttr = shortSource
		return slog.New(slog.NewTextHandler(w, opts)), nil

	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// shortSource keeps the last two directories of the source file
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}

	parts := strings.Split(filepath.ToSlash(src.File), "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	src.File = strings.Join(parts, "/")
	return a
}
