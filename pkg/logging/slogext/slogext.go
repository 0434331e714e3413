package slogext

import (
	"log/slog"

	"github.com/S1riyS/guestvfs/internal/pkg/kerrors"
)

func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Errno logs a guest errno by name and number.
func Errno(code kerrors.Errno) slog.Attr {
	return slog.Group("errno",
		slog.Int("code", int(code)),
		slog.String("name", code.String()),
	)
}
