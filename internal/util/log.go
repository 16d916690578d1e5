package util

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// ConfigureSlog installs a tint handler as the default slog logger.
func ConfigureSlog(writeTo io.Writer) {
	h := tint.NewHandler(writeTo, &tint.Options{TimeFormat: time.Kitchen})
	slog.SetDefault(slog.New(h))
}
