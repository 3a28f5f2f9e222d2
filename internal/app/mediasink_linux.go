//go:build linux

package app

import (
	"log/slog"

	"github.com/tejashwikalptaru/gotune-core/internal/config"
	"github.com/tejashwikalptaru/gotune-core/internal/mpris"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

func newMediaSink(logger *slog.Logger, cfg config.MPRISConfig) (ports.MediaSessionSink, error) {
	return mpris.New(logger, cfg.Identity)
}
