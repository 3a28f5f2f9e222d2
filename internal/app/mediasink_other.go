//go:build !linux

package app

import (
	"fmt"
	"log/slog"

	"github.com/tejashwikalptaru/gotune-core/internal/config"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

func newMediaSink(logger *slog.Logger, cfg config.MPRISConfig) (ports.MediaSessionSink, error) {
	return nil, fmt.Errorf("mpris sink not supported on this platform")
}
