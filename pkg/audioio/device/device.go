// Package device provides the hardware audio backend: microphone capture
// through miniaudio (malgo) and speaker playback through oto.
//
// Importing the package registers audioio.BackendDevice, which
// audioio.BackendAuto then prefers over the mock backend. Both libraries
// use cgo.
package device

import (
	"log/slog"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

func init() {
	audioio.Register(audioio.BackendDevice, audioio.Driver{
		OpenSource: func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
			return OpenMicrophone(cfg, logger)
		},
		OpenSink: func(cfg audioio.Config, logger *slog.Logger) (audioio.Sink, error) {
			return OpenSpeaker(cfg, logger)
		},
	})
}
