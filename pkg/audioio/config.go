// Package audioio moves PCM audio between the conversation loop and sound
// hardware.
//
// Source captures microphone audio, Sink plays speech. Concrete devices are
// provided by backends registered with Register; the mock backend is always
// available and is what tests and text mode use. Hardware backends live in
// audioio/device and register themselves when that package is imported.
package audioio

import (
	"fmt"
	"time"
)

// Backend names an audio backend.
type Backend string

const (
	// BackendAuto selects the device backend when registered, otherwise mock.
	BackendAuto Backend = "auto"
	// BackendDevice uses the system's default sound devices.
	BackendDevice Backend = "device"
	// BackendMock uses the in-memory implementation.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `mapstructure:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `mapstructure:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `mapstructure:"channels" json:"channels"`

	// BufferDuration is the length of one chunk.
	BufferDuration time.Duration `mapstructure:"buffer_duration" json:"buffer_duration"`

	// Device selects a device by name. Empty means the system default.
	Device string `mapstructure:"device" json:"device"`
}

// DefaultConfig returns a playback configuration: 24kHz mono, 20ms chunks.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     24000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// DefaultCaptureConfig returns a capture configuration: 16kHz mono, 10ms
// chunks, which is what speech recognizers expect.
func DefaultCaptureConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 10 * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("audioio: channels must be 1 or 2, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("audioio: buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of one chunk in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
