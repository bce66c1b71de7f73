package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is a block of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the chunk as little-endian PCM16.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes populates the chunk from little-endian PCM16.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = BytesToSamples(data)
}

// Duration returns the playback length of the chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Source captures audio from a microphone.
type Source interface {
	// Start begins capture. Starting a running source is a no-op.
	Start(ctx context.Context) error

	// Stop halts capture. Safe to call more than once.
	Stop() error

	// Read blocks for the next chunk. It returns io.EOF once the source
	// is stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Config returns the capture format.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases the device. A closed source cannot be restarted.
	io.Closer
}

// SourceStats contains capture counters.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"`
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
