package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker.
type Sink interface {
	// Start prepares the device for Write.
	Start(ctx context.Context) error

	// Stop halts playback. Safe to call more than once.
	Stop() error

	// Write queues a chunk. It may block while the device buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush waits until queued audio has been played or ctx is done.
	Flush(ctx context.Context) error

	// Clear discards queued audio immediately.
	Clear() error

	// Config returns the playback format.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases the device. A closed sink cannot be restarted.
	io.Closer
}

// SinkStats contains playback counters.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Underruns       int64  `json:"underruns"`
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
	BufferedSamples int64  `json:"buffered_samples"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
