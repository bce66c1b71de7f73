// Package tts turns assistant replies into audio.
//
// A Provider synthesizes speech (ElevenLabs, Google Cloud Text-to-Speech,
// or a Mock). Speaker plays a provider's output into an audioio.Sink and
// implements speech.Speaker, stopping within one frame of a cancellation.
package tts

import (
	"context"
	"time"
)

// Provider defines the interface for text-to-speech providers.
type Provider interface {
	// Synthesize converts text to audio, returning the complete result.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio, returning chunks as they arrive.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks if the provider is available.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream delivers PCM audio incrementally.
type AudioStream interface {
	// Read returns the next chunk. A nil slice with a nil error means the
	// stream is done.
	Read() ([]byte, error)

	// Close releases the stream. Safe to call more than once.
	Close() error

	// Format describes the bytes returned by Read.
	Format() AudioFormat
}

// AudioResult contains a fully synthesized utterance.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration
	Latency   time.Duration
	CharCount int
}

// AudioFormat describes raw audio bytes.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names an output format.
type Encoding string

// PCM encodings accepted by Speaker. All are 16-bit little-endian mono.
const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// SampleRateFromEncoding returns the sample rate for an encoding, or 0 if
// the encoding is not PCM.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44:
		return 44100
	default:
		return 0
	}
}

// EncodingForSampleRate returns the PCM encoding for rate.
func EncodingForSampleRate(rate int) (Encoding, bool) {
	switch rate {
	case 16000:
		return EncodingPCM16, true
	case 22050:
		return EncodingPCM22, true
	case 24000:
		return EncodingPCM24, true
	case 44100:
		return EncodingPCM44, true
	default:
		return "", false
	}
}

// PCMFormat returns the mono 16-bit format for rate.
func PCMFormat(rate int) AudioFormat {
	enc, _ := EncodingForSampleRate(rate)
	return AudioFormat{Encoding: enc, SampleRate: rate, Channels: 1, BitDepth: 16}
}

// PCMDuration returns the playback length of n bytes of f.
func PCMDuration(n int, f AudioFormat) time.Duration {
	bytesPerSample := f.BitDepth / 8
	if bytesPerSample == 0 || f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	samples := n / (bytesPerSample * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// VoiceSettings controls ElevenLabs voice characteristics.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
}

// DefaultVoiceSettings returns balanced settings for conversation.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		UseSpeakerBoost: true,
	}
}

// bufferStream serves an in-memory result as an AudioStream.
type bufferStream struct {
	data   []byte
	chunk  int
	format AudioFormat
	closed bool
}

func newBufferStream(data []byte, format AudioFormat, chunk int) *bufferStream {
	if chunk <= 0 {
		chunk = 4096
	}
	return &bufferStream{data: data, chunk: chunk, format: format}
}

func (s *bufferStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if len(s.data) == 0 {
		return nil, nil
	}
	n := min(s.chunk, len(s.data))
	out := s.data[:n]
	s.data = s.data[n:]
	return out, nil
}

func (s *bufferStream) Close() error {
	s.closed = true
	return nil
}

func (s *bufferStream) Format() AudioFormat {
	return s.format
}
