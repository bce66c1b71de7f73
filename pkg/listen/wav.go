package listen

import (
	"bytes"
	"encoding/binary"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

// encodeWAV wraps PCM16 samples in a canonical 44-byte RIFF header.
func encodeWAV(audio audioio.AudioChunk) []byte {
	channels := max(1, audio.Channels)
	dataLen := len(audio.Samples) * 2
	byteRate := audio.SampleRate * channels * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataLen)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(audio.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(audioio.SamplesToBytes(audio.Samples))
	return buf.Bytes()
}
