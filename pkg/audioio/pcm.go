package audioio

import (
	"math"
	"time"
)

// SilenceDBFS is the level reported for digital silence.
const SilenceDBFS = -96.0

// Resample converts mono samples between rates by linear interpolation,
// which is adequate for speech.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 || fromRate <= 0 || toRate <= 0 {
		return samples
	}

	step := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / step)
	out := make([]int16, n)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(a + frac*(b-a))
	}
	return out
}

// BytesToSamples decodes little-endian PCM16. A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return out
}

// SamplesToBytes encodes samples as little-endian PCM16.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// MonoToStereo duplicates each sample into both channels.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[2*i], out[2*i+1] = s, s
	}
	return out
}

// StereoToMono averages interleaved stereo samples.
func StereoToMono(samples []int16) []int16 {
	out := make([]int16, len(samples)/2)
	for i := range out {
		out[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
	}
	return out
}

// RMS returns the root mean square amplitude normalized to 0..1.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS returns the RMS level in decibels relative to full scale, floored
// at SilenceDBFS.
func DBFS(samples []int16) float64 {
	rms := RMS(samples)
	if rms <= 0 {
		return SilenceDBFS
	}
	return max(20*math.Log10(rms), SilenceDBFS)
}

// Tone generates a mono sine wave. Amplitude is 0..1.
func Tone(freq, amplitude float64, d time.Duration, rate int) []int16 {
	n := int(d.Seconds() * float64(rate))
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

// Silence returns d of zero samples at rate.
func Silence(d time.Duration, rate int) []int16 {
	return make([]int16, int(d.Seconds()*float64(rate)))
}
