package listen

import (
	"time"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

// VADConfig tunes the energy detector. Levels are dBFS.
type VADConfig struct {
	OnThreshold  float64
	OffThreshold float64
	Attack       time.Duration
	Release      time.Duration
	Hop          time.Duration
	Frame        time.Duration

	// After calibration the thresholds sit at least this far above the
	// measured noise floor.
	OnMargin  float64
	OffMargin float64
}

// DefaultVADConfig returns thresholds tuned for close-talk speech.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		OnThreshold:  -35,
		OffThreshold: -45,
		Attack:       40 * time.Millisecond,
		Release:      250 * time.Millisecond,
		Hop:          10 * time.Millisecond,
		Frame:        20 * time.Millisecond,
		OnMargin:     12,
		OffMargin:    6,
	}
}

// VAD is a hysteresis voice activity detector. Speech turns on after the
// level stays above OnThreshold for Attack and off after it stays below
// OffThreshold for Release. Levels in between hold the current state.
//
// VAD is not safe for concurrent use.
type VAD struct {
	cfg      VADConfig
	on, off  float64
	hop      int
	frame    int
	attackN  int
	releaseN int

	pending []int16
	window  []int16
	active  bool
	above   int
	below   int
	level   float64
}

// NewVAD creates a detector for mono audio at sampleRate.
func NewVAD(cfg VADConfig, sampleRate int) *VAD {
	hop := max(1, int(cfg.Hop.Seconds()*float64(sampleRate)))
	v := &VAD{
		cfg:      cfg,
		on:       cfg.OnThreshold,
		off:      cfg.OffThreshold,
		hop:      hop,
		frame:    max(hop, int(cfg.Frame.Seconds()*float64(sampleRate))),
		attackN:  max(1, int(cfg.Attack/cfg.Hop)),
		releaseN: max(1, int(cfg.Release/cfg.Hop)),
		level:    audioio.SilenceDBFS,
	}
	return v
}

// Calibrate raises the thresholds above the ambient noise level. It never
// lowers them below the configured values.
func (v *VAD) Calibrate(noiseDBFS float64) {
	v.on = max(v.cfg.OnThreshold, noiseDBFS+v.cfg.OnMargin)
	v.off = max(v.cfg.OffThreshold, noiseDBFS+v.cfg.OffMargin)
	if v.off >= v.on {
		v.off = v.on - 1
	}
}

// Thresholds returns the current on and off levels.
func (v *VAD) Thresholds() (on, off float64) {
	return v.on, v.off
}

// Feed processes samples and reports whether speech is active afterwards.
func (v *VAD) Feed(samples []int16) bool {
	v.pending = append(v.pending, samples...)
	for len(v.pending) >= v.hop {
		v.step(v.pending[:v.hop])
		v.pending = v.pending[v.hop:]
	}
	return v.active
}

func (v *VAD) step(hop []int16) {
	v.window = append(v.window, hop...)
	if n := len(v.window); n > v.frame {
		v.window = append(v.window[:0], v.window[n-v.frame:]...)
	}
	v.level = audioio.DBFS(v.window)

	switch {
	case v.level >= v.on:
		v.above++
		v.below = 0
		if !v.active && v.above >= v.attackN {
			v.active = true
		}
	case v.level <= v.off:
		v.below++
		v.above = 0
		if v.active && v.below >= v.releaseN {
			v.active = false
		}
	default:
		v.above, v.below = 0, 0
	}
}

// Active reports whether speech is currently detected.
func (v *VAD) Active() bool { return v.active }

// Level returns the most recent frame level in dBFS.
func (v *VAD) Level() float64 { return v.level }

// Reset clears detection state. Calibration is kept.
func (v *VAD) Reset() {
	v.pending = v.pending[:0]
	v.window = v.window[:0]
	v.active = false
	v.above, v.below = 0, 0
	v.level = audioio.SilenceDBFS
}
