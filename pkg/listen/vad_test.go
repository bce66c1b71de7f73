package listen

import (
	"testing"
	"time"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

const rate = 16000

func TestVADAttackAndRelease(t *testing.T) {
	vad := NewVAD(DefaultVADConfig(), rate)

	if vad.Feed(audioio.Tone(300, 0.5, 20*time.Millisecond, rate)) {
		t.Fatal("Expected no onset before attack elapsed")
	}
	if !vad.Feed(audioio.Tone(300, 0.5, 30*time.Millisecond, rate)) {
		t.Fatal("Expected onset after attack")
	}

	if !vad.Feed(audioio.Silence(100*time.Millisecond, rate)) {
		t.Error("Expected speech to hold during release")
	}
	if vad.Feed(audioio.Silence(300*time.Millisecond, rate)) {
		t.Error("Expected speech to end after release")
	}
	if vad.Level() != audioio.SilenceDBFS {
		t.Errorf("Expected silence level, got %.1f", vad.Level())
	}
}

func TestVADHysteresis(t *testing.T) {
	vad := NewVAD(DefaultVADConfig(), rate)
	vad.Feed(audioio.Tone(300, 0.5, 100*time.Millisecond, rate))
	if !vad.Active() {
		t.Fatal("Expected active")
	}

	// about -37 dBFS: between the off and on thresholds
	if !vad.Feed(audioio.Tone(300, 0.02, time.Second, rate)) {
		t.Error("Expected a level between thresholds to hold the state")
	}

	vad.Reset()
	if vad.Feed(audioio.Tone(300, 0.02, time.Second, rate)) {
		t.Error("Expected a level between thresholds not to trigger onset")
	}
}

func TestVADCalibrate(t *testing.T) {
	vad := NewVAD(DefaultVADConfig(), rate)

	vad.Calibrate(audioio.SilenceDBFS)
	if on, off := vad.Thresholds(); on != -35 || off != -45 {
		t.Errorf("Expected defaults kept for silence, got %.1f/%.1f", on, off)
	}

	vad.Calibrate(-43)
	on, off := vad.Thresholds()
	if on != -31 || off != -37 {
		t.Errorf("Expected -31/-37, got %.1f/%.1f", on, off)
	}

	// noise itself must not trigger
	if vad.Feed(audioio.Tone(300, 0.01, time.Second, rate)) {
		t.Error("Expected calibrated noise to stay below onset")
	}
}
