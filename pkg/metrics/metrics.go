// Package metrics derives Prometheus metrics and a rolling latency summary
// from the turn engine's event stream.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-parley/pkg/turn"
)

const historySize = 100

// TurnMetrics describes one exchange: a user turn and the reply to it.
type TurnMetrics struct {
	GenerationLatency time.Duration `json:"generation_latency"`
	SpeakingDuration  time.Duration `json:"speaking_duration"`
	Interrupted       bool          `json:"interrupted"`
}

// Summary aggregates the session so far.
type Summary struct {
	Turns         int           `json:"turns"`
	Interruptions int           `json:"interruptions"`
	Fallbacks     int           `json:"fallbacks"`
	Abandoned     int           `json:"abandoned"`
	AvgGeneration time.Duration `json:"avg_generation"`
	AvgSpeaking   time.Duration `json:"avg_speaking"`
	Last          TurnMetrics   `json:"last"`
}

// Collector consumes turn events. Observe is safe for concurrent use but
// expects events of one session in order.
type Collector struct {
	registry *prometheus.Registry

	turnsTotal     *prometheus.CounterVec
	interruptions  prometheus.Counter
	errorsTotal    *prometheus.CounterVec
	state          *prometheus.GaugeVec
	generationTime prometheus.Histogram
	speakingTime   prometheus.Histogram

	mu            sync.Mutex
	current       turn.State
	generateStart time.Time
	speakStart    time.Time
	pending       TurnMetrics
	history       []TurnMetrics
	summary       Summary
}

// NewCollector creates a collector with its own registry. An empty
// namespace defaults to "parley".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "parley"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Conversation turns appended to history",
			},
			[]string{"role"},
		),
		interruptions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interruptions_total",
				Help:      "Speaking periods cut short by user speech",
			},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors reported by the turn engine",
			},
			[]string{"kind"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "1 for the engine's current state, 0 otherwise",
			},
			[]string{"state"},
		),
		generationTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Time from user turn to reply",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		speakingTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "speaking_duration_seconds",
				Help:      "Length of speaking periods",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 60},
			},
		),
		history: make([]TurnMetrics, 0, historySize),
	}

	c.registry.MustRegister(
		c.turnsTotal,
		c.interruptions,
		c.errorsTotal,
		c.state,
		c.generationTime,
		c.speakingTime,
	)
	for _, s := range []turn.State{turn.StateIdle, turn.StateListening, turn.StateGenerating, turn.StateSpeaking, turn.StateTerminated} {
		c.state.WithLabelValues(s.String()).Set(0)
	}
	c.state.WithLabelValues(turn.StateIdle.String()).Set(1)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe updates metrics from one event. It has the turn.Observer
// signature.
func (c *Collector) Observe(ev turn.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case turn.EventUserUtterance:
		c.turnsTotal.WithLabelValues("user").Inc()
		c.summary.Turns++
		if c.current == turn.StateSpeaking {
			c.interruptions.Inc()
			c.summary.Interruptions++
			c.pending.Interrupted = true
			c.endSpeaking(ev.Time)
		}

	case turn.EventAssistantUtterance:
		c.turnsTotal.WithLabelValues("assistant").Inc()
		c.summary.Turns++
		if !c.generateStart.IsZero() {
			c.pending.GenerationLatency = ev.Time.Sub(c.generateStart)
			c.generationTime.Observe(c.pending.GenerationLatency.Seconds())
			c.generateStart = time.Time{}
		}

	case turn.EventStateChanged:
		if ev.From == turn.StateSpeaking {
			c.endSpeaking(ev.Time)
		}
		switch ev.To {
		case turn.StateGenerating:
			c.generateStart = ev.Time
		case turn.StateSpeaking:
			c.speakStart = ev.Time
		}
		c.state.WithLabelValues(ev.From.String()).Set(0)
		c.state.WithLabelValues(ev.To.String()).Set(1)
		c.current = ev.To

	case turn.EventError:
		kind := errorKind(ev)
		c.errorsTotal.WithLabelValues(kind).Inc()
		switch kind {
		case "generation":
			c.summary.Fallbacks++
		case "speak_abandoned":
			c.summary.Abandoned++
		}
	}
}

// endSpeaking closes the open speaking period and archives the exchange.
func (c *Collector) endSpeaking(at time.Time) {
	if c.speakStart.IsZero() {
		return
	}
	c.pending.SpeakingDuration = at.Sub(c.speakStart)
	c.speakingTime.Observe(c.pending.SpeakingDuration.Seconds())
	c.speakStart = time.Time{}

	c.history = append(c.history, c.pending)
	if len(c.history) > historySize {
		c.history = c.history[1:]
	}
	c.summary.Last = c.pending
	c.pending = TurnMetrics{}
}

func errorKind(ev turn.Event) string {
	switch {
	case ev.Fatal:
		return "device_fault"
	case errors.Is(ev.Err, turn.ErrGeneration):
		return "generation"
	case errors.Is(ev.Err, turn.ErrSpeakAbandoned):
		return "speak_abandoned"
	default:
		return "other"
	}
}

// Summary returns totals and averages over recent exchanges.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	if n := time.Duration(len(c.history)); n > 0 {
		var gen, speak time.Duration
		for _, h := range c.history {
			gen += h.GenerationLatency
			speak += h.SpeakingDuration
		}
		s.AvgGeneration = gen / n
		s.AvgSpeaking = speak / n
	}
	return s
}

// FormatLatency renders a turn's timings for log lines.
func (m TurnMetrics) FormatLatency() string {
	s := formatDuration(m.GenerationLatency) + " GEN | " + formatDuration(m.SpeakingDuration) + " SPEAK"
	if m.Interrupted {
		s += " (interrupted)"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
