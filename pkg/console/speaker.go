package console

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-parley/pkg/speech"
)

// DefaultWordsPerMinute matches a typical speaking rate.
const DefaultWordsPerMinute = 150

// Speaker prints replies one word at a time.
type Speaker struct {
	out    io.Writer
	prefix string
	wpm    int
	logger *slog.Logger

	mu sync.Mutex
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithRate sets the pace in words per minute. Zero prints without delay.
func WithRate(wpm int) SpeakerOption {
	return func(s *Speaker) { s.wpm = wpm }
}

// WithPrefix sets the text printed before each reply.
func WithPrefix(prefix string) SpeakerOption {
	return func(s *Speaker) { s.prefix = prefix }
}

// WithSpeakerLogger sets the logger.
func WithSpeakerLogger(logger *slog.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = logger }
}

// NewSpeaker writes replies to out.
func NewSpeaker(out io.Writer, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		out:    out,
		prefix: "Assistant: ",
		wpm:    DefaultWordsPerMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "console.speaker")
	return s
}

// Speak prints text word by word, stopping at the next word boundary after
// tok is canceled.
func (s *Speaker) Speak(tok *speech.Token, text string) (speech.Outcome, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return speech.OutcomeCompleted, speech.ErrEmptyText
	}
	if tok.Canceled() {
		return speech.OutcomeCanceled, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.out, s.prefix); err != nil {
		return speech.OutcomeCompleted, err
	}

	var pace *time.Ticker
	if s.wpm > 0 {
		pace = time.NewTicker(time.Minute / time.Duration(s.wpm))
		defer pace.Stop()
	}

	for i, w := range words {
		if i > 0 {
			if pace != nil {
				select {
				case <-tok.Done():
				case <-pace.C:
				}
			}
			if tok.Canceled() {
				fmt.Fprintln(s.out, " ...")
				s.logger.Debug("interrupted", "period", tok.ID(), "words", i, "of", len(words))
				return speech.OutcomeCanceled, nil
			}
			w = " " + w
		}
		if _, err := io.WriteString(s.out, w); err != nil {
			return speech.OutcomeCompleted, err
		}
	}
	if _, err := fmt.Fprintln(s.out); err != nil {
		return speech.OutcomeCompleted, err
	}
	return speech.OutcomeCompleted, nil
}

var _ speech.Speaker = (*Speaker)(nil)
