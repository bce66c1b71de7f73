package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) != 11*480*2 {
			t.Errorf("expected %d bytes, got %d", 11*480*2, len(result.Audio))
		}
		if result.Duration != 220*time.Millisecond {
			t.Errorf("expected 220ms, got %v", result.Duration)
		}
		if result.Format.SampleRate != 24000 {
			t.Errorf("expected 24000 sample rate, got %d", result.Format.SampleRate)
		}
	})

	t.Run("Stream drains to nil", func(t *testing.T) {
		stream, err := mock.Stream(ctx, "Test stream")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer stream.Close()

		total := 0
		for {
			chunk, err := stream.Read()
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			if chunk == nil {
				break
			}
			total += len(chunk)
		}
		if total != 11*480*2 {
			t.Errorf("expected %d bytes, got %d", 11*480*2, total)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
		if mock.CallCount("Stream") != 1 {
			t.Errorf("expected 1 Stream call, got %d", mock.CallCount("Stream"))
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("Synthesize: expected test error, got %v", err)
	}
	if _, err := mock.Stream(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("Stream: expected test error, got %v", err)
	}
	if err := mock.Health(ctx); !errors.Is(err, testErr) {
		t.Errorf("Health: expected test error, got %v", err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	failErr := errors.New("primary down")

	t.Run("falls back", func(t *testing.T) {
		primary := tts.WithError(failErr)
		backup := tts.NewMock()
		chain, err := tts.NewChain(nil, primary, backup)
		if err != nil {
			t.Fatalf("NewChain: %v", err)
		}
		stream, err := chain.Stream(ctx, "hi")
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		stream.Close()
		if backup.CallCount("Stream") != 1 {
			t.Errorf("expected backup to be used")
		}
	})

	t.Run("aggregates errors", func(t *testing.T) {
		otherErr := errors.New("backup down")
		chain, _ := tts.NewChain(nil, tts.WithError(failErr), tts.WithError(otherErr))
		_, err := chain.Synthesize(ctx, "hi")
		var chainErr *tts.ChainError
		if !errors.As(err, &chainErr) {
			t.Fatalf("expected ChainError, got %T", err)
		}
		if len(chainErr.Errors) != 2 {
			t.Errorf("expected 2 errors, got %d", len(chainErr.Errors))
		}
		if !errors.Is(err, failErr) || !errors.Is(err, otherErr) {
			t.Errorf("expected both errors to be visible: %v", err)
		}
	})

	t.Run("healthy if any provider is", func(t *testing.T) {
		chain, _ := tts.NewChain(nil, tts.WithError(failErr), tts.NewMock())
		if err := chain.Health(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("requires providers", func(t *testing.T) {
		if _, err := tts.NewChain(nil); !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})
}

func TestConfigValidation(t *testing.T) {
	if _, err := tts.NewElevenLabs(tts.WithVoice("v")); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if _, err := tts.NewElevenLabs(tts.WithAPIKey("k")); !errors.Is(err, tts.ErrNoVoiceID) {
		t.Errorf("expected ErrNoVoiceID, got %v", err)
	}
	_, err := tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithVoice("v"), tts.WithOutputFormat("mp3_44100_128"))
	if !errors.Is(err, tts.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestElevenLabsStream(t *testing.T) {
	audio := make([]byte, 9600)
	for i := range audio {
		audio[i] = byte(i)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/voice-1/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_24000" {
			t.Errorf("expected pcm_24000, got %q", got)
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		var body struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "Hello there" {
			t.Errorf("unexpected text %q", body.Text)
		}
		w.Write(audio)
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(
		tts.WithAPIKey("secret"),
		tts.WithVoice("voice-1"),
		tts.WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	defer p.Close()

	stream, err := p.Stream(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	if stream.Format().SampleRate != 24000 {
		t.Errorf("expected 24000, got %d", stream.Format().SampleRate)
	}
	var got []byte
	for {
		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if chunk == nil {
			break
		}
		got = append(got, chunk...)
	}
	if len(got) != len(audio) {
		t.Errorf("expected %d bytes, got %d", len(audio), len(got))
	}
}

func TestElevenLabsRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"detail":{"status":"busy","message":"try later"}}`))
			return
		}
		w.Write(make([]byte, 480))
	}))
	defer srv.Close()

	p, _ := tts.NewElevenLabs(
		tts.WithAPIKey("k"),
		tts.WithVoice("v"),
		tts.WithBaseURL(srv.URL),
		tts.WithRetry(2, time.Millisecond),
	)

	res, err := p.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
	if res.Duration != 10*time.Millisecond {
		t.Errorf("expected 10ms, got %v", res.Duration)
	}
}

func TestElevenLabsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"bad key"}}`))
	}))
	defer srv.Close()

	p, _ := tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithVoice("v"), tts.WithBaseURL(srv.URL))
	_, err := p.Stream(context.Background(), "hi")

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.IsRetryable() {
		t.Errorf("unexpected classification: %+v", apiErr)
	}
	if apiErr.Message != "bad key" || apiErr.Code != "invalid_api_key" {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
}

func wav(pcm []byte) []byte {
	h := []byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\xc0\x5d\x00\x00\x80\xbb\x00\x00\x02\x00\x10\x00data")
	n := len(pcm)
	h = append(h, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	return append(h, pcm...)
}

func TestGoogleSynthesize(t *testing.T) {
	pcm := make([]byte, 4800)
	for i := range pcm {
		pcm[i] = 7
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/v1/text:synthesize"):
			if r.URL.Query().Get("key") != "gkey" {
				t.Errorf("missing key param: %s", r.URL.RawQuery)
			}
			var req struct {
				Input struct {
					Text string `json:"text"`
				} `json:"input"`
				Voice struct {
					LanguageCode string `json:"languageCode"`
					Name         string `json:"name"`
				} `json:"voice"`
				AudioConfig struct {
					AudioEncoding   string `json:"audioEncoding"`
					SampleRateHertz int    `json:"sampleRateHertz"`
				} `json:"audioConfig"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			if req.Input.Text != "Good morning" || req.Voice.Name != "en-US-Neural2-C" {
				t.Errorf("unexpected request: %+v", req)
			}
			if req.AudioConfig.AudioEncoding != "LINEAR16" || req.AudioConfig.SampleRateHertz != 24000 {
				t.Errorf("unexpected audio config: %+v", req.AudioConfig)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"audioContent": base64.StdEncoding.EncodeToString(wav(pcm)),
			})
		case strings.HasSuffix(r.URL.Path, "/v1/voices"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"voices":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := tts.NewGoogle(ctx,
		tts.WithAPIKey("gkey"),
		tts.WithBaseURL(srv.URL+"/"),
		tts.WithVoice("en-US-Neural2-C"),
	)
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}

	res, err := p.Synthesize(ctx, "Good morning")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(res.Audio) != len(pcm) {
		t.Errorf("expected WAV header stripped, got %d bytes", len(res.Audio))
	}
	if res.Duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", res.Duration)
	}

	if err := p.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestGoogleAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"permission denied","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := tts.NewGoogle(ctx, tts.WithAPIKey("gkey"), tts.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}

	_, err = p.Stream(ctx, "hi")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 403 || apiErr.Provider != "google" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}
