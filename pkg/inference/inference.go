// Package inference provides the reply generators used by the turn engine.
//
// A Generator turns a rendered prompt into a reply string. Providers exist
// for Gemini (through the google.golang.org/genai SDK) and for any
// OpenAI-compatible chat completions API (OpenAI, Ollama, vLLM, Groq, ...).
// Chain adds ordered fallback across providers.
//
// Example usage:
//
//	gen, _ := inference.NewGemini(ctx,
//	    inference.WithAPIKey(os.Getenv("GOOGLE_API_KEY")),
//	    inference.WithModel("gemini-1.5-flash"),
//	)
//	defer gen.Close()
//
//	reply, err := gen.Generate(ctx, "User: hello\nAssistant:")
package inference

import "context"

// Generator produces a reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider is a Generator backed by a remote service.
type Provider interface {
	Generator

	// Name identifies the provider in logs and errors.
	Name() string

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}
