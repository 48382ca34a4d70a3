package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lazypower/attend/internal/config"
)

func TestNewClientProviders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
		want string
	}{
		{"claude-cli", config.LLMConfig{Provider: "claude-cli", Model: "haiku"}, "*llm.ClaudeCLI"},
		{"anthropic", config.LLMConfig{Provider: "anthropic", AnthropicKey: "test-key"}, "*llm.Anthropic"},
		{"ollama", config.LLMConfig{Provider: "ollama", OllamaModel: "llama3.2"}, "*llm.Ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			switch client.(type) {
			case *ClaudeCLI, *Anthropic, *Ollama:
			default:
				t.Errorf("unexpected client %T", client)
			}
		})
	}
}

func TestNewClientErrors(t *testing.T) {
	if _, err := NewClient(config.LLMConfig{Provider: "anthropic"}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewClient(config.LLMConfig{Provider: "gpt"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewClient(config.LLMConfig{Provider: "none"}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("none provider: err = %v, want ErrNoProvider", err)
	}
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "m" {
			t.Errorf("model = %v", body["model"])
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"[]"}],"usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	a := NewAnthropic("k", "m", DefaultOptions())
	a.endpoint = srv.URL
	resp, err := a.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "[]" || resp.TokensUsed != 5 || resp.Provider != "anthropic" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOllamaCompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "llama3.2", DefaultOptions())
	_, err := o.Complete(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want status 404", err)
	}
}

func TestClaudeCLIArgs(t *testing.T) {
	c := NewClaudeCLI("haiku", DefaultOptions())
	got := strings.Join(c.args(), " ")
	if got != "-p --model haiku --max-turns 1 --output-format text" {
		t.Errorf("args = %q", got)
	}
}

func TestFocusExtractionPrompt(t *testing.T) {
	p := FocusExtractionPrompt("  what about Flutter?  ", []string{"first", "second"}, []string{"Flutter"})
	for _, want := range []string{"1. first", "2. second", "what about Flutter?", "ENTITIES ALREADY DETECTED: Flutter", "JSON array"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if !strings.HasPrefix(p, InternalSentinel) {
		t.Errorf("prompt does not start with %q", InternalSentinel)
	}

	p = FocusExtractionPrompt("hi", nil, nil)
	if !strings.Contains(p, "(no earlier turns)") || !strings.Contains(p, "DETECTED: (none)") {
		t.Errorf("empty context not rendered: %s", p)
	}
}

func TestMockClient(t *testing.T) {
	mock := &MockClient{
		Response: &Response{Content: "test response", Provider: "mock"},
	}

	resp, err := mock.Complete(context.Background(), "test prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "test response" {
		t.Errorf("content = %q, want %q", resp.Content, "test response")
	}
	if len(mock.Calls) != 1 || mock.Calls[0] != "test prompt" {
		t.Errorf("calls = %v", mock.Calls)
	}
}
