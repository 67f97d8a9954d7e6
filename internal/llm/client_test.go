package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carelyhq/carely/internal/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = baseURL
	return cfg
}

func TestNewClientRequiresKey(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  Hello, Margaret!  "}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	reply, err := c.Generate(context.Background(), "you are a companion", "say hello", 64)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if reply != "Hello, Margaret!" {
		t.Fatalf("reply=%q", reply)
	}
}

func TestGenerateUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Generate(context.Background(), "", "hello", 64)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("error %v does not match ErrGenerationUnavailable", err)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Generate(context.Background(), "", "hello", 64); !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("error %v does not match ErrGenerationUnavailable", err)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.3, 0.4}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	vectors, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("len=%d", len(vectors))
	}
	// out-of-order data entries must land at their declared index
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.3 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	c, err := NewClient(testConfig("http://127.0.0.1:0"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Embed(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
