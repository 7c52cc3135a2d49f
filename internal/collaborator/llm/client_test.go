package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

func TestCleanCode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "python_fence", in: "```python\nfrom manim import *\n```", want: "from manim import *"},
		{name: "bare_fence", in: "```\nx = 1\n```", want: "x = 1"},
		{name: "no_fence", in: "  x = 1  ", want: "x = 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanCode(tc.in); got != tc.want {
				t.Fatalf("CleanCode = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```python\\nclass GenScene(Scene): pass\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	code, err := c.Generate(context.Background(), "explain pythagoras", entity.LengthShort)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "class GenScene(Scene): pass" {
		t.Fatalf("code = %q", code)
	}
	if got.Model != "m" || got.Temperature != 0 || len(got.Messages) != 1 {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, "explain pythagoras") ||
		!strings.Contains(got.Messages[0].Content, "5-10 seconds") {
		t.Fatalf("prompt missing user text or guideline")
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c, _ := New(Options{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "p", entity.LengthMedium)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want upstream message", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing key")
	}
}
