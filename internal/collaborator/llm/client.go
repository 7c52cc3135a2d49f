// Package llm turns a prompt into Manim scene code through an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

const defaultModel = "moonshotai/kimi-k2-instruct-0905"

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("llm api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		model:   model,
		client:  client,
	}, nil
}

// Generate returns the scene code for prompt. Temperature is pinned to 0 so
// the same prompt yields the same code.
func (c *Client) Generate(ctx context.Context, prompt string, length entity.Length) (string, error) {
	payload := chatRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(prompt, length)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("llm status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("llm status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}

	code := CleanCode(out.Choices[0].Message.Content)
	if code == "" {
		return "", errors.New("llm returned empty code")
	}
	return code, nil
}

// CleanCode strips a surrounding markdown fence, if any.
func CleanCode(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```python"):
		s = s[len("```python"):]
	case strings.HasPrefix(s, "```"):
		s = s[3:]
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func buildPrompt(prompt string, length entity.Length) string {
	guide := length.Guideline()
	r := strings.NewReplacer("{prompt}", prompt, "{length_instruction}", guide)
	return r.Replace(promptTemplate)
}

const promptTemplate = `
You are an expert Manim (Community Edition) Animation Developer.
Your goal is to create stunning, high-quality and accurate educational videos.

User Prompt: {prompt}
Target Length: {length_instruction}

### VISUAL STYLE GUIDE (STRICT):
1. Colors: use Manim's standard colors (BLUE, TEAL, YELLOW, RED, GREEN). Avoid default white for everything.
2. Typography: use Text or MarkupText with clean fonts, scaled sensibly.
3. Layout:
   - Clear distinct sections with self.play(FadeOut(...)) before new ones start.
   - Use VGroup to arrange elements: group.arrange(DOWN, buff=0.5).
   - Center main content.
4. Animations:
   - Write for text, Create for shapes, DrawBorderThenFill for boxes.
   - Transform or ReplacementTransform to show changes.
   - Always use self.wait(...) so the viewer can read.

### CRITICAL REQUIREMENTS:
1. Imports: start with "from manim import *".
2. Class: define exactly one class "class GenScene(Scene):".
3. Method: implement "def construct(self):".
4. Assets: no external images or sounds. Use only Manim primitives.
5. Length: {length_instruction}
6. Robustness: define every variable before use, avoid infinite loops. The math module is available.

### PLAN BEFORE YOU CODE:
Write the plan as comments at the top of the code:
# PLAN:
# 1. Intro (0-5s): ...
# 2. Main Concept (5-X s): ...
# Total expected time: ~Y seconds

Return ONLY the Python code. No markdown backticks, no text before or after.
`
