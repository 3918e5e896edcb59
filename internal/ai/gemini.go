package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/example/ride-ops/internal/observability"
)

// ErrMalformedResponse is returned when the model reply holds no usable JSON.
var ErrMalformedResponse = errors.New("ai: malformed model response")

// Suggestion is one piece of marketing copy proposed by the model.
type Suggestion struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Channel string `json:"channel"`
}

// GeminiConfig configures a GeminiClient. BaseURL overrides the public
// Gemini API endpoint.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient generates text with the Gemini API through the genai SDK.
// The key travels in the x-goog-api-key header, never in the URL.
type GeminiClient struct {
	model  string
	models *genai.Models
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/", APIVersion: "v1beta"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{model: cfg.Model, models: client.Models}, nil
}

// Generate sends prompt, prefixed by optional context, and returns the text
// of the first candidate.
func (g *GeminiClient) Generate(ctx context.Context, prompt, extra string) (text string, err error) {
	defer func() { observability.ProviderCalls.WithLabelValues("gemini", observability.Outcome(err)).Inc() }()

	full := prompt
	if extra = strings.TrimSpace(extra); extra != "" {
		full = "Context:\n" + extra + "\n\n" + prompt
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(full), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrMalformedResponse
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}

const suggestInstructions = `You write marketing copy for a Senegalese ride-sharing service.
Reply with a JSON array of objects with the keys "title", "body" and "channel"
(one of "email", "sms", "push", "social"). Do not add any other text.`

// SuggestCopy asks the model for marketing suggestions and parses them.
func (g *GeminiClient) SuggestCopy(ctx context.Context, prompt, extra string) ([]Suggestion, error) {
	text, err := g.Generate(ctx, suggestInstructions+"\n\n"+prompt, extra)
	if err != nil {
		return nil, err
	}
	return ParseSuggestions(text)
}

// ParseSuggestions extracts suggestions from a model reply. A single object
// is accepted as a one-element list. Any failure yields ErrMalformedResponse
// and no partial result.
func ParseSuggestions(text string) ([]Suggestion, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, ErrMalformedResponse
	}
	var list []Suggestion
	if raw[0] == '{' {
		var one Suggestion
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return nil, ErrMalformedResponse
		}
		list = []Suggestion{one}
	} else if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, ErrMalformedResponse
	}
	for _, s := range list {
		if strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.Body) == "" {
			return nil, ErrMalformedResponse
		}
	}
	if len(list) == 0 {
		return nil, ErrMalformedResponse
	}
	return list, nil
}

// ExtractJSON returns the first JSON array or object in text, looking inside
// a ``` fence first.
func ExtractJSON(text string) (string, bool) {
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "[{") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			if s, ok := firstValue(rest[:j]); ok {
				return s, true
			}
		}
	}
	return firstValue(text)
}

func firstValue(text string) (string, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var v json.RawMessage
		if err := dec.Decode(&v); err == nil {
			return string(v), true
		}
	}
	return "", false
}
