package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultGeminiTimeout = 15 * time.Second
)

// generator produces model text for a prompt.
type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GeminiConfig configures the Gemini extractor.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiExtractor asks a Gemini model for the record in JSON mode and falls
// back to another extractor when the model fails or answers with invalid
// JSON.
type GeminiExtractor struct {
	gen      generator
	fallback Extractor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGeminiExtractor creates a Gemini-backed extractor. fallback may be nil,
// in which case the heuristic extractor is used.
func NewGeminiExtractor(ctx context.Context, cfg GeminiConfig, fallback Extractor, logger *slog.Logger) (*GeminiExtractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newGeminiExtractor(&genaiGenerator{client: client, model: cfg.Model}, cfg.Timeout, fallback, logger), nil
}

func newGeminiExtractor(gen generator, timeout time.Duration, fallback Extractor, logger *slog.Logger) *GeminiExtractor {
	if fallback == nil {
		fallback = NewHeuristicExtractor()
	}
	if timeout <= 0 {
		timeout = DefaultGeminiTimeout
	}
	return &GeminiExtractor{gen: gen, fallback: fallback, timeout: timeout, logger: logger}
}

// Extract returns the model's record, or the fallback's on any failure.
func (g *GeminiExtractor) Extract(ctx context.Context, in Input) (Record, error) {
	if len(in.callerText()) == 0 {
		return g.fallback.Extract(ctx, in)
	}

	genCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// The fallback gets ctx, not the model deadline
	text, err := g.gen.Generate(genCtx, buildPrompt(in))
	if err != nil {
		g.logger.Warn("Gemini summary failed, using fallback", slog.String("error", err.Error()))
		return g.fallback.Extract(ctx, in)
	}

	r, err := parseRecord(text)
	if err != nil {
		g.logger.Warn("Gemini returned an invalid summary, using fallback", slog.String("error", err.Error()))
		return g.fallback.Extract(ctx, in)
	}

	return finalize(r, in), nil
}

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Summarize this phone call to a business receptionist. ")
	b.WriteString("Respond with a single JSON object with the keys caller_name, company, phone, summary, topics and details. ")
	fmt.Fprintf(&b, "summary must be at most %d characters. topics is a list of short lowercase labels. ", MaxSummaryLength)
	b.WriteString("details maps short keys such as reference, amount or date to string values. Use empty strings for unknown values.\n")
	if in.CompanyName != "" {
		fmt.Fprintf(&b, "The business is %s.\n", in.CompanyName)
	}
	if in.CallerNumber != "" {
		fmt.Fprintf(&b, "Caller ID: %s\n", in.CallerNumber)
	}
	b.WriteString("\nTranscript:\n")
	for _, t := range in.Transcript {
		if text := strings.TrimSpace(t.Text); text != "" {
			fmt.Fprintf(&b, "%s: %s\n", t.Speaker, text)
		}
	}
	return b.String()
}

func parseRecord(text string) (Record, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var r Record
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode summary: %w", err)
	}
	if strings.TrimSpace(r.Summary) == "" {
		return Record{}, fmt.Errorf("summary is empty")
	}
	return r, nil
}
