package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/RamiBarakat/transporter-backend/config"
)

// Annotator rewrites rule-based insights into richer prose. Implementations
// must be best-effort: on any failure they return the input insights
// unchanged, never an error that blocks the dashboard.
type Annotator interface {
	Annotate(ctx context.Context, insights []Insight, start, end time.Time) ([]Insight, error)
}

// NoopAnnotator passes insights through untouched. Used when no generative
// backend is configured.
type NoopAnnotator struct{}

func (NoopAnnotator) Annotate(_ context.Context, insights []Insight, _, _ time.Time) ([]Insight, error) {
	return insights, nil
}

// GeminiAnnotator rewrites insights through the Gemini generateContent API
type GeminiAnnotator struct {
	apiKey string
	model  string
	client *http.Client
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiAnnotator builds the annotator from config. Returns a
// NoopAnnotator when no API key is configured.
func NewGeminiAnnotator() Annotator {
	cfg := config.AppConfig.Insight
	if cfg.GeminiAPIKey == "" {
		log.Printf("⚠️ GEMINI_API_KEY not set, insight annotation disabled")
		return NoopAnnotator{}
	}

	return &GeminiAnnotator{
		apiKey: cfg.GeminiAPIKey,
		model:  cfg.Model,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Annotate sends the rule-based insights to Gemini and parses the rewritten
// set. Any failure along the way (HTTP error, missing candidates, malformed
// JSON) falls back to the input insights.
func (g *GeminiAnnotator) Annotate(ctx context.Context, insights []Insight, start, end time.Time) ([]Insight, error) {
	prompt := g.buildPrompt(insights, start, end)

	response, err := g.callGeminiAPI(ctx, prompt)
	if err != nil {
		log.Printf("⚠️ Insight annotation failed, serving rule-based insights: %v", err)
		return insights, nil
	}

	annotated, err := parseAnnotatedInsights(response, insights)
	if err != nil {
		log.Printf("⚠️ Failed to parse annotated insights, serving rule-based insights: %v", err)
		return insights, nil
	}

	return annotated, nil
}

func (g *GeminiAnnotator) buildPrompt(insights []Insight, start, end time.Time) string {
	data, _ := json.Marshal(insights)

	return fmt.Sprintf(`You are an analyst for a transportation logistics platform.
Below are rule-derived operational insights for the period %s to %s.

Rewrite each insight with a sharper title, a description that explains the
operational impact, and a concrete recommendation. Keep the same id, severity
and metric for each entry. Do not invent insights or drop any.

Insights:
%s

Respond with ONLY a JSON array of objects with the fields:
id, title, description, severity (high|medium|low), recommendation, metric`,
		start.Format("2006-01-02"), end.Format("2006-01-02"), string(data))
}

func (g *GeminiAnnotator) callGeminiAPI(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", g.model, g.apiKey)

	request := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.4,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error: %s", string(body))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// parseAnnotatedInsights validates the model output against the original set:
// same count, every id accounted for, severities within the allowed values.
// Anything off means the whole response is discarded.
func parseAnnotatedInsights(response string, original []Insight) ([]Insight, error) {
	// Models sometimes wrap JSON in a markdown fence
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")

	var annotated []Insight
	if err := json.Unmarshal([]byte(response), &annotated); err != nil {
		return nil, err
	}

	if len(annotated) != len(original) {
		return nil, fmt.Errorf("expected %d insights, got %d", len(original), len(annotated))
	}

	byID := make(map[string]Insight, len(original))
	for _, in := range original {
		byID[in.ID] = in
	}
	for i, in := range annotated {
		source, ok := byID[in.ID]
		if !ok {
			return nil, fmt.Errorf("unknown insight id %q", in.ID)
		}
		switch in.Severity {
		case "high", "medium", "low":
		default:
			return nil, fmt.Errorf("invalid severity %q", in.Severity)
		}
		// Metrics are facts; the model does not get to change them
		annotated[i].Metric = source.Metric
	}

	return annotated, nil
}
