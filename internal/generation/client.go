package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/contentforge/backend/internal/models"
	"github.com/contentforge/backend/internal/services"
	"github.com/spf13/viper"
)

// Client calls an OpenAI-compatible chat-completions backend to produce draft
// content. Calls are synchronous and may take tens of seconds; failures
// surface as ErrGenerationFailed for the coordinator's refund path.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	retry    *services.RetryingClient
}

var _ services.ContentGenerator = (*Client)(nil)

func NewClient(retry *services.RetryingClient) *Client {
	viper.SetDefault("generation.endpoint", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("generation.model", "gpt-4o-mini")

	return &Client{
		endpoint: viper.GetString("generation.endpoint"),
		model:    viper.GetString("generation.model"),
		apiKey:   viper.GetString("generation.api_key"),
		retry:    retry,
	}
}

// Generate produces a draft for the content unit. The prompt is assembled from
// the unit's configured material; the size metrics come from the produced body.
func (c *Client) Generate(ctx context.Context, unit *models.ContentUnit, kind models.PipelineKind) (*services.GeneratedContent, error) {
	if c.apiKey == "" || c.endpoint == "" {
		return nil, fmt.Errorf("%w: generation backend misconfigured", services.ErrGenerationFailed)
	}

	payload, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt(kind)},
			{"role": "user", "content": buildPrompt(unit)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generation payload: %w", err)
	}

	resp, err := c.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		log.Printf("[GENERATION] Backend call failed: %v", err)
		return nil, fmt.Errorf("%w: %v", services.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[GENERATION] Backend error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		return nil, fmt.Errorf("%w: backend status %d", services.ErrGenerationFailed, resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", services.ErrGenerationFailed, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: backend returned no content", services.ErrGenerationFailed)
	}

	body := parsed.Choices[0].Message.Content
	return &services.GeneratedContent{
		Body:       body,
		WordCount:  len(strings.Fields(body)),
		ImageCount: unit.ImageCount,
	}, nil
}

func systemPrompt(kind models.PipelineKind) string {
	if kind == models.PipelineArticle {
		return "You write long-form articles ready for publication. Return only the article text."
	}
	return "You write short social media posts. Return only the post text."
}

func buildPrompt(unit *models.ContentUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", unit.Title)
	fmt.Fprintf(&b, "Description: %s\n", unit.Description)
	if len(unit.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(unit.Keywords, ", "))
	}
	fmt.Fprintf(&b, "Target length: %d words\n", unit.WordCount)
	if unit.ImagePreference != "" {
		fmt.Fprintf(&b, "Image preference: %s\n", unit.ImagePreference)
	}
	return b.String()
}
