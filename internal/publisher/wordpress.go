package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/contentforge/backend/internal/models"
	"github.com/contentforge/backend/internal/services"
)

// WordPressAdapter publishes through the WP REST API. The target's endpoint is
// the site base URL, the credential is "user:application-password".
type WordPressAdapter struct {
	retry *services.RetryingClient
}

func NewWordPressAdapter(retry *services.RetryingClient) *WordPressAdapter {
	return &WordPressAdapter{retry: retry}
}

func (a *WordPressAdapter) Publish(ctx context.Context, target *models.PublishTarget, artifact *models.GenerationArtifact) (string, error) {
	if target.Endpoint == "" || target.Credential == "" {
		return "", fmt.Errorf("%w: wordpress target misconfigured", services.ErrPublishFailed)
	}

	title, content := splitTitle(artifact.Body)
	payload, err := json.Marshal(map[string]string{
		"title":   title,
		"content": content,
		"status":  "publish",
	})
	if err != nil {
		return "", fmt.Errorf("marshal wordpress payload: %w", err)
	}

	endpoint := strings.TrimRight(target.Endpoint, "/") + "/wp-json/wp/v2/posts"
	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		setBasicAuth(req, target.Credential)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrPublishFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: wordpress status %d", services.ErrPublishFailed, resp.StatusCode)
	}

	var parsed struct {
		Link string `json:"link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode wordpress response: %v", services.ErrPublishFailed, err)
	}
	return parsed.Link, nil
}

func (a *WordPressAdapter) Validate(ctx context.Context, target *models.PublishTarget) error {
	endpoint := strings.TrimRight(target.Endpoint, "/") + "/wp-json/wp/v2/users/me"
	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		setBasicAuth(req, target.Credential)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("wordpress validation failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wordpress validation status %d", resp.StatusCode)
	}
	return nil
}

func (a *WordPressAdapter) Delete(ctx context.Context, target *models.PublishTarget, remoteID string) error {
	endpoint := strings.TrimRight(target.Endpoint, "/") + "/wp-json/wp/v2/posts/" + remoteID
	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return nil, err
		}
		setBasicAuth(req, target.Credential)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("wordpress delete failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wordpress delete status %d", resp.StatusCode)
	}
	return nil
}

func setBasicAuth(req *http.Request, credential string) {
	if user, pass, ok := strings.Cut(credential, ":"); ok {
		req.SetBasicAuth(user, pass)
	}
}

// splitTitle treats the first line of the draft as the post title.
func splitTitle(body string) (string, string) {
	body = strings.TrimSpace(body)
	if first, rest, ok := strings.Cut(body, "\n"); ok {
		title := strings.TrimSpace(strings.TrimLeft(first, "# "))
		if title != "" {
			return title, strings.TrimSpace(rest)
		}
	}
	return "Untitled", body
}
