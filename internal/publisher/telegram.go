package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/contentforge/backend/internal/models"
	"github.com/contentforge/backend/internal/services"
)

// TelegramAdapter posts artifact bodies to a channel via the bot API. The
// target's endpoint is the chat id, the credential is the bot token.
type TelegramAdapter struct {
	apiBase string
	retry   *services.RetryingClient
}

func NewTelegramAdapter(retry *services.RetryingClient) *TelegramAdapter {
	return &TelegramAdapter{
		apiBase: "https://api.telegram.org",
		retry:   retry,
	}
}

func (a *TelegramAdapter) Publish(ctx context.Context, target *models.PublishTarget, artifact *models.GenerationArtifact) (string, error) {
	if target.Credential == "" || target.Endpoint == "" {
		return "", fmt.Errorf("%w: telegram target misconfigured", services.ErrPublishFailed)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", a.apiBase, target.Credential)
	form := url.Values{}
	form.Set("chat_id", target.Endpoint)
	form.Set("text", artifact.Body)
	form.Set("parse_mode", "Markdown")
	encoded := form.Encode()

	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrPublishFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: telegram status %d", services.ErrPublishFailed, resp.StatusCode)
	}

	var parsed struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode telegram response: %v", services.ErrPublishFailed, err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("%w: telegram rejected message", services.ErrPublishFailed)
	}

	chat := strings.TrimPrefix(target.Endpoint, "@")
	return fmt.Sprintf("https://t.me/%s/%d", chat, parsed.Result.MessageID), nil
}

func (a *TelegramAdapter) Validate(ctx context.Context, target *models.PublishTarget) error {
	if target.Credential == "" {
		return fmt.Errorf("telegram target has no bot token")
	}
	endpoint := fmt.Sprintf("%s/bot%s/getMe", a.apiBase, target.Credential)
	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return fmt.Errorf("telegram validation failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram validation status %d", resp.StatusCode)
	}
	return nil
}

func (a *TelegramAdapter) Delete(ctx context.Context, target *models.PublishTarget, remoteID string) error {
	endpoint := fmt.Sprintf("%s/bot%s/deleteMessage", a.apiBase, target.Credential)
	form := url.Values{}
	form.Set("chat_id", target.Endpoint)
	form.Set("message_id", remoteID)
	encoded := form.Encode()

	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("telegram delete failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram delete status %d", resp.StatusCode)
	}
	return nil
}
