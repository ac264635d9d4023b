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

const vkAPIVersion = "5.199"

// VKAdapter publishes to a community wall. The target's endpoint is the group
// id (negative owner id on the wall API), the credential is an access token.
type VKAdapter struct {
	apiBase string
	retry   *services.RetryingClient
}

func NewVKAdapter(retry *services.RetryingClient) *VKAdapter {
	return &VKAdapter{
		apiBase: "https://api.vk.com/method",
		retry:   retry,
	}
}

func (a *VKAdapter) Publish(ctx context.Context, target *models.PublishTarget, artifact *models.GenerationArtifact) (string, error) {
	if target.Credential == "" || target.Endpoint == "" {
		return "", fmt.Errorf("%w: vk target misconfigured", services.ErrPublishFailed)
	}

	form := url.Values{}
	form.Set("owner_id", "-"+strings.TrimPrefix(target.Endpoint, "-"))
	form.Set("from_group", "1")
	form.Set("message", artifact.Body)
	form.Set("access_token", target.Credential)
	form.Set("v", vkAPIVersion)
	encoded := form.Encode()

	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+"/wall.post", strings.NewReader(encoded))
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

	var parsed struct {
		Response struct {
			PostID int64 `json:"post_id"`
		} `json:"response"`
		Error *struct {
			Code    int    `json:"error_code"`
			Message string `json:"error_msg"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode vk response: %v", services.ErrPublishFailed, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: vk error %d: %s", services.ErrPublishFailed, parsed.Error.Code, parsed.Error.Message)
	}

	group := strings.TrimPrefix(target.Endpoint, "-")
	return fmt.Sprintf("https://vk.com/wall-%s_%d", group, parsed.Response.PostID), nil
}

func (a *VKAdapter) Validate(ctx context.Context, target *models.PublishTarget) error {
	form := url.Values{}
	form.Set("group_id", strings.TrimPrefix(target.Endpoint, "-"))
	form.Set("access_token", target.Credential)
	form.Set("v", vkAPIVersion)

	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+"/groups.getById", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("vk validation failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vk validation status %d", resp.StatusCode)
	}
	return nil
}

func (a *VKAdapter) Delete(ctx context.Context, target *models.PublishTarget, remoteID string) error {
	form := url.Values{}
	form.Set("owner_id", "-"+strings.TrimPrefix(target.Endpoint, "-"))
	form.Set("post_id", remoteID)
	form.Set("access_token", target.Credential)
	form.Set("v", vkAPIVersion)

	resp, err := a.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+"/wall.delete", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("vk delete failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vk delete status %d", resp.StatusCode)
	}
	return nil
}
