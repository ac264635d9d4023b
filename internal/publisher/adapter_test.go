package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contentforge/backend/internal/config"
	"github.com/contentforge/backend/internal/models"
	"github.com/contentforge/backend/internal/services"
	"github.com/stretchr/testify/assert"
)

func testRetry() *services.RetryingClient {
	return services.NewRetryingClient(&config.PipelineConfig{
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
		RetryMaxAttempts: 2,
	})
}

func draft(body string) *models.GenerationArtifact {
	return &models.GenerationArtifact{
		ID:     "artifact1",
		Body:   body,
		Status: models.ArtifactDraft,
	}
}

func TestTelegramAdapter_Publish(t *testing.T) {
	t.Run("successful post", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "@mychannel", r.FormValue("chat_id"))
			assert.Equal(t, "hello world", r.FormValue("text"))

			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok":     true,
				"result": map[string]interface{}{"message_id": 42},
			})
		}))
		defer server.Close()

		adapter := NewTelegramAdapter(testRetry())
		adapter.apiBase = server.URL

		target := &models.PublishTarget{Type: models.TargetTelegram, Endpoint: "@mychannel", Credential: "token123"}
		url, err := adapter.Publish(context.Background(), target, draft("hello world"))
		assert.NoError(t, err)
		assert.Equal(t, "https://t.me/mychannel/42", url)
	})

	t.Run("api rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": false})
		}))
		defer server.Close()

		adapter := NewTelegramAdapter(testRetry())
		adapter.apiBase = server.URL

		target := &models.PublishTarget{Type: models.TargetTelegram, Endpoint: "@mychannel", Credential: "token123"}
		_, err := adapter.Publish(context.Background(), target, draft("hello"))
		assert.ErrorIs(t, err, services.ErrPublishFailed)
	})

	t.Run("misconfigured target", func(t *testing.T) {
		adapter := NewTelegramAdapter(testRetry())

		target := &models.PublishTarget{Type: models.TargetTelegram}
		_, err := adapter.Publish(context.Background(), target, draft("hello"))
		assert.ErrorIs(t, err, services.ErrPublishFailed)
	})
}

func TestWordPressAdapter_Publish(t *testing.T) {
	t.Run("first line becomes the title", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "editor", user)
			assert.Equal(t, "app-pass", pass)

			var payload map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "My Headline", payload["title"])
			assert.Equal(t, "The body.", payload["content"])
			assert.Equal(t, "publish", payload["status"])

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"link": "https://blog.example.com/my-headline"})
		}))
		defer server.Close()

		adapter := NewWordPressAdapter(testRetry())
		target := &models.PublishTarget{Type: models.TargetWordPress, Endpoint: server.URL, Credential: "editor:app-pass"}

		url, err := adapter.Publish(context.Background(), target, draft("# My Headline\nThe body."))
		assert.NoError(t, err)
		assert.Equal(t, "https://blog.example.com/my-headline", url)
	})

	t.Run("auth failure is not retried into success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		adapter := NewWordPressAdapter(testRetry())
		target := &models.PublishTarget{Type: models.TargetWordPress, Endpoint: server.URL, Credential: "editor:wrong"}

		_, err := adapter.Publish(context.Background(), target, draft("post"))
		assert.ErrorIs(t, err, services.ErrPublishFailed)
	})
}

func TestSplitTitle(t *testing.T) {
	t.Run("heading line", func(t *testing.T) {
		title, content := splitTitle("# Headline\nBody text")
		assert.Equal(t, "Headline", title)
		assert.Equal(t, "Body text", content)
	})

	t.Run("single line", func(t *testing.T) {
		title, content := splitTitle("Just one line")
		assert.Equal(t, "Untitled", title)
		assert.Equal(t, "Just one line", content)
	})
}

func TestVKAdapter_Publish(t *testing.T) {
	t.Run("wall post", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/wall.post", r.URL.Path)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "-12345", r.FormValue("owner_id"))
			assert.Equal(t, "vk-token", r.FormValue("access_token"))

			json.NewEncoder(w).Encode(map[string]interface{}{
				"response": map[string]interface{}{"post_id": 7},
			})
		}))
		defer server.Close()

		adapter := NewVKAdapter(testRetry())
		adapter.apiBase = server.URL

		target := &models.PublishTarget{Type: models.TargetVK, Endpoint: "12345", Credential: "vk-token"}
		url, err := adapter.Publish(context.Background(), target, draft("post body"))
		assert.NoError(t, err)
		assert.Equal(t, "https://vk.com/wall-12345_7", url)
	})

	t.Run("api error payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"error_code": 15, "error_msg": "access denied"},
			})
		}))
		defer server.Close()

		adapter := NewVKAdapter(testRetry())
		adapter.apiBase = server.URL

		target := &models.PublishTarget{Type: models.TargetVK, Endpoint: "12345", Credential: "vk-token"}
		_, err := adapter.Publish(context.Background(), target, draft("post body"))
		assert.ErrorIs(t, err, services.ErrPublishFailed)
		assert.Contains(t, err.Error(), "access denied")
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(testRetry())

	t.Run("unknown target type", func(t *testing.T) {
		target := &models.PublishTarget{Type: "MYSPACE"}
		_, err := registry.Publish(context.Background(), target, draft("post"))
		assert.ErrorIs(t, err, services.ErrPublishFailed)
	})

	t.Run("covers all configured platforms", func(t *testing.T) {
		for _, targetType := range []models.TargetType{models.TargetTelegram, models.TargetWordPress, models.TargetVK} {
			_, ok := registry.adapters[targetType]
			assert.True(t, ok, "missing adapter for %s", targetType)
		}
	})
}
