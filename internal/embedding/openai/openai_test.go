package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"studyrag/internal/domain"
)

func TestClientEmbed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"nomic","data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "nomic"})
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Embed(context.Background(), "search_query: xylem").Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 3 || v[0] != 0.25 || v[1] != -0.5 || v[2] != 1 {
		t.Errorf("unexpected vector %v", v)
	}
	if got["model"] != "nomic" {
		t.Errorf("unexpected model %v", got["model"])
	}
	if c.Name() != "openai:nomic" {
		t.Errorf("unexpected name %q", c.Name())
	}
}

func TestClientEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	res := c.Embed(context.Background(), "phloem")
	if !errors.Is(res.Error(), domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", res.Error())
	}
}

func TestNewClientRequiresKeyForDefaultEndpoint(t *testing.T) {
	t.Setenv("STUDYRAG_TEST_EMPTY_KEY", "")
	if _, err := NewClient(Config{APIKeyEnv: "STUDYRAG_TEST_EMPTY_KEY"}); err == nil {
		t.Fatal("expected an error without API key")
	}
}
