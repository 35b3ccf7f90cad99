package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/widefit/pkg/client"
)

func newTestServer(t *testing.T, content interface{}, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		if len(req.Messages) == 1 {
			parts, _ := req.Messages[0].Content.([]interface{})
			assert.Len(t, parts, 2, "prompt and image")
		}

		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.baseURL)

	c, err = NewClient("http://host:9000/")
	require.NoError(t, err)
	assert.Equal(t, "http://host:9000", c.baseURL)

	_, err = NewClient("host:9000")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	c, err := NewClient(newTestServer(t, "", http.StatusOK).URL)
	require.NoError(t, err)
	assert.NoError(t, c.Ping(context.Background()))

	c, err = NewClient(newTestServer(t, "", http.StatusServiceUnavailable).URL)
	require.NoError(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestAnalyzeImage(t *testing.T) {
	answer := `{"primary":{"label":"car","confidence":0.7,"box":{"x":0.1,"y":0.3,"w":0.8,"h":0.4},"cx":0.5,"cy":0.5},"description":"a car","tags":["car"]}`
	c, err := NewClient(newTestServer(t, answer, http.StatusOK).URL)
	require.NoError(t, err)

	res, err := c.AnalyzeImage(context.Background(), "m", "find it", "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "car", res.Primary.Label)
	assert.InDelta(t, 0.8, res.Primary.Box.W, 1e-9)
}

func TestAnalyzeImageContentParts(t *testing.T) {
	parts := []map[string]string{{"type": "text", "text": `{"primary":{"label":"square","confidence":0.6,"box":{"x":0.2,"y":0.2,"w":0.4,"h":0.4}}}`}}
	c, err := NewClient(newTestServer(t, parts, http.StatusOK).URL)
	require.NoError(t, err)

	res, err := c.AnalyzeImage(context.Background(), "m", "what is it", "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "square", res.Primary.Label)
	assert.InDelta(t, 0.4, res.Primary.Box.H, 1e-9)
}

func TestAnalyzeImageServerError(t *testing.T) {
	c, err := NewClient(newTestServer(t, "", http.StatusInternalServerError).URL)
	require.NoError(t, err)

	_, err = c.AnalyzeImage(context.Background(), "m", "p", "aGVsbG8=")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status 500"))
}

func TestAnalyzeImageProse(t *testing.T) {
	c, err := NewClient(newTestServer(t, "There is a car.", http.StatusOK).URL)
	require.NoError(t, err)

	res, err := c.AnalyzeImage(context.Background(), "m", "p", "aGVsbG8=")
	require.NoError(t, err)
	assert.True(t, client.IsFallback(res))
}
