package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	g, err := New(Config{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = New(Config{Provider: "OpenAI", BaseURL: "http://localhost:8080/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai", g.Name())

	g, err = New(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", g.Name())

	_, err = New(Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOpenAICompatSendsRawPrompt(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"text_completion","choices":[{"text":"Still water.","index":0}]}`))
	}))
	defer srv.Close()

	g := NewOpenAICompat(Config{BaseURL: srv.URL + "/v1", Model: "phi-3", APIKey: "x"})
	out, err := g.Generate(context.Background(), "<|user|>hi<|end|>", Params{
		MaxTokens:   150,
		Temperature: 0.5,
		Stop:        []string{"<|end|>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Still water.", out)
	assert.Equal(t, "<|user|>hi<|end|>", body["prompt"])
	assert.Equal(t, float64(150), body["max_tokens"])
	assert.Equal(t, "phi-3", body["model"])
	assert.Equal(t, []any{"<|end|>"}, body["stop"])
}

func TestOllamaUsesRawNonStreaming(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"phi3","response":"Ripples fade.","done":true}` + "\n"))
	}))
	defer srv.Close()

	g, err := NewOllama(Config{BaseURL: srv.URL, Model: "phi3"})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "prompt", Params{MaxTokens: 200, Temperature: 0.7, Stop: []string{"Encryption:"}})
	require.NoError(t, err)
	assert.Equal(t, "Ripples fade.", out)
	assert.Equal(t, true, body["raw"])
	assert.Equal(t, false, body["stream"])

	opts, ok := body["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(200), opts["num_predict"])
	assert.Equal(t, []any{"Encryption:"}, opts["stop"])
}
