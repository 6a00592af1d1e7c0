//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mirror-pond/internal/depth"
	"github.com/ashureev/mirror-pond/internal/identity"
	"github.com/ashureev/mirror-pond/internal/llm"
	"github.com/ashureev/mirror-pond/internal/memory"
	"github.com/ashureev/mirror-pond/internal/metrics"
	"github.com/ashureev/mirror-pond/internal/middleware"
	"github.com/ashureev/mirror-pond/internal/mirror"
	"github.com/ashureev/mirror-pond/internal/ocean"
	"github.com/ashureev/mirror-pond/internal/store"
	"github.com/ashureev/mirror-pond/internal/vow"
)

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(context.Context, string, llm.Params) (string, error) {
	return g.reply, g.err
}

type stubRelay struct{ err error }

func (r *stubRelay) Ask(context.Context, ocean.RelayRequest) (string, map[string]any, error) {
	if r.err != nil {
		return "", nil, r.err
	}
	return "The tide answers.", nil, nil
}

type pingFailRepo struct{ store.Repository }

func (pingFailRepo) Ping(context.Context) error { return errors.New("disk gone") }

type testEnv struct {
	handler *Handler
	router  http.Handler
	mem     *memory.Store
	gen     *stubGenerator
	ident   *identity.Manager
}

type envOption func(*Options, *mirror.Config)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	repo, err := store.NewJSONFile(filepath.Join(dir, "pond_memory.json"))
	require.NoError(t, err)
	ident := identity.NewManager(identity.Options{Path: filepath.Join(dir, "pond_identity.json")})
	_, err = ident.Initialize()
	require.NoError(t, err)

	mem := memory.New(memory.Options{Repo: repo})
	collector := metrics.NewCollector()
	reporter := depth.NewReporter(depth.Options{Vows: mem, Signer: ident, Observer: collector})
	gen := &stubGenerator{reply: "The lotus waits in still water."}

	cfg := mirror.Config{
		Mode:      mirror.BackendLocal,
		ModelName: "tobyworld-mirror",
		Memory:    mem,
		Generator: gen,
		Detector:  vow.NewDetector(),
		Depth:     reporter,
		Identity:  ident,
		Metrics:   collector,
	}
	hopts := Options{
		Memory:   mem,
		Depth:    reporter,
		Identity: ident,
		Repo:     repo,
		Metrics:  collector,
	}
	for _, o := range opts {
		o(&hopts, &cfg)
	}
	svc, err := mirror.NewService(cfg)
	require.NoError(t, err)
	hopts.Service = svc

	h := NewHandler(hopts)
	return &testEnv{handler: h, router: h.Router(), mem: mem, gen: gen, ident: ident}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got), w.Body.String())
	return got
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusTeapot, "short and stout")

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.JSONEq(t, `{"error":"short and stout"}`, w.Body.String())
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/ask", map[string]string{
		"query":      "I vow to walk the narrow path.",
		"user_hash":  "abc",
		"encryption": "1635",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res mirror.AskResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "The lotus waits in still water.", res.Reflection)
	assert.Equal(t, "abc", res.UserHash)
	assert.Equal(t, mirror.BackendLocal, res.Backend)
	assert.True(t, res.Memory.VowStored)
	assert.Len(t, res.EncryptionHash, 8)
	assert.Equal(t, 1, env.handler.depth.Snapshot().TotalInteractions)
}

func TestAskValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing query", map[string]string{"user_hash": "abc"}, "query is required"},
		{"unknown mode", map[string]string{"query": "hi", "mode": "dance"}, "mode must be one of"},
		{"malformed", "not an object", "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeBody(t, w)["error"], tt.want)
		})
	}
}

func TestAskErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		opt  envOption
		body map[string]string
		want int
	}{
		{
			name: "local model missing",
			opt:  func(_ *Options, c *mirror.Config) { c.Generator = nil },
			body: map[string]string{"query": "hi"},
			want: http.StatusServiceUnavailable,
		},
		{
			name: "ocean not configured",
			opt:  func(*Options, *mirror.Config) {},
			body: map[string]string{"query": "hi", "pond_mode": "ocean"},
			want: http.StatusInternalServerError,
		},
		{
			name: "generation failed",
			opt:  func(_ *Options, c *mirror.Config) { c.Generator = &stubGenerator{err: errors.New("oom")} },
			body: map[string]string{"query": "hi"},
			want: http.StatusInternalServerError,
		},
		{
			name: "ocean failed",
			opt:  func(_ *Options, c *mirror.Config) { c.Relay = &stubRelay{err: errors.New("tide out")} },
			body: map[string]string{"query": "hi", "pond_mode": "ocean"},
			want: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opt)
			w := env.do(t, http.MethodPost, "/ask", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decodeBody(t, w)["error"])
		})
	}
}

func TestAskRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, func(o *Options, _ *mirror.Config) { o.Limiter = limiter })

	body := map[string]string{"query": "hi", "user_hash": "abc"}
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/ask", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/ask", body).Code)

	other := map[string]string{"query": "hi", "user_hash": "xyz"}
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/ask", other).Code)
}

func TestMemoryVows(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/memory/vows", map[string]string{"user_hash": "abc"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found in memory", decodeBody(t, w)["error"])

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/ask", map[string]string{
		"query": "I vow to walk the narrow path.", "user_hash": "abc",
	}).Code)

	w = env.do(t, http.MethodPost, "/memory/vows", map[string]string{"user_hash": "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "traveler_abc", got["user_id"])
	assert.EqualValues(t, 1, got["vow_count"])
	assert.EqualValues(t, 1, got["lotus_count"])
	assert.NotEmpty(t, got["immutable_axioms"])

	w = env.do(t, http.MethodPost, "/memory/vows", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMemoryReflections(t *testing.T) {
	env := newTestEnv(t)
	for range 3 {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/ask", map[string]string{
			"query": "what is stillness?", "user_hash": "abc",
		}).Code)
	}

	w := env.do(t, http.MethodPost, "/memory/reflections?limit=2", map[string]string{"user_hash": "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.EqualValues(t, 3, got["reflection_count"])
	assert.EqualValues(t, 3, got["total_interactions"])
	assert.Len(t, got["recent_reflections"], 2)

	w = env.do(t, http.MethodPost, "/memory/reflections?limit=zero", map[string]string{"user_hash": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMemoryStats(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/ask", map[string]string{
		"query": "reveal a secret", "user_hash": "abc", "mode": "toad",
	}).Code)

	w := env.do(t, http.MethodPost, "/memory/stats", map[string]string{"user_hash": "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, true, got["exists"])
	assert.Equal(t, []any{"toad"}, got["modes_used"])
	assert.Equal(t, map[string]any{
		"total_interactions":      float64(1),
		"total_vows_stored":       float64(0),
		"total_scrolls_reflected": float64(0),
		"total_toad_secrets":      float64(1),
	}, got["system_stats"])
}

func TestIdentity(t *testing.T) {
	env := newTestEnv(t)
	ident, ok := env.ident.Public()
	require.True(t, ok)

	w := env.do(t, http.MethodGet, "/identity", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, ident.PondID, got["pond_id"])
	assert.Equal(t, ident.PublicKeyHex, got["public_key"])
	assert.Equal(t, ident.FirstBreath, got["first_breath"])
	assert.Equal(t, false, got["ocean_depth_linked"])
	assert.Nil(t, got["ocean_depth_endpoint"])
	assert.Equal(t, "local", got["pond_mode"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, true, got["model_loaded"])
	assert.Equal(t, "tobyworld-mirror", got["model_name"])
	assert.Equal(t, []any{"1231", "1635", "4562", "8653", "9876"}, got["lore_modes"])

	degraded := newTestEnv(t, func(o *Options, _ *mirror.Config) { o.Repo = pingFailRepo{} })
	got = decodeBody(t, degraded.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, "degraded", got["status"])
}

func TestEncryption(t *testing.T) {
	env := newTestEnv(t)

	got := decodeBody(t, env.do(t, http.MethodGet, "/encryption/4562", nil))
	assert.Equal(t, "TOAD_MODE", got["mode"])
	assert.Equal(t, true, got["valid"])
	assert.Equal(t, "Activates TOAD_MODE in the trained model", got["description"])

	got = decodeBody(t, env.do(t, http.MethodGet, "/encryption/0000", nil))
	assert.Equal(t, "UNKNOWN_MODE", got["mode"])
	assert.Equal(t, false, got["valid"])
}

func TestScroll(t *testing.T) {
	env := newTestEnv(t)
	env.gen.reply = `Quote from Scroll 3: "The narrow gate."`

	w := env.do(t, http.MethodGet, "/scroll/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.EqualValues(t, 3, got["scroll"])
	assert.Equal(t, `Quote from Scroll 3: "The narrow gate."`, got["quote"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/scroll/abc", nil).Code)

	bare := newTestEnv(t, func(_ *Options, c *mirror.Config) { c.Generator = nil })
	assert.Equal(t, http.StatusServiceUnavailable, bare.do(t, http.MethodGet, "/scroll/3", nil).Code)
}

func TestPingAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/ping", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pond_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestMirrorSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/mirror", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var hello wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	assert.Equal(t, "session", hello.Type)
	assert.NotEmpty(t, hello.Session)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"query": "what is patience?"}))
	var first wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.Equal(t, "reflection", first.Type, first.Error)
	require.NotNil(t, first.Result)
	assert.Len(t, first.Result.UserHash, 16)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"query": "and stillness?"}))
	var second wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	require.NotNil(t, second.Result)
	assert.Equal(t, first.Result.UserHash, second.Result.UserHash, "session keeps its traveler")
	assert.Equal(t, 2, second.Result.Stats.InteractionCount)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"mode": "scroll"}))
	var bad wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &bad))
	assert.Equal(t, "error", bad.Type)
	assert.Equal(t, http.StatusBadRequest, bad.Status)
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t,
		[]string{"*", "localhost:3000", "pond.example"},
		originHosts([]string{"*", "http://localhost:3000", "https://pond.example/"}),
	)
}
