package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vastuchitra/internal/domain"
	"vastuchitra/internal/generation"
	"vastuchitra/internal/http/handlers"
	"vastuchitra/internal/http/httpapi"
	"vastuchitra/internal/infra"
	"vastuchitra/internal/middleware"
	"vastuchitra/internal/quota"
)

const testSecret = "test-secret"

type stubProvider struct {
	submits int
	err     error
}

func (p *stubProvider) Submit(ctx context.Context, req domain.GenerationRequest) (domain.JobHandle, error) {
	p.submits++
	if p.err != nil {
		return domain.JobHandle{}, p.err
	}
	return domain.JobHandle{ID: "job-1"}, nil
}

func (p *stubProvider) AwaitCompletion(ctx context.Context, handle domain.JobHandle) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []string{"https://replicate.delivery/out.png"}, nil
}

type stubWriter struct{}

func (stubWriter) Persist(ctx context.Context, sourceURL, ownerID string) (domain.StoredImage, error) {
	return domain.StoredImage{
		Key: ownerID + "/out.png",
		URL: "https://cdn.example.com/" + ownerID + "/out.png?sig=abc",
	}, nil
}

type stubRecords struct {
	saved []domain.GenerationRecord
}

func (r *stubRecords) Save(ctx context.Context, rec *domain.GenerationRecord) error {
	r.saved = append(r.saved, *rec)
	return nil
}

func (r *stubRecords) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.GenerationRecord, error) {
	var out []domain.GenerationRecord
	for i := len(r.saved) - 1; i >= 0; i-- {
		if r.saved[i].OwnerID == ownerID {
			out = append(out, r.saved[i])
		}
	}
	return out, nil
}

type testEnv struct {
	router   http.Handler
	provider *stubProvider
	records  *stubRecords
	ledger   *quota.MemoryLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		provider: &stubProvider{},
		records:  &stubRecords{},
		ledger:   quota.NewMemoryLedger(2),
	}
	logger := infra.Logger(zerolog.New(io.Discard))
	svc, err := generation.NewService(generation.ServiceOptions{
		Ledger:    env.ledger,
		Provider:  env.provider,
		Artifacts: stubWriter{},
		Records:   env.records,
		Logger:    &logger,
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	app := handlers.NewApp(svc, env.ledger, logger)
	cfg := &infra.Config{
		JWTSecret:       testSecret,
		AllowedOrigins:  []string{"http://localhost:3000"},
		RequestTimeout:  time.Minute,
		RateLimitPerMin: 1000,
	}
	env.router = httpapi.NewRouter(app, cfg, logger)
	return env
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func signTestToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := middleware.SignToken(testSecret, subject, time.Hour)
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}
	return token
}

func TestGenerateRejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", "", map[string]string{"prompt": "A villa"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if env.provider.submits != 0 {
		t.Fatalf("provider called for unauthenticated request")
	}
}

func TestGenerateSuccess(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", token, map[string]string{
		"prompt": "A modern courtyard house",
		"style":  "Kerala Traditional",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got domain.GenerationRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.OwnerID != "user-1" || got.ImageURL == "" || got.ID == "" {
		t.Fatalf("incomplete record: %+v", got)
	}
	usage, err := env.ledger.Usage(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Usage returned error: %v", err)
	}
	if usage.UsedToday != 1 {
		t.Fatalf("used_today = %d, want 1", usage.UsedToday)
	}
}

func TestGenerateInvalidPayload(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/v1/images/generate", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", token, map[string]string{"prompt": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != string(domain.KindInvalidArgument) {
		t.Fatalf("error = %q", body["error"])
	}
	if env.provider.submits != 0 {
		t.Fatalf("provider called for empty prompt")
	}
}

func TestGenerateQuotaExhausted(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	// Daily limit in the test env is 2.
	for i := 0; i < 2; i++ {
		if rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", token, map[string]string{"prompt": "A villa"}); rec.Code != http.StatusOK {
			t.Fatalf("warmup %d status = %d", i, rec.Code)
		}
	}

	rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", token, map[string]string{"prompt": "A villa"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != string(domain.KindResourceExhausted) {
		t.Fatalf("error = %q", body["error"])
	}
	if env.provider.submits != 2 {
		t.Fatalf("submits = %d, want 2 (no call past quota)", env.provider.submits)
	}
}

func TestGenerateUpstreamFailureMapsTo502(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = domain.E(domain.KindUpstreamFailed, "generation failed")
	token := signTestToken(t, "user-1")

	rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", token, map[string]string{"prompt": "A villa"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestListImagesReturnsOwnGalleryNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	for _, prompt := range []string{"first", "second"} {
		if rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", token, map[string]string{"prompt": prompt}); rec.Code != http.StatusOK {
			t.Fatalf("generate status = %d", rec.Code)
		}
	}
	// Another user's record must not leak into the gallery.
	env.records.saved = append(env.records.saved, domain.GenerationRecord{ID: "x", OwnerID: "user-2", Prompt: "other"})

	rec := doRequest(t, env.router, http.MethodGet, "/v1/images", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Items []domain.GenerationRecord `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(body.Items))
	}
	if body.Items[0].Prompt != "second" || body.Items[1].Prompt != "first" {
		t.Fatalf("wrong order: %+v", body.Items)
	}
}

func TestQuotaEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	if rec := doRequest(t, env.router, http.MethodPost, "/v1/images/generate", token, map[string]string{"prompt": "A villa"}); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rec.Code)
	}

	rec := doRequest(t, env.router, http.MethodGet, "/v1/quota", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["daily_limit"] != 2 || body["used_today"] != 1 || body["remaining"] != 1 {
		t.Fatalf("unexpected quota body: %v", body)
	}
}

func TestHealthRequiresNoAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.router, http.MethodGet, "/v1/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
