package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/hermes"
	"github.com/builditusa/scopecast/internal/portfolio"
	"github.com/builditusa/scopecast/internal/ratelimit"
	"github.com/builditusa/scopecast/internal/schema"
	"github.com/builditusa/scopecast/internal/scope"
	"github.com/builditusa/scopecast/internal/sse"
)

const origin = "http://localhost:5173"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScoper struct {
	err       error
	askInput  string
	askID     uuid.UUID
	estimated bool
	analyzed  *scope.AnalyzeInput
}

func (f *fakeScoper) stream(sink io.Writer) (*scope.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	w := sse.NewWriter(sink)
	_ = w.Token("Hello")
	_ = w.Done()
	return &scope.Outcome{}, nil
}

func (f *fakeScoper) Ask(_ context.Context, id uuid.UUID, in string, sink io.Writer) (*scope.Outcome, error) {
	f.askID, f.askInput = id, in
	return f.stream(sink)
}

func (f *fakeScoper) Estimate(_ context.Context, _ uuid.UUID, sink io.Writer) (*scope.Outcome, error) {
	f.estimated = true
	return f.stream(sink)
}

func (f *fakeScoper) Analyze(_ context.Context, in scope.AnalyzeInput, sink io.Writer) (*scope.Outcome, error) {
	f.analyzed = &in
	return f.stream(sink)
}

type fakePortfolio struct {
	err  error
	ids  []uuid.UUID
	zip  *string
	resp *schema.CrossProjectAnalysis
}

func (f *fakePortfolio) Analyze(_ context.Context, ids []uuid.UUID, zip *string) (*schema.CrossProjectAnalysis, error) {
	f.ids, f.zip = ids, zip
	return f.resp, f.err
}

type recordingPublisher struct {
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ any) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

type testEnv struct {
	srv       *Server
	scoper    *fakeScoper
	portfolio *fakePortfolio
	publisher *recordingPublisher
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		scoper:    &fakeScoper{},
		portfolio: &fakePortfolio{resp: &schema.CrossProjectAnalysis{OptimizationSummary: "Do the roof first."}},
		publisher: &recordingPublisher{},
		now:       time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), discardLogger(),
		ratelimit.WithTiers(ratelimit.Tier{Requests: 2, Window: time.Hour}, ratelimit.Tier{Requests: 3, Window: time.Hour}),
		ratelimit.WithClock(func() time.Time { return env.now }),
	)
	env.srv = NewServer(Config{Port: 8780, AllowedOrigin: origin, APIToken: "secret"}, env.scoper, limiter, discardLogger(),
		WithPortfolio(env.portfolio),
		WithPublisher(env.publisher),
	)
	return env
}

func (env *testEnv) post(path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:5555"
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	srv := NewServer(Config{AllowedOrigin: origin}, &fakeScoper{}, nil, discardLogger(),
		WithHealthCheck("database", func(context.Context) error { return errors.New("connection refused") }),
	)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"database":"connection refused"`) {
		t.Errorf("expected failed check in body, got %s", w.Body.String())
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestScope_StreamsQuestion(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	w := env.post("/api/v1/scope", fmt.Sprintf(`{"projectId":%q,"action":"question","userInput":"<b>Keep</b> the tub<script>alert(1)</script>"}`, id))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream, got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected no-cache, got %q", cc)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Errorf("expected CORS origin header, got %q", got)
	}
	want := "event: token\ndata: {\"text\":\"Hello\"}\n\nevent: done\ndata: {}\n\n"
	if w.Body.String() != want {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if env.scoper.askID != id {
		t.Errorf("expected project id passed through")
	}
	if env.scoper.askInput != "Keep the tub" {
		t.Errorf("expected sanitized input, got %q", env.scoper.askInput)
	}
}

func TestScope_Generate(t *testing.T) {
	env := newTestEnv(t)

	w := env.post("/api/v1/scope", fmt.Sprintf(`{"projectId":%q,"action":"generate"}`, uuid.New()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !env.scoper.estimated {
		t.Error("expected Estimate to be called")
	}
}

func TestScope_Validation(t *testing.T) {
	id := uuid.New().String()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "Invalid JSON body"},
		{"missing fields", `{"action":"question"}`, "Missing required fields: projectId, action"},
		{"bad uuid", `{"projectId":"not-a-uuid","action":"question","userInput":"x"}`, "Invalid projectId format"},
		{"hyphenless uuid", `{"projectId":"` + strings.ReplaceAll(id, "-", "") + `","action":"question","userInput":"x"}`, "Invalid projectId format"},
		{"bad action", `{"projectId":"` + id + `","action":"delete"}`, "Invalid action. Must be: question or generate"},
		{"missing input", `{"projectId":"` + id + `","action":"question"}`, "userInput required for action: question"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.post("/api/v1/scope", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			body := decodeError(t, w)
			if body.Error != tt.want || body.Code != 400 {
				t.Errorf("expected %q, got %+v", tt.want, body)
			}
		})
	}
}

func TestScope_ProjectNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.scoper.err = fmt.Errorf("build context: %w", budget.ErrNotFound)

	w := env.post("/api/v1/scope", fmt.Sprintf(`{"projectId":%q,"action":"generate"}`, uuid.New()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error, got %q", ct)
	}
	if body := decodeError(t, w); body.Error != "Project not found" {
		t.Errorf("unexpected error %q", body.Error)
	}
}

func TestScope_InternalErrorBeforeStream(t *testing.T) {
	env := newTestEnv(t)
	env.scoper.err = errors.New("database is down")

	w := env.post("/api/v1/scope", fmt.Sprintf(`{"projectId":%q,"action":"generate"}`, uuid.New()))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Error != msgUnexpected {
		t.Errorf("unexpected error %q", body.Error)
	}
}

func TestScope_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	body := fmt.Sprintf(`{"projectId":%q,"action":"generate"}`, uuid.New())

	for i := 0; i < 2; i++ {
		if w := env.post("/api/v1/scope", body, "X-Forwarded-For", "203.0.113.7, 10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := env.post("/api/v1/scope", body, "X-Forwarded-For", "203.0.113.7")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	got := decodeError(t, w)
	if got.Error != msgRateLimited || got.Code != 429 {
		t.Errorf("unexpected body %+v", got)
	}
	if got.ResetAt != "2025-06-01T11:00:00.000Z" {
		t.Errorf("expected ISO reset time, got %q", got.ResetAt)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if len(env.publisher.subjects) != 1 || env.publisher.subjects[0] != hermes.SubjectRateLimitDenied {
		t.Errorf("expected rate limit denial event, got %v", env.publisher.subjects)
	}

	// A different client address has its own budget.
	if w := env.post("/api/v1/scope", body, "X-Real-IP", "198.51.100.2"); w.Code != http.StatusOK {
		t.Errorf("expected other client to be admitted, got %d", w.Code)
	}
}

func TestScope_AuthenticatedTier(t *testing.T) {
	env := newTestEnv(t)
	body := fmt.Sprintf(`{"projectId":%q,"action":"generate"}`, uuid.New())

	for i := 0; i < 3; i++ {
		if w := env.post("/api/v1/scope", body, "Authorization", "Bearer secret"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}
	if w := env.post("/api/v1/scope", body, "Authorization", "Bearer secret"); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after authenticated limit, got %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/scope", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
		t.Errorf("unexpected allow headers %q", got)
	}

	w = env.post("/api/v1/scope", `{}`, "Origin", "https://evil.example.com")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign origin, got %d", w.Code)
	}

	w = env.post("/api/v1/scope", `{}`, "Referer", origin+"/project/1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected allowed referer to reach validation, got %d", w.Code)
	}
}

func TestScope_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/scope", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	w := env.post("/api/v1/analyze", fmt.Sprintf(
		`{"type":"correction","projectId":%q,"correctionText":"<i>basement</i> stairs","photo":{"name":"stairs.png","data":"data:image/png;base64,aGVsbG8="}}`, id))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	in := env.scoper.analyzed
	if in == nil {
		t.Fatal("expected Analyze to be called")
	}
	if in.Type != scope.AnalysisCorrection || in.ProjectID == nil || *in.ProjectID != id {
		t.Errorf("unexpected input %+v", in)
	}
	if in.Correction != "basement stairs" {
		t.Errorf("expected sanitized correction, got %q", in.Correction)
	}
	if in.Photo.Data != "aGVsbG8=" || in.Photo.Name != "stairs.png" {
		t.Errorf("unexpected photo %+v", in.Photo)
	}
}

func TestAnalyze_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing photo", `{"type":"initial"}`, "Missing required fields: photo, type"},
		{"bad type", `{"type":"panorama","photo":{"data":"aGVsbG8="}}`, "Invalid type. Must be: initial, additional, or correction"},
		{"missing project", `{"type":"additional","photo":{"data":"aGVsbG8="}}`, "projectId required for type: additional"},
		{"bad project", `{"type":"initial","projectId":"123","photo":{"data":"aGVsbG8="}}`, "Invalid projectId format"},
		{"bad base64", `{"type":"initial","photo":{"data":"not base64!"}}`, "Invalid photo data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.post("/api/v1/analyze", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if body := decodeError(t, w); body.Error != tt.want {
				t.Errorf("expected %q, got %q", tt.want, body.Error)
			}
		})
	}
}

func TestPortfolio(t *testing.T) {
	env := newTestEnv(t)
	a, b := uuid.New(), uuid.New()
	body := fmt.Sprintf(`{"projectIds":[%q,%q],"zipCode":"60614"}`, a, b)

	w := env.post("/api/v1/portfolio/analyze", body)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = env.post("/api/v1/portfolio/analyze", body, "Authorization", "Bearer secret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got schema.CrossProjectAnalysis
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OptimizationSummary != "Do the roof first." {
		t.Errorf("unexpected analysis %+v", got)
	}
	if len(env.portfolio.ids) != 2 || env.portfolio.zip == nil || *env.portfolio.zip != "60614" {
		t.Errorf("unexpected portfolio call ids=%v zip=%v", env.portfolio.ids, env.portfolio.zip)
	}
}

func TestPortfolio_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"count", portfolio.ErrProjectCount, http.StatusBadRequest},
		{"missing", fmt.Errorf("%w: 1 of 2 projects missing", budget.ErrNotFound), http.StatusNotFound},
		{"invalid", &schema.FieldError{Field: "quick_wins", Reason: "bad"}, http.StatusBadGateway},
		{"upstream", errors.New("llm down"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.portfolio.err = tt.err
			w := env.post("/api/v1/portfolio/analyze",
				fmt.Sprintf(`{"projectIds":[%q,%q]}`, uuid.New(), uuid.New()),
				"Authorization", "Bearer secret")
			if w.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, w.Code)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:1", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.10:4321", "192.0.2.10"},
		{"unknown", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"  <b>bold</b> move ", "bold move"},
		{"before<script type=\"x\">steal()</script>after", "beforeafter"},
		{"<SCRIPT>\nmulti\nline</SCRIPT>ok", "ok"},
	}
	for _, tt := range tests {
		if got := sanitizeText(tt.in); got != tt.want {
			t.Errorf("sanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
