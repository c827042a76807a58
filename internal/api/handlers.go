package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/hermes"
	"github.com/builditusa/scopecast/internal/portfolio"
	"github.com/builditusa/scopecast/internal/schema"
	"github.com/builditusa/scopecast/internal/scope"
	"github.com/builditusa/scopecast/internal/sse"
)

const (
	msgRateLimited = "You've reached the limit for now. Try again in a few minutes."
	msgUnexpected  = "An unexpected error occurred. Please try again."

	maxJSONBody  = 64 << 10
	maxPhotoBody = 20 << 20
)

const (
	actionQuestion = "question"
	actionGenerate = "generate"
)

type scopeRequest struct {
	ProjectID string `json:"projectId"`
	Action    string `json:"action"`
	UserInput string `json:"userInput"`
}

func (s *Server) handleScope(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	if !decodeBody(w, r, maxJSONBody, &req) {
		return
	}
	if req.ProjectID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: projectId, action")
		return
	}
	projectID, ok := parseUUID(req.ProjectID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid projectId format")
		return
	}
	if req.Action != actionQuestion && req.Action != actionGenerate {
		writeError(w, http.StatusBadRequest, "Invalid action. Must be: question or generate")
		return
	}
	if req.Action == actionQuestion && req.UserInput == "" {
		writeError(w, http.StatusBadRequest, "userInput required for action: question")
		return
	}
	input := sanitizeText(req.UserInput)

	if !s.admit(w, r, "scope") {
		return
	}

	stream := newEventStream(w)
	var err error
	if req.Action == actionQuestion {
		_, err = s.scoper.Ask(r.Context(), projectID, input, stream)
	} else {
		_, err = s.scoper.Estimate(r.Context(), projectID, stream)
	}
	s.finish(w, r, stream, err)
}

type analyzeRequest struct {
	Type           string `json:"type"`
	ProjectID      string `json:"projectId"`
	CorrectionText string `json:"correctionText"`
	Photo          struct {
		Name string `json:"name"`
		Data string `json:"data"`
	} `json:"photo"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, maxPhotoBody, &req) {
		return
	}
	if req.Photo.Data == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: photo, type")
		return
	}
	typ, err := scope.ParseAnalysisType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid type. Must be: initial, additional, or correction")
		return
	}
	if typ != scope.AnalysisInitial && req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("projectId required for type: %s", typ))
		return
	}

	in := scope.AnalyzeInput{
		Type:       typ,
		Correction: sanitizeText(req.CorrectionText),
		Photo:      scope.Photo{Name: req.Photo.Name, Data: stripDataURL(req.Photo.Data)},
	}
	if req.ProjectID != "" {
		id, ok := parseUUID(req.ProjectID)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid projectId format")
			return
		}
		in.ProjectID = &id
	}
	if _, err := base64.StdEncoding.DecodeString(in.Photo.Data); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid photo data")
		return
	}

	if !s.admit(w, r, "analyze") {
		return
	}

	stream := newEventStream(w)
	_, err = s.scoper.Analyze(r.Context(), in, stream)
	s.finish(w, r, stream, err)
}

type portfolioRequest struct {
	ProjectIDs []string `json:"projectIds"`
	ZipCode    string   `json:"zipCode"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if !decodeBody(w, r, maxJSONBody, &req) {
		return
	}
	if len(req.ProjectIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields: projectIds")
		return
	}
	ids := make([]uuid.UUID, 0, len(req.ProjectIDs))
	for _, raw := range req.ProjectIDs {
		id, ok := parseUUID(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid projectId format")
			return
		}
		ids = append(ids, id)
	}
	var zip *string
	if z := sanitizeText(req.ZipCode); z != "" {
		zip = &z
	}

	if !s.admit(w, r, "portfolio") {
		return
	}

	analysis, err := s.portfolio.Analyze(r.Context(), ids, zip)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, analysis)
	case errors.Is(err, portfolio.ErrProjectCount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, budget.ErrNotFound):
		writeError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, schema.ErrValidationFailed):
		s.logger.Warn("portfolio analysis rejected", "error", err)
		writeError(w, http.StatusBadGateway, "Analysis failed validation. Please try again.")
	default:
		s.logger.Error("portfolio analysis failed", "error", err)
		writeError(w, http.StatusBadGateway, "Analysis failed. Please try again.")
	}
}

// admit runs admission control and writes the 429 response on denial.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, route string) bool {
	ip := clientIP(r)
	auth := isAuthenticated(r.Context())

	dec, err := s.limiter.Check(r.Context(), ip, auth)
	if err != nil {
		s.logger.Error("rate limit check failed", "route", route, "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return false
	}
	if dec.Allowed {
		return true
	}

	tier := "unauthenticated"
	if auth {
		tier = "authenticated"
	}
	s.logger.Info("rate limited", "route", route, "ip", ip, "tier", tier, "reset_at", dec.ResetAt)
	if err := s.publisher.Publish(hermes.SubjectRateLimitDenied, hermes.RateLimitDenied{
		Identity:  ip,
		Tier:      tier,
		Route:     route,
		ResetAt:   dec.ResetAt.UTC(),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to publish rate limit denial", "error", err)
	}

	retry := int(math.Ceil(time.Until(dec.ResetAt).Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:   msgRateLimited,
		Code:    http.StatusTooManyRequests,
		ResetAt: dec.ResetAt.UTC().Format(isoMillis),
	})
	return false
}

// finish reports a service error. Before the stream has started it becomes
// a JSON response; afterwards an error frame.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, stream *eventStream, err error) {
	if err == nil {
		return
	}
	if stream.Started() {
		s.logger.Error("exchange failed mid-stream", "path", r.URL.Path, "error", err)
		_ = sse.NewWriter(stream).Error(msgUnexpected, true)
		return
	}

	switch {
	case errors.Is(err, budget.ErrNotFound):
		writeError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, scope.ErrMissingProject), errors.Is(err, scope.ErrMissingImage), errors.Is(err, scope.ErrUnknownType):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("exchange failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// parseUUID accepts only the canonical hyphenated form.
func parseUUID(s string) (uuid.UUID, bool) {
	if len(s) != 36 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}

// stripDataURL drops a "data:<type>;base64," prefix if present.
func stripDataURL(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}
