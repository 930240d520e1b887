package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/changes"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/intake"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/schema"
)

// Actor headers.
const (
	headerTenant  = "X-Tenant-ID"
	headerUser    = "X-User-ID"
	headerChannel = "X-Source-Channel"
)

const healthTimeout = 2 * time.Second

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req intake.PushRequest
	if !s.decode(w, r, schema.PushRequest, &req) {
		return
	}

	resp, rej, err := s.intake.Push(r.Context(), actor, req)
	if !s.check(w, r, rej, err) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req changes.PullRequest
	if !s.decode(w, r, schema.PullRequest, &req) {
		return
	}

	resp, rej, err := s.feed.Pull(r.Context(), actor, req)
	if !s.check(w, r, rej, err) {
		return
	}
	s.metrics.RecordPulledChanges(len(resp.Changes))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req intake.ClaimRequest
	if !s.decode(w, r, schema.ClaimRequest, &req) {
		return
	}

	resp, rej, err := s.intake.Claim(r.Context(), actor, req)
	if !s.check(w, r, rej, err) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period != "" && !quota.ValidPeriod(period) {
		writeValidation(w, "period must be a YYYY-MM month.")
		return
	}

	snap, err := s.intake.Quota(r.Context(), actor, period)
	if !s.check(w, r, nil, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quota": snap})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actorFrom reads the actor headers. It writes 401 and returns false when
// they are missing.
func actorFrom(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor := domain.Actor{
		TenantID: strings.TrimSpace(r.Header.Get(headerTenant)),
		UserID:   strings.TrimSpace(r.Header.Get(headerUser)),
		Channel:  strings.TrimSpace(r.Header.Get(headerChannel)),
	}
	if actor.TenantID == "" || actor.UserID == "" {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return domain.Actor{}, false
	}
	return actor, true
}

// decode reads the body, validates it against definition and unmarshals it
// into v. On failure it writes the response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, definition string, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large.")
			return false
		}
		writeValidation(w, "request body could not be read.")
		return false
	}

	if err := s.validator.Validate(definition, body); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			writeValidation(w, ve.Message)
			return false
		}
		slog.Error("request validation failed", "definition", definition, "error", err)
		writeInternal(w)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeValidation(w, "request body does not match the expected shape.")
		return false
	}
	return true
}

// check writes the response for a rejection or error and reports whether
// the handler may continue.
func (s *Server) check(w http.ResponseWriter, r *http.Request, rej *domain.Reject, err error) bool {
	switch {
	case errors.Is(err, access.ErrUnknownUser):
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return false
	case err != nil:
		slog.Error("request failed",
			"path", r.URL.Path,
			"request_id", RequestIDFrom(r.Context()),
			"error", err)
		writeInternal(w)
		return false
	case rej != nil:
		writeReject(w, rej)
		return false
	}
	return true
}
