// Package handler exposes the admin surface: subject status, role grants,
// and the audit trail. Every route here sits behind the admin role guard.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	auditdomain "authcore/internal/audit/domain"
	auditrepo "authcore/internal/audit/repository"
	"authcore/internal/security"
	"authcore/internal/server/middleware"
	subjectdomain "authcore/internal/subject/domain"
)

// SubjectAdmin is the subject repository surface the admin handler needs.
type SubjectAdmin interface {
	GetByID(ctx context.Context, id string) (*subjectdomain.Subject, error)
	SetStatus(ctx context.Context, id string, status subjectdomain.Status) error
	GrantRole(ctx context.Context, subjectID, role string) error
	RevokeRole(ctx context.Context, subjectID, role string) error
}

// SessionRevoker revokes every session a subject holds.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, subjectID string) error
}

// HTTP serves the admin routes.
type HTTP struct {
	subjects SubjectAdmin
	sessions SessionRevoker
	audit    auditrepo.Repository
	sink     middleware.Sink
	ipSecret string
}

// NewHTTP returns the admin handler. audit may be nil; the listing route
// then answers 503.
func NewHTTP(subjects SubjectAdmin, sessions SessionRevoker, audit auditrepo.Repository, sink middleware.Sink, ipSecret string) *HTTP {
	return &HTTP{subjects: subjects, sessions: sessions, audit: audit, sink: sink, ipSecret: ipSecret}
}

// SetSubjectStatus handles POST /v1/admin/subjects/status. Disabling a
// subject revokes all of its sessions before answering, so a disabled
// account cannot ride out an existing login.
func (h *HTTP) SetSubjectStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID string `json:"subjectId"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "subjectId and status are required")
		return
	}
	status := subjectdomain.Status(req.Status)
	if status != subjectdomain.StatusActive && status != subjectdomain.StatusDisabled {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "status must be active or disabled")
		return
	}
	subject, err := h.subjects.GetByID(r.Context(), req.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "status update failed")
		return
	}
	if subject == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown subject")
		return
	}
	if err := h.subjects.SetStatus(r.Context(), req.SubjectID, status); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "status update failed")
		return
	}
	if status == subjectdomain.StatusDisabled {
		if err := h.sessions.RevokeAll(r.Context(), req.SubjectID); err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", "session revocation failed")
			return
		}
		h.append(r, auditdomain.KindSessionsRevokedAll, req.SubjectID, "subject disabled")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GrantRole handles POST /v1/admin/roles/grant.
func (h *HTTP) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.roleChange(w, r, h.subjects.GrantRole)
}

// RevokeRole handles POST /v1/admin/roles/revoke.
func (h *HTTP) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.roleChange(w, r, h.subjects.RevokeRole)
}

func (h *HTTP) roleChange(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, string) error) {
	var req struct {
		SubjectID string `json:"subjectId"`
		Role      string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubjectID == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "subjectId and role are required")
		return
	}
	if err := apply(r.Context(), req.SubjectID, req.Role); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "role update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type eventView struct {
	ID                    string    `json:"id"`
	Kind                  string    `json:"kind"`
	SubjectID             string    `json:"subjectId,omitempty"`
	ClientFingerprintHash string    `json:"clientFingerprintHash,omitempty"`
	ClientAgent           string    `json:"clientAgent,omitempty"`
	Metadata              string    `json:"metadata,omitempty"`
	OccurredAt            time.Time `json:"occurredAt"`
}

// ListAuditEvents handles GET /v1/admin/audit?subjectId=&limit=&offset=.
func (h *HTTP) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "audit store not configured")
		return
	}
	subjectID := r.URL.Query().Get("subjectId")
	if subjectID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "subjectId is required")
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(r, "offset", 0)
	events, err := h.audit.ListBySubject(r.Context(), subjectID, int32(limit), int32(offset))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "audit listing failed")
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:                    e.ID,
			Kind:                  string(e.Kind),
			SubjectID:             e.SubjectID,
			ClientFingerprintHash: e.ClientFingerprintHash,
			ClientAgent:           e.ClientAgent,
			Metadata:              e.Metadata,
			OccurredAt:            e.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]eventView{"events": views})
}

func (h *HTTP) append(r *http.Request, kind auditdomain.Kind, subjectID, metadata string) {
	if h.sink == nil {
		return
	}
	client := middleware.ClientContext(r)
	h.sink.Append(r.Context(), &auditdomain.Event{
		Kind:                  kind,
		SubjectID:             subjectID,
		ClientFingerprintHash: security.FingerprintIP(client.IP, h.ipSecret),
		ClientAgent:           client.UserAgent,
		Metadata:              metadata,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
