package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/reconcile"
	"github.com/koustreak/tablesmith/internal/schema"
)

type outcomeResponse struct {
	Outcome string `json:"outcome"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type tenantResponse struct {
	Token    string `json:"token"`
	Database string `json:"database"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type fieldErrorsResponse struct {
	NonFieldErrors map[string]string `json:"non_field_errors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var p schema.Payload
	if err := dec.Decode(&p); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "malformed request body", err))
		return
	}

	outcome, err := s.opts.Service.DefineTable(r.Context(), p.Name, p.Fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if outcome == reconcile.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, outcomeResponse{Outcome: outcome.String()})
}

func (s *Server) handleTableExists(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, fieldErrorsResponse{
			NonFieldErrors: map[string]string{"name": "please provide table name"},
		})
		return
	}

	exists, err := s.opts.Service.TableExists(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.opts.Service.Onboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenantResponse{Token: t.Token, Database: t.Database})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindUnauthorized:
		return http.StatusUnauthorized
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindConflict, errs.ErrKindAlreadyExists:
		return http.StatusConflict
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := errs.KindOf(err)

	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]any{"kind": kind.String()})
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
