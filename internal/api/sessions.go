package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/duckmesh/dbchat/internal/config"
	"github.com/duckmesh/dbchat/internal/conversation"
	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/transcript"
)

type connectRequest struct {
	Dialect                string `json:"dialect"`
	Host                   string `json:"host"`
	Port                   int    `json:"port"`
	User                   string `json:"user"`
	Password               string `json:"password"`
	Database               string `json:"database"`
	TrustServerCertificate *bool  `json:"trust_server_certificate"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type sessionView struct {
	SessionID  string            `json:"session_id"`
	Connected  bool              `json:"connected"`
	Dialect    string            `json:"dialect,omitempty"`
	State      string            `json:"state"`
	Transcript []transcript.Turn `json:"transcript"`
}

type turnErrorView struct {
	Kind string `json:"kind"`
}

type messageResponse struct {
	Human     transcript.Turn `json:"human"`
	Assistant transcript.Turn `json:"assistant"`
	SQL       string          `json:"sql,omitempty"`
	Error     *turnErrorView  `json:"error"`
}

type sessionHandlers struct {
	store SessionStore
	// defaultTrust applies when a connect request omits trust_server_certificate.
	defaultTrust bool
}

func (h *sessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(h.store.Create()))
}

func (h *sessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (h *sessionHandlers) delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.lookup(w, r); !ok {
		return
	}
	if err := h.store.Delete(r.PathValue("id")); err != nil && !errors.Is(err, conversation.ErrSessionNotFound) {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CLOSE_FAILED", "failed to close session connection", true, map[string]any{"details": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandlers) connect(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dialect, err := gateway.ParseDialect(req.Dialect)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DIALECT", err.Error(), false, nil)
		return
	}
	trust := h.defaultTrust
	if req.TrustServerCertificate != nil {
		trust = *req.TrustServerCertificate
	}

	err = session.Connect(r.Context(), gateway.ConnectParams{
		Dialect:                dialect,
		Host:                   req.Host,
		Port:                   req.Port,
		User:                   req.User,
		Password:               req.Password,
		Database:               req.Database,
		TrustServerCertificate: trust,
	})
	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		writeError(r.Context(), w, http.StatusConflict, "TURN_IN_PROGRESS", err.Error(), true, nil)
	case err != nil:
		writeError(r.Context(), w, http.StatusBadGateway, "CONNECT_FAILED", "failed to connect to database", true, map[string]any{"details": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"connected": true, "dialect": string(dialect)})
	}
}

func (h *sessionHandlers) message(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := session.Submit(r.Context(), req.Text)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		writeError(r.Context(), w, http.StatusBadRequest, "TEXT_REQUIRED", "text is required", false, nil)
		return
	case errors.Is(err, conversation.ErrTurnInProgress):
		writeError(r.Context(), w, http.StatusConflict, "TURN_IN_PROGRESS", err.Error(), true, nil)
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusInternalServerError, "TURN_FAILED", err.Error(), true, nil)
		return
	}

	resp := messageResponse{Human: outcome.Human, Assistant: outcome.Assistant, SQL: outcome.SQL}
	if outcome.Err != nil {
		resp.Error = &turnErrorView{Kind: string(outcome.Err.Kind)}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *sessionHandlers) lookup(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	if h.store == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return nil, false
	}
	session, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": r.PathValue("id")})
		return nil, false
	}
	return session, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func viewOf(session *conversation.Session) sessionView {
	return sessionView{
		SessionID:  session.ID(),
		Connected:  session.Connected(),
		Dialect:    string(session.Dialect()),
		State:      session.State().String(),
		Transcript: session.Transcript(),
	}
}

// connectDefaults feeds the connect form. The password never leaves the server.
func connectDefaults(db config.DatabaseConfig) map[string]any {
	return map[string]any{
		"dialect":                  db.Dialect,
		"host":                     db.Host,
		"port":                     db.Port,
		"user":                     db.User,
		"database":                 db.Name,
		"trust_server_certificate": db.TrustServerCertificate,
	}
}
