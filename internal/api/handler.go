// Package api exposes the chat, session, and sync surfaces over HTTP, plus
// an MCP server for external tool hosts. Every handler converts failures
// into formatted responses; nothing propagates past this boundary as an
// unhandled error.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mskwm/briefd/internal/ingest"
	"github.com/mskwm/briefd/internal/session"
	"github.com/mskwm/briefd/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxDocumentSize = 50 << 20   // 50MB

// Responder answers chat turns.
type Responder interface {
	RespondStored(ctx context.Context, sessionID, userMessage string) (string, string)
	RespondEvents(ctx context.Context, sessionID, userMessage string) <-chan session.TurnEvent
}

// Syncer starts an ingestion job and streams its status events.
type Syncer interface {
	Run(ctx context.Context) <-chan ingest.Event
}

// Uploader pushes documents into the knowledge-base document store.
type Uploader interface {
	UploadDocument(ctx context.Context, name string, r io.Reader) error
}

// SessionStore lists and deletes persisted sessions.
type SessionStore interface {
	ListSessions(limit int) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	ListTurns(sessionID string) ([]storage.Turn, error)
	DeleteSession(id string) error
}

// Deps holds the collaborators the HTTP surface is built from.
type Deps struct {
	Chat     Responder
	Syncer   Syncer
	Uploader Uploader
	Sessions SessionStore
	Token    string
}

// NewHandler builds the chi router. /health is open; everything else
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/v1/chat", handleChat(deps))
		r.Post("/v1/sync", handleSync(deps))
		r.Post("/v1/documents", handleUpload(deps))
		r.Get("/v1/sessions", handleListSessions(deps))
		r.Get("/v1/sessions/{id}", handleGetSession(deps))
		r.Delete("/v1/sessions/{id}", handleDeleteSession(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Stream    bool   `json:"stream"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

type chatEvent struct {
	SessionID string `json:"session_id"`
	Final     bool   `json:"final"`
	Text      string `json:"text"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		if req.Stream {
			streamChat(w, r, deps, req)
			return
		}

		// Respond never fails: backend errors arrive as user-facing text.
		sessionID, answer := deps.Chat.RespondStored(r.Context(), req.SessionID, req.Message)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{SessionID: sessionID, Answer: answer})
	}
}

// streamChat sends the provisional working notice and then the final answer
// as server-sent events. The client replaces the working text with the
// final event's text.
func streamChat(w http.ResponseWriter, r *http.Request, deps Deps, req chatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range deps.Chat.RespondEvents(r.Context(), req.SessionID, req.Message) {
		payload, err := json.Marshal(chatEvent{SessionID: ev.SessionID, Final: ev.Final, Text: ev.Text})
		if err != nil {
			slog.Error("marshaling chat event failed", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// handleSync streams ingestion job statuses as server-sent events until the
// job reaches a terminal state. Failures arrive as formatted event strings,
// never as broken streams.
func handleSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		for ev := range deps.Syncer.Run(r.Context()) {
			fmt.Fprintf(w, "data: %s\n\n", ev.Message())
			flusher.Flush()
		}
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(4 << 20); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document file is required: %v", err)
			return
		}
		defer file.Close()

		if err := deps.Uploader.UploadDocument(r.Context(), header.Filename, file); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upload failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"name": header.Filename, "status": "uploaded"})
	}
}

type sessionJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type turnJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Sessions.ListSessions(0)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing sessions: %v", err)
			return
		}
		out := make([]sessionJSON, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, toSessionJSON(s))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := deps.Sessions.GetSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "session %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading session: %v", err)
			return
		}
		turns, err := deps.Sessions.ListTurns(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading turns: %v", err)
			return
		}

		resp := struct {
			sessionJSON
			Turns []turnJSON `json:"turns"`
		}{sessionJSON: toSessionJSON(sess), Turns: make([]turnJSON, 0, len(turns))}
		for _, t := range turns {
			resp.Turns = append(resp.Turns, turnJSON{Role: t.Role, Content: t.Content})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Sessions.DeleteSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "session %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting session: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func toSessionJSON(s storage.Session) sessionJSON {
	return sessionJSON{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	}); err != nil {
		slog.Error("writing error response failed", "error", err)
	}
}
