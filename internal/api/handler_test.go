package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mskwm/briefd/internal/ingest"
	"github.com/mskwm/briefd/internal/kb"
	"github.com/mskwm/briefd/internal/session"
	"github.com/mskwm/briefd/internal/storage"
)

type fakeResponder struct {
	answer string
}

func (f *fakeResponder) RespondStored(ctx context.Context, sessionID, userMessage string) (string, string) {
	if sessionID == "" {
		sessionID = "new-session"
	}
	return sessionID, f.answer
}

func (f *fakeResponder) RespondEvents(ctx context.Context, sessionID, userMessage string) <-chan session.TurnEvent {
	events := make(chan session.TurnEvent, 2)
	events <- session.TurnEvent{SessionID: "new-session", Text: "Searching knowledge base..."}
	events <- session.TurnEvent{SessionID: "new-session", Final: true, Text: f.answer}
	close(events)
	return events
}

type fakeSyncer struct {
	events []ingest.Event
}

func (f *fakeSyncer) Run(ctx context.Context) <-chan ingest.Event {
	out := make(chan ingest.Event, len(f.events))
	for _, e := range f.events {
		out <- e
	}
	close(out)
	return out
}

type fakeUploader struct {
	name    string
	content string
	err     error
}

func (f *fakeUploader) UploadDocument(ctx context.Context, name string, r io.Reader) error {
	f.name = name
	data, _ := io.ReadAll(r)
	f.content = string(data)
	return f.err
}

type fakeSessions struct {
	sessions []storage.Session
	turns    map[string][]storage.Turn
	deleted  []string
}

func (f *fakeSessions) ListSessions(limit int) ([]storage.Session, error) {
	return f.sessions, nil
}

func (f *fakeSessions) GetSession(id string) (storage.Session, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return storage.Session{}, storage.ErrNotFound
}

func (f *fakeSessions) ListTurns(sessionID string) ([]storage.Turn, error) {
	return f.turns[sessionID], nil
}

func (f *fakeSessions) DeleteSession(id string) error {
	for _, s := range f.sessions {
		if s.ID == id {
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

func testDeps() Deps {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return Deps{
		Chat:   &fakeResponder{answer: "The deadline is March 15."},
		Syncer: &fakeSyncer{},
		Uploader: &fakeUploader{},
		Sessions: &fakeSessions{
			sessions: []storage.Session{{ID: "s1", Title: "Trust review", CreatedAt: now, UpdatedAt: now}},
			turns: map[string][]storage.Turn{
				"s1": {{SessionID: "s1", Seq: 1, Role: "user", Content: "q"}},
			},
		},
		Token: "test-token",
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthOpenWithoutAuth(t *testing.T) {
	h := NewHandler(testDeps())

	w := doRequest(t, h, "GET", "/health", "", nil)
	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	h := NewHandler(testDeps())

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"wrong", "wrong-token"},
	}
	for _, tt := range tests {
		w := doRequest(t, h, "GET", "/v1/sessions", tt.token, nil)
		if w.Code != 401 {
			t.Errorf("%s token: status = %d, want 401", tt.name, w.Code)
		}
	}

	w := doRequest(t, h, "GET", "/v1/sessions", "test-token", nil)
	if w.Code != 200 {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestChat(t *testing.T) {
	h := NewHandler(testDeps())

	body := strings.NewReader(`{"message":"When is the deadline?"}`)
	w := doRequest(t, h, "POST", "/v1/chat", "test-token", body)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "new-session" {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if resp.Answer != "The deadline is March 15." {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	h := NewHandler(testDeps())

	w := doRequest(t, h, "POST", "/v1/chat", "test-token", strings.NewReader(`{"message":""}`))
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChat_Stream(t *testing.T) {
	h := NewHandler(testDeps())

	body := strings.NewReader(`{"message":"q","stream":true}`)
	w := doRequest(t, h, "POST", "/v1/chat", "test-token", body)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var events []chatEvent
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev chatEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("parsing event: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Final || events[1].Final == false {
		t.Errorf("events = %+v, want working then final", events)
	}
	if events[1].Text != "The deadline is March 15." {
		t.Errorf("final text = %q", events[1].Text)
	}
}

func TestSyncStreamsEvents(t *testing.T) {
	deps := testDeps()
	deps.Syncer = &fakeSyncer{events: []ingest.Event{
		{JobID: "j1", Status: kb.JobStarting},
		{JobID: "j1", Status: kb.JobComplete},
	}}
	h := NewHandler(deps)

	w := doRequest(t, h, "POST", "/v1/sync", "test-token", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "data: Sync job j1: STARTING...") {
		t.Errorf("body = %q, missing starting event", body)
	}
	if !strings.Contains(body, "data: Sync job j1 complete.") {
		t.Errorf("body = %q, missing completion event", body)
	}
}

func TestUpload(t *testing.T) {
	deps := testDeps()
	uploader := &fakeUploader{}
	deps.Uploader = uploader
	h := NewHandler(deps)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("meeting notes"))
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/documents", &buf)
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if uploader.name != "notes.txt" || uploader.content != "meeting notes" {
		t.Errorf("uploaded (%q, %q)", uploader.name, uploader.content)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	h := NewHandler(testDeps())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("unrelated", "value")
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/documents", &buf)
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListSessions(t *testing.T) {
	h := NewHandler(testDeps())

	w := doRequest(t, h, "GET", "/v1/sessions", "test-token", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var sessions []sessionJSON
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestGetSession_WithTurns(t *testing.T) {
	h := NewHandler(testDeps())

	w := doRequest(t, h, "GET", "/v1/sessions/s1", "test-token", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		ID    string     `json:"id"`
		Turns []turnJSON `json:"turns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "s1" || len(resp.Turns) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	h := NewHandler(testDeps())

	w := doRequest(t, h, "GET", "/v1/sessions/missing", "test-token", nil)
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var resp map[string]map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"]["type"] != "not_found_error" {
		t.Errorf("error type = %q", resp["error"]["type"])
	}
}

func TestDeleteSession(t *testing.T) {
	deps := testDeps()
	sessions := deps.Sessions.(*fakeSessions)
	h := NewHandler(deps)

	w := doRequest(t, h, "DELETE", "/v1/sessions/s1", "test-token", nil)
	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if len(sessions.deleted) != 1 || sessions.deleted[0] != "s1" {
		t.Errorf("deleted = %v", sessions.deleted)
	}

	w = doRequest(t, h, "DELETE", "/v1/sessions/missing", "test-token", nil)
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
