package kb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var ctx = context.Background()

func newClient(url string) *Client {
	return NewClient(Config{
		BaseURL:         url,
		APIKey:          "test-key",
		KnowledgeBaseID: "kb-1",
		DataSourceID:    "ds-1",
	})
}

func TestSearch_BlankQueryRejectedLocally(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	for _, query := range []string{"", "   ", "\t\n"} {
		_, err := c.Search(ctx, query, 10)
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Search(%q) error = %v, want ErrInvalidQuery", query, err)
		}
	}
	if called {
		t.Error("blank query should not reach the backend")
	}
}

func TestSearch_RequestShape(t *testing.T) {
	var got retrieveRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/retrieve" {
			t.Errorf("path = %q, want /retrieve", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	if _, err := c.Search(ctx, "trust deadlines", 10); err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got.KnowledgeBaseID != "kb-1" {
		t.Errorf("knowledge_base_id = %q, want kb-1", got.KnowledgeBaseID)
	}
	if got.Query != "trust deadlines" {
		t.Errorf("query = %q", got.Query)
	}
	if got.ResultCount != 10 {
		t.Errorf("result_count = %d, want 10", got.ResultCount)
	}
	if got.SearchMode != SearchModeHybrid {
		t.Errorf("search_mode = %q, want hybrid", got.SearchMode)
	}
	if auth != "Bearer test-key" {
		t.Errorf("auth = %q", auth)
	}
}

func TestSearch_ParsesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"text":"first","score":0.9,"metadata":{"source-uri":"s3://docs/report.pdf","page-number":"2"}},
			{"text":"second","score":0.8,"metadata":{"source-uri":"s3://docs/policy.pdf","page-number":"3.0"}},
			{"text":"third","score":0.7,"metadata":{}}
		]}`))
	}))
	defer srv.Close()

	passages, err := newClient(srv.URL).Search(ctx, "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(passages) != 3 {
		t.Fatalf("got %d passages, want 3", len(passages))
	}

	if passages[0].SourceURI != "s3://docs/report.pdf" || passages[0].PageNumber != 2 {
		t.Errorf("passage 0 = %+v", passages[0])
	}
	if passages[1].PageNumber != 3 {
		t.Errorf("page 3.0 parsed as %d, want 3", passages[1].PageNumber)
	}
	if passages[2].SourceURI != "" || passages[2].PageNumber != 0 {
		t.Errorf("passage without metadata = %+v", passages[2])
	}
}

func TestSearch_RetriesRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"results":[{"text":"ok","score":1,"metadata":{}}]}`))
	}))
	defer srv.Close()

	passages, err := newClient(srv.URL).Search(ctx, "q", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(passages) != 1 {
		t.Errorf("got %d passages, want 1", len(passages))
	}
}

func TestSearch_ServerErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Search(ctx, "q", 1)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (500 is not retryable)", attempts)
	}
}

func TestSearch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newClient(srv.URL).Search(ctx, "q", 1)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("error = %v, want ErrBackendUnavailable", err)
	}
}

func TestStartIngestionJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingestion-jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req startJobRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.DataSourceID != "ds-1" {
			t.Errorf("data_source_id = %q", req.DataSourceID)
		}
		w.Write([]byte(`{"ingestion_job":{"job_id":"job-42","status":"STARTING"}}`))
	}))
	defer srv.Close()

	job, err := newClient(srv.URL).StartIngestionJob(ctx)
	if err != nil {
		t.Fatalf("StartIngestionJob: %v", err)
	}
	if job.ID != "job-42" || job.Status != JobStarting {
		t.Errorf("job = %+v", job)
	}
}

func TestStartIngestionJob_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ingestion_job":{}}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).StartIngestionJob(ctx)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("error = %v, want ErrBackendUnavailable", err)
	}
}

func TestGetIngestionJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingestion-jobs/job-42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("knowledge_base_id") != "kb-1" {
			t.Errorf("missing knowledge_base_id query param")
		}
		w.Write([]byte(`{"ingestion_job":{"job_id":"job-42","status":"COMPLETE"}}`))
	}))
	defer srv.Close()

	status, err := newClient(srv.URL).GetIngestionJob(ctx, "job-42")
	if err != nil {
		t.Fatalf("GetIngestionJob: %v", err)
	}
	if status != JobComplete {
		t.Errorf("status = %q, want COMPLETE", status)
	}
}

func TestUploadDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		if r.FormValue("data_source_id") != "ds-1" {
			t.Errorf("data_source_id = %q", r.FormValue("data_source_id"))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newClient(srv.URL).UploadDocument(ctx, "notes.txt", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
}

func TestUploadDocument_EmptyName(t *testing.T) {
	err := newClient("http://127.0.0.1:0").UploadDocument(ctx, " ", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("error = %v, want ErrInvalidQuery", err)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStarting, false},
		{JobInProgress, false},
		{JobComplete, true},
		{JobFailed, true},
		{JobStopped, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
