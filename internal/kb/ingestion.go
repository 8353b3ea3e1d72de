package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const maxUploadSize = 50 << 20 // 50MB

type startJobRequest struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	DataSourceID    string `json:"data_source_id"`
}

type jobResponse struct {
	Job struct {
		ID     string `json:"job_id"`
		Status string `json:"status"`
	} `json:"ingestion_job"`
}

// StartIngestionJob asks the backend to re-index the configured data source.
// The returned job carries the first reported status (usually STARTING).
func (c *Client) StartIngestionJob(ctx context.Context) (IngestionJob, error) {
	body, err := json.Marshal(startJobRequest{
		KnowledgeBaseID: c.knowledgeBaseID,
		DataSourceID:    c.dataSourceID,
	})
	if err != nil {
		return IngestionJob{}, fmt.Errorf("marshaling job request: %w", err)
	}

	data, err := c.doJSON(ctx, http.MethodPost, "/ingestion-jobs", body)
	if err != nil {
		return IngestionJob{}, err
	}

	var resp jobResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return IngestionJob{}, fmt.Errorf("%w: decoding job response: %v", ErrBackendUnavailable, err)
	}
	if resp.Job.ID == "" {
		return IngestionJob{}, fmt.Errorf("%w: backend returned no job ID", ErrBackendUnavailable)
	}
	return IngestionJob{ID: resp.Job.ID, Status: JobStatus(resp.Job.Status)}, nil
}

// GetIngestionJob returns the current status of a previously started job.
func (c *Client) GetIngestionJob(ctx context.Context, jobID string) (JobStatus, error) {
	if jobID == "" {
		return "", fmt.Errorf("%w: job ID is empty", ErrInvalidQuery)
	}

	data, err := c.doJSON(ctx, http.MethodGet, "/ingestion-jobs/"+jobID+"?knowledge_base_id="+c.knowledgeBaseID+"&data_source_id="+c.dataSourceID, nil)
	if err != nil {
		return "", err
	}

	var resp jobResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: decoding job status: %v", ErrBackendUnavailable, err)
	}
	return JobStatus(resp.Job.Status), nil
}

// UploadDocument pushes a document into the backend's document store under
// the configured data source. The document only becomes searchable after a
// subsequent ingestion job completes.
func (c *Client) UploadDocument(ctx context.Context, name string, r io.Reader) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: document name is empty", ErrInvalidQuery)
	}

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", name)
	if err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(fw, io.LimitReader(r, maxUploadSize)); err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	if err := mw.WriteField("data_source_id", c.dataSourceID); err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalizing upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", strings.NewReader(buf.String()))
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: upload returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
