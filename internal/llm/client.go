// Package llm calls the hosted document-understanding models that read an
// enrollment bulletin and answer with its fields as JSON.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/bulletin-import/internal/domain"
)

const (
	defaultTimeout = 2 * time.Minute
	maxErrorBody   = 512
)

// Config holds the settings shared by the extraction clients.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends body to url and decodes a 200 answer into out. Any other
// status is reported as an API error; there is no retry at this layer.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.APIError("Failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.APIError("Failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.APIError("Failed to decode response", err)
	}
	return nil
}

// annotationFields lists the annotation labels of domain.ExtractedRecord in
// schema order.
func annotationFields() []string {
	return domain.RecordLabels()
}

// bulletinSchema is the JSON schema the models must answer with.
func bulletinSchema() map[string]interface{} {
	fields := annotationFields()
	properties := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		properties[f] = map[string]string{"type": "string"}
	}
	return map[string]interface{}{
		"type":       "object",
		"title":      "StructuredData",
		"required":   fields,
		"properties": properties,
	}
}

// decodeRecord parses a model answer into a validated record. Markdown code
// fences around the JSON object are tolerated.
func decodeRecord(raw string) (*domain.ExtractedRecord, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	if raw == "" {
		return nil, domain.ExtractionError("empty annotation returned", nil)
	}

	var rec domain.ExtractedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, domain.ExtractionError("annotation is not valid JSON", err)
	}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}
