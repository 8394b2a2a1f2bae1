package llm

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
)

const (
	mistralOCRURL       = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralClient extracts bulletins with the OCR endpoint and its document
// annotation feature. Only the first page is read.
type MistralClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	logger     *observability.Logger
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type annotationFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict"`
}

type ocrRequest struct {
	Model                    string           `json:"model"`
	Document                 ocrDocument      `json:"document"`
	Pages                    []int            `json:"pages"`
	IncludeImageBase64       bool             `json:"include_image_base64"`
	DocumentAnnotationFormat annotationFormat `json:"document_annotation_format"`
}

type ocrResponse struct {
	Model              string `json:"model"`
	DocumentAnnotation string `json:"document_annotation"`
}

// NewMistralClient creates an OCR annotation client.
func NewMistralClient(cfg Config, logger *observability.Logger) *MistralClient {
	if cfg.Model == "" {
		cfg.Model = defaultMistralModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = mistralOCRURL
	}
	return &MistralClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   cfg.Endpoint,
		httpClient: newHTTPClient(cfg.Timeout),
		logger:     observability.OrNop(logger).WithOperation("mistral_ocr"),
	}
}

// Extract sends the PDF inline and decodes the document annotation.
func (c *MistralClient) Extract(ctx context.Context, pdfPath string) (*domain.ExtractedRecord, error) {
	if c.apiKey == "" {
		return nil, domain.ConfigError("Mistral API key is not set", nil)
	}

	req, err := c.buildRequest(pdfPath)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("document", pdfPath).Str("model", c.model).Msg("Sending OCR annotation request")

	var resp ocrResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, c.endpoint, headers, req, &resp); err != nil {
		return nil, err
	}

	return decodeRecord(resp.DocumentAnnotation)
}

func (c *MistralClient) buildRequest(pdfPath string) (*ocrRequest, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, domain.IOError("failed to read PDF", err)
	}

	return &ocrRequest{
		Model: c.model,
		Document: ocrDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
		Pages:              []int{0},
		IncludeImageBase64: false,
		DocumentAnnotationFormat: annotationFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "response_schema",
				Schema: bulletinSchema(),
			},
		},
	}, nil
}
