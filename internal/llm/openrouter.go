package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
)

const (
	openRouterURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModel = "google/gemini-2.5-flash"
	renderQuality          = 85
)

// OpenRouterClient renders the first page of a bulletin and asks a vision
// chat model for the bulletin fields.
type OpenRouterClient struct {
	apiKey     string
	model      string
	endpoint   string
	converter  domain.Converter
	httpClient *http.Client
	logger     *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// ResponseFormat asks the model for a bare JSON object.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatMessage is the assistant answer of a choice.
type ChatMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewOpenRouterClient creates a vision extraction client. The converter
// renders PDF pages to JPEG.
func NewOpenRouterClient(cfg Config, converter domain.Converter, logger *observability.Logger) *OpenRouterClient {
	if cfg.Model == "" {
		cfg.Model = defaultOpenRouterModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = openRouterURL
	}
	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   cfg.Endpoint,
		converter:  converter,
		httpClient: newHTTPClient(cfg.Timeout),
		logger:     observability.OrNop(logger).WithOperation("openrouter_vision"),
	}
}

// Extract renders page 1 of pdfPath and decodes the model answer.
func (c *OpenRouterClient) Extract(ctx context.Context, pdfPath string) (*domain.ExtractedRecord, error) {
	if c.apiKey == "" {
		return nil, domain.ConfigError("OpenRouter API key is not set", nil)
	}

	images, err := c.converter.Convert(ctx, pdfPath, renderQuality)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, domain.ConversionError("no page rendered", nil)
	}

	req, err := c.buildRequest(images[0].ImagePath)
	if err != nil {
		return nil, domain.APIError("Failed to build request", err)
	}

	c.logger.Debug().Str("document", pdfPath).Str("model", c.model).Msg("Sending vision request")

	var resp Response
	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"HTTP-Referer":  "https://github.com/spherical/bulletin-import",
		"X-Title":       "Bulletin Import",
	}
	if err := postJSON(ctx, c.httpClient, c.endpoint, headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, domain.ExtractionError("model returned no choices", nil)
	}

	return decodeRecord(resp.Choices[0].Message.Content)
}

// buildRequest constructs the API request with the page image
func (c *OpenRouterClient) buildRequest(imagePath string) (*Request, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: buildPrompt()},
			{
				Type:     "image_url",
				ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)},
			},
		},
	}

	return &Request{
		Model:          c.model,
		Messages:       []Message{msg},
		Stream:         false,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}, nil
}

// buildPrompt creates the extraction prompt
func buildPrompt() string {
	var b strings.Builder
	b.WriteString(`This image is the first page of a French training enrollment bulletin ("bulletin d'inscription").
It describes one trainee ("stagiaire") and the company that employs them ("entreprise").

Return ONLY a JSON object, without markdown fences or commentary, with exactly these keys:
`)
	for _, f := range annotationFields() {
		fmt.Fprintf(&b, "- %q\n", f)
	}
	b.WriteString(`
Rules:
- Every value is a string. Use "" when the field is absent or unreadable.
- Copy values as written on the form. Do not translate or reformat them.
- "N° de SIRET" is the company registration number, digits only as printed.
- Dates keep the format printed on the form.
`)
	return b.String()
}
