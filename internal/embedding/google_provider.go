package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/developer-mesh/academic-helper/internal/observability"
)

const (
	defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGoogleModel   = "gemini-embedding-001"

	// maxErrorBody bounds how much of a failed response is kept in the error
	maxErrorBody = 4 << 10
)

// GoogleConfig configures the Gemini embedContent client
type GoogleConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// GoogleProvider implements Provider against the Gemini embedContent API
type GoogleProvider struct {
	config     GoogleConfig
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     observability.Logger
}

type googleEmbeddingRequest struct {
	Model                string        `json:"model"`
	Content              googleContent `json:"content"`
	TaskType             TaskType      `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleEmbeddingResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGoogleProvider creates a new Gemini embedding provider
func NewGoogleProvider(config GoogleConfig, metrics *observability.Metrics, logger observability.Logger) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("google provider requires an API key")
	}
	if config.Dimensions <= 0 {
		return nil, fmt.Errorf("google provider requires positive dimensions, got %d", config.Dimensions)
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultGoogleBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = defaultGoogleModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &GoogleProvider{
		config:     config,
		httpClient: client,
		metrics:    metrics,
		logger:     logger.WithPrefix("google-embedding"),
	}, nil
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

// Dimensions returns the configured output dimensionality
func (p *GoogleProvider) Dimensions() int {
	return p.config.Dimensions
}

// Embed calls embedContent once for text
func (p *GoogleProvider) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		p.metrics.EmbeddingRequests.WithLabelValues(p.Name(), "rejected").Inc()
		return nil, rejected(p.Name(), "EMPTY_INPUT", "text must not be empty", 0)
	}

	ctx, span := observability.StartSpan(ctx, "embedding.google.embed")
	start := time.Now()

	values, err := p.doRequest(ctx, text, task)
	p.metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	p.metrics.EmbeddingRequests.WithLabelValues(p.Name(), outcome(err)).Inc()
	observability.EndSpan(span, err)

	if err != nil {
		p.logger.Warn("Embedding request failed", map[string]interface{}{
			"error":       err.Error(),
			"text_length": len(text),
		})
		return nil, err
	}
	return values, nil
}

func (p *GoogleProvider) doRequest(parent context.Context, text string, task TaskType) ([]float32, error) {
	ctx, cancel := context.WithTimeout(parent, p.config.Timeout)
	defer cancel()

	reqBody := googleEmbeddingRequest{
		Model:                "models/" + p.config.Model,
		Content:              googleContent{Parts: []googlePart{{Text: text}}},
		TaskType:             task,
		OutputDimensionality: p.config.Dimensions,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", p.config.BaseURL, p.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// The caller gave up; that says nothing about the provider
		if parent.Err() != nil {
			return nil, fmt.Errorf("embedding request aborted: %w", parent.Err())
		}
		code := "REQUEST_FAILED"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			code = "TIMEOUT"
		}
		return nil, unavailable(p.Name(), code, err.Error(), 0)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, p.statusError(resp.StatusCode, body)
	}

	var googleResp googleEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&googleResp); err != nil {
		if parent.Err() != nil {
			return nil, fmt.Errorf("embedding request aborted: %w", parent.Err())
		}
		return nil, unavailable(p.Name(), "INVALID_RESPONSE", "failed to parse response: "+err.Error(), resp.StatusCode)
	}

	values := googleResp.Embedding.Values
	if len(values) != p.config.Dimensions {
		return nil, unavailable(p.Name(), "DIMENSION_MISMATCH",
			fmt.Sprintf("expected %d dimensions, got %d", p.config.Dimensions, len(values)), resp.StatusCode)
	}
	return values, nil
}

// statusError maps a non-200 response onto the error taxonomy
func (p *GoogleProvider) statusError(status int, body []byte) error {
	code, message := "UNKNOWN_ERROR", strings.TrimSpace(string(body))
	var errorResp googleErrorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		code, message = errorResp.Error.Status, errorResp.Error.Message
	}

	if isRejectedStatus(status) {
		return rejected(p.Name(), code, message, status)
	}
	return unavailable(p.Name(), code, message, status)
}

// isRejectedStatus reports statuses caused by the input itself.
// Auth, quota and server errors are all unavailability.
func isRejectedStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unavailable"
	}
}
