package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BackendError is an error payload reported by the generation backend.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

// ConnectivityError wraps a transport-level failure where no backend
// response was received.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("backend unreachable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// OllamaConfig configures the gateway. All values have documented defaults
// applied by DefaultOllamaConfig.
type OllamaConfig struct {
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Options        GenerateOptions
}

// GenerateOptions are the sampling options sent with every request.
type GenerateOptions struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	NumPredict    int     `json:"num_predict"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

// DefaultOllamaConfig returns the gateway defaults for a local backend.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL:        "http://localhost:11434",
		Model:          "llama3.1:8b",
		RequestTimeout: 120 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: time.Second,
		Options: GenerateOptions{
			Temperature:   0.3,
			TopP:          0.9,
			TopK:          40,
			NumPredict:    2000,
			RepeatPenalty: 1.1,
		},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

// GenerateResponse is the backend's completed generation.
type GenerateResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count,omitempty"`
	Model     string `json:"model,omitempty"`
}

type backendErrorBody struct {
	Error string `json:"error"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaClient delivers generation requests to an Ollama-style backend with
// bounded retries, exponential backoff, and a circuit breaker.
type OllamaClient struct {
	httpClient     *http.Client
	cfg            OllamaConfig
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *logrus.Logger
}

func NewOllamaClient(cfg OllamaConfig, logger *logrus.Logger) *OllamaClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ollama",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Ollama circuit breaker state changed")
		},
	})

	return &OllamaClient{
		httpClient:     &http.Client{},
		cfg:            cfg,
		circuitBreaker: cb,
		logger:         logger,
	}
}

// Generate sends one generation request, retrying failed attempts with
// exponential backoff. Streaming is disabled; only complete responses are
// used. After the final attempt's failure the last error is propagated.
func (c *OllamaClient) Generate(ctx context.Context, prompt, system string) (*GenerateResponse, error) {
	request := generateRequest{
		Model:   c.cfg.Model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: c.cfg.Options,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doGenerate(ctx, body)
		})
		if err == nil {
			resp := result.(*GenerateResponse)
			c.logger.WithFields(logrus.Fields{
				"model":      c.cfg.Model,
				"attempt":    attempt,
				"eval_count": resp.EvalCount,
			}).Debug("Generation request succeeded")
			return resp, nil
		}

		lastErr = err
		c.logger.WithError(err).WithFields(logrus.Fields{
			"model":   c.cfg.Model,
			"attempt": attempt,
		}).Warn("Generation attempt failed")

		if attempt < attempts {
			backoff := c.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("generation aborted during backoff: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("generation failed after %d attempts: %w", attempts, lastErr)
}

// doGenerate performs a single bounded attempt.
func (c *OllamaClient) doGenerate(ctx context.Context, body []byte) (*GenerateResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody backendErrorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, &errBody); err != nil || errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &BackendError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("malformed backend response: %w", err)
	}
	if !genResp.Done {
		return nil, fmt.Errorf("backend returned incomplete response")
	}

	return &genResp, nil
}

// Health is a lightweight reachability probe. It never returns an error.
func (c *OllamaClient) Health(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// ListModels returns the names of models the backend has available.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &BackendError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("malformed tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// VerifyModel checks that the configured model is available. The check is
// best-effort: a verification failure is logged and never blocks generation.
func (c *OllamaClient) VerifyModel(ctx context.Context) bool {
	names, err := c.ListModels(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("model", c.cfg.Model).
			Warn("Could not verify model availability; continuing anyway")
		return false
	}
	for _, name := range names {
		if name == c.cfg.Model {
			return true
		}
	}
	c.logger.WithField("model", c.cfg.Model).
		Warn("Configured model not reported by backend; continuing anyway")
	return false
}

// Model returns the configured model identifier.
func (c *OllamaClient) Model() string {
	return c.cfg.Model
}

// IsBackendError reports whether err is classified as a backend-reported
// error payload rather than a connectivity failure.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsConnectivityError reports whether err is classified as a transport
// failure where no backend response was received.
func IsConnectivityError(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
