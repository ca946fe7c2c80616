package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
)

// Local engine endpoints.
const (
	apiTags     = "/api/tags"
	apiPull     = "/api/pull"
	apiGenerate = "/api/generate"

	contentTypeJSON = "application/json"
	maxErrorBody    = 4096
	tagsTimeout     = 10 * time.Second
)

var (
	// ErrRuntimeClosed is returned by Generate after Close.
	ErrRuntimeClosed = errors.New("local engine runtime is closed")
	// ErrEngineStatus wraps a non-success response from the local engine.
	ErrEngineStatus = errors.New("local engine returned an error status")
)

// RuntimeConfig configures the local engine connection.
type RuntimeConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Runtime owns the process-wide state of the local translation engine. The model is
// made available on first use; concurrent first calls wait for a single load.
// A failed load leaves the runtime unloaded so the next call retries.
type Runtime struct {
	httpClient *http.Client
	cfg        RuntimeConfig
	log        *logger.Logger

	mu     sync.Mutex
	loaded bool
	closed bool
	loads  int
}

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewRuntime creates an unloaded runtime. Nothing is contacted until Init or Generate.
func NewRuntime(cfg RuntimeConfig, log *logger.Logger) *Runtime {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Runtime{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
	}
}

// Init loads the model if it is not loaded yet. It is safe to call concurrently.
func (r *Runtime) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRuntimeClosed
	}

	if r.loaded {
		return nil
	}

	err := r.ensureModel(ctx)
	if err != nil {
		return err
	}

	r.loaded = true
	r.loads++

	return nil
}

// Loads reports how many successful model loads have happened.
func (r *Runtime) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loads
}

// Close releases the runtime. Generate fails afterwards.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.loaded = false
	r.httpClient.CloseIdleConnections()
}

// Generate runs one non-streaming completion, loading the model first if needed.
func (r *Runtime) Generate(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	err := r.Init(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(generateRequest{
		Model:   r.cfg.Model,
		System:  system,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": temperature},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := r.post(ctx, r.httpClient, apiGenerate, payload)
	if err != nil {
		return "", err
	}

	var parsed generateResponse

	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	return parsed.Response, nil
}

func (r *Runtime) ensureModel(ctx context.Context) error {
	r.log.Info("Checking local engine model '%s' at %s", r.cfg.Model, r.cfg.BaseURL)

	tagsCtx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tagsCtx, http.MethodGet, r.cfg.BaseURL+apiTags, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create tags request: %w", err)
	}

	body, err := r.do(r.httpClient, req)
	if err != nil {
		return fmt.Errorf("failed to connect to local engine: %w", err)
	}

	var tags tagsResponse

	err = json.Unmarshal(body, &tags)
	if err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}

	for _, model := range tags.Models {
		if model.Name == r.cfg.Model || model.Name == r.cfg.Model+":latest" {
			r.log.Info("Local engine model '%s' is available", r.cfg.Model)

			return nil
		}
	}

	r.log.Warn("Local engine model '%s' not found, pulling it", r.cfg.Model)

	payload, err := json.Marshal(map[string]any{"name": r.cfg.Model, "stream": false})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}

	// Pulls can take minutes; only the caller's context bounds them.
	_, err = r.post(ctx, &http.Client{}, apiPull, payload)
	if err != nil {
		return fmt.Errorf("failed to pull model '%s': %w", r.cfg.Model, err)
	}

	r.log.Info("Local engine model '%s' pulled", r.cfg.Model)

	return nil
}

func (r *Runtime) post(ctx context.Context, client *http.Client, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)

	return r.do(client, req)
}

func (r *Runtime) do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			r.log.Warn("Failed to close local engine response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, fmt.Errorf("%w: %d %s", ErrEngineStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
