// Package recognize turns local audio files into text.
//
// WhisperClient talks to any OpenAI-compatible audio endpoint (Groq by default).
// GoogleRecognizer is the Cloud Speech-to-Text alternative for the transcribe variant.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
)

// Variant selects which audio endpoint is used.
type Variant int

const (
	// Transcribe returns text in the spoken language.
	Transcribe Variant = iota
	// Translate returns English text regardless of the spoken language.
	Translate
)

// String names the variant in logs.
func (v Variant) String() string {
	if v == Translate {
		return "translate"
	}

	return "transcribe"
}

func (v Variant) endpoint() string {
	if v == Translate {
		return "/audio/translations"
	}

	return "/audio/transcriptions"
}

// Form field names.
const (
	formFieldFile           = "file"
	formFieldModel          = "model"
	formFieldLanguage       = "language"
	formFieldResponseFormat = "response_format"

	responseFormatJSON = "json"
	maxErrorBody       = 4096
)

// ErrMissingAPIKey is returned when a client is built without credentials.
var ErrMissingAPIKey = errors.New("api key is empty")

// WhisperConfig configures a WhisperClient.
type WhisperConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Variant  Variant
	Timeout  time.Duration
}

// WhisperClient uploads audio to an OpenAI-compatible Whisper endpoint.
type WhisperClient struct {
	httpClient *http.Client
	cfg        WhisperConfig
	log        *logger.Logger
}

type whisperResponse struct {
	Text string `json:"text"`
}

// NewWhisperClient validates cfg and creates a client.
func NewWhisperClient(cfg WhisperConfig, log *logger.Logger) (*WhisperClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.ConfigurationError("whisper "+cfg.Variant.String()+" client", ErrMissingAPIKey)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &WhisperClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
	}, nil
}

// Recognize uploads the audio at audioPath and returns the backend payload and text.
// An empty transcript is not an error here.
func (c *WhisperClient) Recognize(ctx context.Context, audioPath string) (core.RecognitionResult, error) {
	body, contentType, err := c.buildForm(audioPath)
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "failed to prepare upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.Variant.endpoint(), body)
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "failed to create request", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "failed to make request", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			c.log.Warn("Failed to close whisper response body: %v", closeErr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return core.RecognitionResult{}, core.NewStatusError(core.KindRecognition, resp.StatusCode, string(errBody))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "failed to read response", err)
	}

	var parsed whisperResponse

	err = json.Unmarshal(raw, &parsed)
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "failed to decode response", err)
	}

	c.log.Info("Whisper %s returned %d characters", c.cfg.Variant, len(parsed.Text))

	return core.RecognitionResult{
		RawPayload: json.RawMessage(raw),
		Text:       strings.TrimSpace(parsed.Text),
	}, nil
}

func (c *WhisperClient) buildForm(audioPath string) (*bytes.Buffer, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			c.log.Warn("Failed to close audio file '%s': %v", audioPath, closeErr)
		}
	}()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFieldFile, filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = io.Copy(part, file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to copy file data: %w", err)
	}

	fields := [][2]string{
		{formFieldModel, c.cfg.Model},
		{formFieldResponseFormat, responseFormatJSON},
	}

	if c.cfg.Variant == Transcribe && c.cfg.Language != "" {
		fields = append(fields, [2]string{formFieldLanguage, c.cfg.Language})
	}

	for _, field := range fields {
		err = writer.WriteField(field[0], field[1])
		if err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", field[0], err)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
