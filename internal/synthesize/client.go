// Package synthesize renders text to speech audio files.
package synthesize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerXIAPIKey      = "xi-api-key"
	contentTypeJSON     = "application/json"

	maxErrorBody = 4096
)

var (
	// ErrMissingAPIKey is wrapped when a client is built without credentials.
	ErrMissingAPIKey = errors.New("api key is empty")
	// ErrTextEmpty is returned when there is nothing to speak.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrEmptyAudio is returned when the backend answers with no audio bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// SpeechConfig configures a SpeechClient.
type SpeechConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SpeechClient calls an OpenAI-compatible /audio/speech endpoint.
type SpeechClient struct {
	httpClient *http.Client
	cfg        SpeechConfig
	log        *logger.Logger
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// NewSpeechClient validates cfg and creates a client.
func NewSpeechClient(cfg SpeechConfig, log *logger.Logger) (*SpeechClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.ConfigurationError("speech client", ErrMissingAPIKey)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &SpeechClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
	}, nil
}

// Synthesize streams the rendered audio for text into outputPath.
func (c *SpeechClient) Synthesize(ctx context.Context, text string, voice core.VoiceConfig, outputPath string) error {
	if strings.TrimSpace(text) == "" {
		return core.NewError(core.KindSynthesis, "speech request", ErrTextEmpty)
	}

	payload, err := json.Marshal(speechRequest{
		Model:          voice.Model,
		Voice:          voice.Voice,
		Input:          text,
		ResponseFormat: voice.Format,
	})
	if err != nil {
		return core.NewError(core.KindSynthesis, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return core.NewError(core.KindSynthesis, "failed to create request", err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.cfg.APIKey)
	req.Header.Set(headerContentType, contentTypeJSON)

	written, err := streamResponse(c.httpClient, req, c.log, func(body io.Reader) (int64, error) {
		return writeFile(outputPath, body)
	})
	if err != nil {
		return err
	}

	c.log.Info("Synthesized %d characters into %s (%d bytes)", len(text), outputPath, written)

	return nil
}

// ElevenLabsConfig configures an ElevenLabsClient.
type ElevenLabsConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	PCM     PCMFormat
}

// ElevenLabsClient renders speech with ElevenLabs multilingual voices. It requests raw
// PCM and wraps it in a WAV container so every backend produces the same encoding.
type ElevenLabsClient struct {
	httpClient *http.Client
	cfg        ElevenLabsConfig
	log        *logger.Logger
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// DefaultElevenLabsPCM is the mono 16-bit 22.05 kHz stream requested from ElevenLabs.
var DefaultElevenLabsPCM = PCMFormat{SampleRate: 22050, BitDepth: 16, Channels: 1}

// NewElevenLabsClient validates cfg and creates a client.
func NewElevenLabsClient(cfg ElevenLabsConfig, log *logger.Logger) (*ElevenLabsClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.ConfigurationError("elevenlabs client", ErrMissingAPIKey)
	}

	if cfg.PCM == (PCMFormat{}) {
		cfg.PCM = DefaultElevenLabsPCM
	}

	err := cfg.PCM.Validate()
	if err != nil {
		return nil, core.ConfigurationError("elevenlabs client", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &ElevenLabsClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
	}, nil
}

// Synthesize renders text with voice.Voice as the voice id and voice.Model as the model id.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string, voice core.VoiceConfig, outputPath string) error {
	if strings.TrimSpace(text) == "" {
		return core.NewError(core.KindSynthesis, "elevenlabs request", ErrTextEmpty)
	}

	payload, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: voice.Model})
	if err != nil {
		return core.NewError(core.KindSynthesis, "failed to marshal request", err)
	}

	endpoint := fmt.Sprintf(
		"%s/text-to-speech/%s?output_format=pcm_%d",
		c.cfg.BaseURL,
		url.PathEscape(voice.Voice),
		c.cfg.PCM.SampleRate,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return core.NewError(core.KindSynthesis, "failed to create request", err)
	}

	req.Header.Set(headerXIAPIKey, c.cfg.APIKey)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, "audio/*")

	written, err := streamResponse(c.httpClient, req, c.log, func(body io.Reader) (int64, error) {
		return writeWAVFile(outputPath, c.cfg.PCM, body)
	})
	if err != nil {
		return err
	}

	c.log.Info("Synthesized %d characters with voice %s into %s (%d bytes of pcm)", len(text), voice.Voice, outputPath, written)

	return nil
}

func streamResponse(
	httpClient *http.Client,
	req *http.Request,
	log *logger.Logger,
	write func(io.Reader) (int64, error),
) (int64, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, core.NewError(core.KindSynthesis, "failed to send request", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			log.Warn("Failed to close synthesis response body: %v", closeErr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return 0, core.NewStatusError(core.KindSynthesis, resp.StatusCode, string(body))
	}

	written, err := write(resp.Body)
	if err != nil {
		return written, core.NewError(core.KindSynthesis, "failed to write audio", err)
	}

	if written == 0 {
		return 0, core.NewError(core.KindSynthesis, "synthesis response", ErrEmptyAudio)
	}

	return written, nil
}

func writeFile(outputPath string, body io.Reader) (int64, error) {
	file, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to open output file: %w", err)
	}

	written, copyErr := io.Copy(file, body)
	closeErr := file.Close()

	return written, errors.Join(copyErr, closeErr)
}

// writeWAVFile reserves the header, streams the PCM body, then rewrites the header
// with the final data size.
func writeWAVFile(outputPath string, format PCMFormat, body io.Reader) (int64, error) {
	file, err := os.OpenFile(outputPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to open output file: %w", err)
	}

	written, err := func() (int64, error) {
		headerErr := WriteWAVHeader(file, format, 0)
		if headerErr != nil {
			return 0, headerErr
		}

		copied, copyErr := io.Copy(file, body)
		if copyErr != nil {
			return copied, fmt.Errorf("failed to stream pcm: %w", copyErr)
		}

		_, seekErr := file.Seek(0, io.SeekStart)
		if seekErr != nil {
			return copied, fmt.Errorf("failed to rewind output file: %w", seekErr)
		}

		return copied, WriteWAVHeader(file, format, uint32(copied))
	}()

	closeErr := file.Close()

	return written, errors.Join(err, closeErr)
}
