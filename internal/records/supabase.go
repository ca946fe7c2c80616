// Package records persists job status and results in the system of record.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
)

// Column names shared by every backend.
const (
	FieldStatus         = "translation_status"
	FieldTranslatedText = "text_translated"
	FieldAudioReference = "translated_audio_url"

	maxErrorBody = 4096
)

// SupabaseConfig configures a SupabaseStore.
type SupabaseConfig struct {
	BaseURL    string
	ServiceKey string
	Table      string
}

// SupabaseStore updates rows through the PostgREST endpoint of a Supabase project.
// Updates target the row by id and do not check that it exists.
type SupabaseStore struct {
	httpClient *http.Client
	cfg        SupabaseConfig
	log        *logger.Logger
}

// NewSupabaseStore creates a store. Deadlines come from the caller's context.
func NewSupabaseStore(cfg SupabaseConfig, log *logger.Logger) *SupabaseStore {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &SupabaseStore{
		httpClient: &http.Client{},
		cfg:        cfg,
		log:        log,
	}
}

// UpdateStatus sets the status column of jobID.
func (s *SupabaseStore) UpdateStatus(ctx context.Context, jobID string, status core.JobStatus) error {
	return s.patch(ctx, jobID, map[string]string{
		FieldStatus: string(status),
	})
}

// UpdateResult sets text, audio reference and status of jobID in one request.
func (s *SupabaseStore) UpdateResult(
	ctx context.Context,
	jobID, translatedText, audioReference string,
	status core.JobStatus,
) error {
	return s.patch(ctx, jobID, map[string]string{
		FieldTranslatedText: translatedText,
		FieldAudioReference: audioReference,
		FieldStatus:         string(status),
	})
}

func (s *SupabaseStore) patch(ctx context.Context, jobID string, fields map[string]string) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal record update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s", s.cfg.BaseURL, s.cfg.Table, url.QueryEscape(jobID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create record request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.cfg.ServiceKey)
	req.Header.Set("apikey", s.cfg.ServiceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update record '%s': %w", jobID, err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			s.log.Warn("Failed to close record response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return core.NewStatusError(core.KindPersistence, resp.StatusCode, string(body))
	}

	return nil
}
