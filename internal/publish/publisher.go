// Package publish uploads synthesized audio and returns a durable reference to it.
package publish

import (
	"context"
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
	"github.com/book-expert/translation-service/internal/objectstore"
	"github.com/google/uuid"
)

const maxErrorBody = 4096

// ErrEmptyJobID is returned when an object key cannot be built.
var ErrEmptyJobID = errors.New("job id cannot be empty")

// KeyBuilder builds "{prefix}/{jobId}/{lang}_{suffix}.wav" object keys.
type KeyBuilder struct {
	prefix string
	suffix func() string
}

// NewKeyBuilder creates a KeyBuilder with random hex suffixes.
func NewKeyBuilder(prefix string) *KeyBuilder {
	return NewKeyBuilderWithSuffix(prefix, func() string {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	})
}

// NewKeyBuilderWithSuffix creates a KeyBuilder with a custom suffix source.
func NewKeyBuilderWithSuffix(prefix string, suffix func() string) *KeyBuilder {
	return &KeyBuilder{prefix: strings.Trim(prefix, "/"), suffix: suffix}
}

// Build returns a fresh key for jobID and targetLanguage.
func (b *KeyBuilder) Build(jobID, targetLanguage string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", ErrEmptyJobID
	}

	language := strings.ToLower(strings.TrimSpace(targetLanguage))
	if language == "" {
		language = "und"
	}

	name := fmt.Sprintf("%s/%s_%s.%s", jobID, language, b.suffix(), core.AudioFormatWAV)
	if b.prefix == "" {
		return name, nil
	}

	return b.prefix + "/" + name, nil
}

// SupabaseConfig configures a SupabasePublisher.
type SupabaseConfig struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	Timeout    time.Duration
}

// SupabasePublisher uploads to a managed storage bucket and returns its public URL.
type SupabasePublisher struct {
	httpClient *http.Client
	keys       *KeyBuilder
	cfg        SupabaseConfig
	log        *logger.Logger
}

// NewSupabasePublisher creates a publisher.
func NewSupabasePublisher(cfg SupabaseConfig, keys *KeyBuilder, log *logger.Logger) *SupabasePublisher {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &SupabasePublisher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		keys:       keys,
		cfg:        cfg,
		log:        log,
	}
}

// Publish uploads localPath with upsert semantics.
func (p *SupabasePublisher) Publish(ctx context.Context, localPath, jobID, targetLanguage string) (string, error) {
	key, err := p.keys.Build(jobID, targetLanguage)
	if err != nil {
		return "", core.NewError(core.KindPublish, "failed to build object key", err)
	}

	file, size, err := openUpload(localPath)
	if err != nil {
		return "", err
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			p.log.Warn("Failed to close upload file '%s': %v", localPath, closeErr)
		}
	}()

	objectPath := EscapePath(p.cfg.Bucket + "/" + key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/storage/v1/object/"+objectPath, file)
	if err != nil {
		return "", core.NewError(core.KindPublish, "failed to create upload request", err)
	}

	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+p.cfg.ServiceKey)
	req.Header.Set("apikey", p.cfg.ServiceKey)
	req.Header.Set("Content-Type", core.ContentTypeWAV)
	req.Header.Set("x-upsert", "true")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", core.NewError(core.KindPublish, "upload request failed", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			p.log.Warn("Failed to close upload response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return "", core.NewStatusError(core.KindPublish, resp.StatusCode, string(body))
	}

	reference := p.cfg.BaseURL + "/storage/v1/object/public/" + objectPath
	p.log.Info("Published %d bytes to %s", size, reference)

	return reference, nil
}

// ObjectStorePublisher uploads to a NATS object store bucket.
type ObjectStorePublisher struct {
	store core.ObjectStore
	keys  *KeyBuilder
	log   *logger.Logger
}

// NewObjectStorePublisher creates a publisher over store.
func NewObjectStorePublisher(store core.ObjectStore, keys *KeyBuilder, log *logger.Logger) *ObjectStorePublisher {
	return &ObjectStorePublisher{store: store, keys: keys, log: log}
}

// Publish uploads localPath and returns a "nats-object://" reference.
func (p *ObjectStorePublisher) Publish(ctx context.Context, localPath, jobID, targetLanguage string) (string, error) {
	key, err := p.keys.Build(jobID, targetLanguage)
	if err != nil {
		return "", core.NewError(core.KindPublish, "failed to build object key", err)
	}

	file, size, err := openUpload(localPath)
	if err != nil {
		return "", err
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			p.log.Warn("Failed to close upload file '%s': %v", localPath, closeErr)
		}
	}()

	err = p.store.Upload(ctx, key, file)
	if err != nil {
		return "", core.NewError(core.KindPublish, "failed to upload to object store", err)
	}

	reference := objectstore.Reference(p.store.Bucket(), key)
	p.log.Info("Published %d bytes to %s", size, reference)

	return reference, nil
}

// EscapePath percent-encodes every segment of a slash-separated object path.
func EscapePath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return strings.Join(segments, "/")
}

func openUpload(localPath string) (*os.File, int64, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, 0, core.NewError(core.KindPublish, "failed to open audio file", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, 0, core.NewError(core.KindPublish, "failed to stat audio file", err)
	}

	return file, info.Size(), nil
}
