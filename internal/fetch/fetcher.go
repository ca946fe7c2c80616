// Package fetch resolves audio references to local temp files.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/tempfile"
)

const (
	// DefaultTimeout bounds one fetch request.
	DefaultTimeout = 120 * time.Second

	chunkSize     = 256 * 1024
	defaultSuffix = ".webm"
	maxSuffixLen  = 8
)

// ErrNoResolver indicates that no resolver accepted a reference.
var ErrNoResolver = errors.New("no resolver for audio reference")

// Resolver turns one family of references into a byte stream.
type Resolver interface {
	Name() string
	Match(reference string) bool
	Open(ctx context.Context, reference string) (io.ReadCloser, error)
}

// Fetcher downloads audio through the first matching Resolver.
type Fetcher struct {
	resolvers []Resolver
	log       *logger.Logger
}

// New creates a Fetcher. Resolvers are tried in order; put catch-all resolvers last.
func New(log *logger.Logger, resolvers ...Resolver) *Fetcher {
	return &Fetcher{
		resolvers: resolvers,
		log:       log,
	}
}

// Fetch copies the referenced audio into a temp handle acquired from scope and returns
// its path. On failure the partial file is released before the error is returned.
func (f *Fetcher) Fetch(ctx context.Context, scope *tempfile.Scope, reference string) (string, error) {
	resolver := f.resolve(reference)
	if resolver == nil {
		return "", core.NewError(core.KindFetch, reference, ErrNoResolver)
	}

	handle, err := scope.Acquire(SuffixFromReference(reference))
	if err != nil {
		return "", core.NewError(core.KindFetch, "failed to allocate download file", err)
	}

	written, err := f.download(ctx, resolver, reference, handle.Path())
	if err != nil {
		scope.Release(handle)

		return "", err
	}

	f.log.Info("Fetched %d bytes via %s resolver into %s", written, resolver.Name(), handle.Path())

	return handle.Path(), nil
}

func (f *Fetcher) resolve(reference string) Resolver {
	for _, resolver := range f.resolvers {
		if resolver.Match(reference) {
			return resolver
		}
	}

	return nil
}

func (f *Fetcher) download(ctx context.Context, resolver Resolver, reference, target string) (int64, error) {
	body, err := resolver.Open(ctx, reference)
	if err != nil {
		var stageErr *core.Error
		if errors.As(err, &stageErr) {
			return 0, err
		}

		return 0, core.NewError(core.KindFetch, "failed to open "+resolver.Name()+" reference", err)
	}

	defer func() {
		closeErr := body.Close()
		if closeErr != nil {
			f.log.Warn("Failed to close download stream for '%s': %v", reference, closeErr)
		}
	}()

	file, err := os.OpenFile(target, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, core.NewError(core.KindFetch, "failed to open download file", err)
	}

	written, copyErr := io.CopyBuffer(file, body, make([]byte, chunkSize))
	closeErr := file.Close()

	if copyErr != nil {
		return written, core.NewError(core.KindFetch, "failed to stream audio", copyErr)
	}

	if closeErr != nil {
		return written, core.NewError(core.KindFetch, "failed to flush download file", closeErr)
	}

	return written, nil
}

// SuffixFromReference returns the file extension of the reference path, or ".webm".
func SuffixFromReference(reference string) string {
	refPath := reference

	parsed, err := url.Parse(reference)
	if err == nil && parsed.Path != "" {
		refPath = parsed.Path
	}

	ext := path.Ext(refPath)
	if ext == "" || ext == "." || len(ext) > maxSuffixLen {
		return defaultSuffix
	}

	return ext
}
