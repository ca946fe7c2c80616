package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/objectstore"
)

// StoragePathMarker identifies references served by the managed Supabase storage.
const StoragePathMarker = "/storage/v1/object/"

const maxErrorBody = 4096

// SupabaseResolver rewrites managed-storage references into authenticated requests.
type SupabaseResolver struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewSupabaseResolver creates a resolver for references under baseURL.
func NewSupabaseResolver(baseURL, serviceKey string, httpClient *http.Client) *SupabaseResolver {
	return &SupabaseResolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: httpClient,
	}
}

// Name identifies the resolver in logs.
func (r *SupabaseResolver) Name() string {
	return "supabase"
}

// Match accepts any reference carrying the storage path marker.
func (r *SupabaseResolver) Match(reference string) bool {
	return strings.Contains(reference, StoragePathMarker)
}

// Open downloads the object through the authenticated endpoint.
func (r *SupabaseResolver) Open(ctx context.Context, reference string) (io.ReadCloser, error) {
	objectPath, err := StorageObjectPath(reference)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		r.baseURL+StoragePathMarker+"authenticated/"+objectPath,
		http.NoBody,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+r.serviceKey)
	request.Header.Set("apikey", r.serviceKey)

	return doGet(r.httpClient, request)
}

// StorageObjectPath extracts "{bucket}/{key}" from a public, signed, authenticated or
// plain storage reference. The result stays percent-encoded so it can be appended to a URL.
func StorageObjectPath(reference string) (string, error) {
	parsed, err := url.Parse(reference)
	if err != nil {
		return "", fmt.Errorf("failed to parse storage reference: %w", err)
	}

	_, rest, found := strings.Cut(parsed.EscapedPath(), StoragePathMarker)
	if !found {
		return "", fmt.Errorf("reference %q has no storage path", reference)
	}

	for _, access := range []string{"public/", "sign/", "authenticated/"} {
		if trimmed, ok := strings.CutPrefix(rest, access); ok {
			rest = trimmed

			break
		}
	}

	if !strings.Contains(rest, "/") {
		return "", fmt.Errorf("reference %q has no object key", reference)
	}

	return rest, nil
}

// ObjectStoreResolver reads "nats-object://bucket/key" references.
type ObjectStoreResolver struct {
	store core.ObjectStore
}

// NewObjectStoreResolver creates a resolver over store.
func NewObjectStoreResolver(store core.ObjectStore) *ObjectStoreResolver {
	return &ObjectStoreResolver{store: store}
}

// Name identifies the resolver in logs.
func (r *ObjectStoreResolver) Name() string {
	return "objectstore"
}

// Match accepts references to the bound bucket.
func (r *ObjectStoreResolver) Match(reference string) bool {
	bucket, _, err := objectstore.ParseReference(reference)

	return err == nil && bucket == r.store.Bucket()
}

// Open streams the object.
func (r *ObjectStoreResolver) Open(ctx context.Context, reference string) (io.ReadCloser, error) {
	_, key, err := objectstore.ParseReference(reference)
	if err != nil {
		return nil, err
	}

	return r.store.Open(ctx, key)
}

// URLResolver fetches arbitrary http(s) URLs without credentials.
type URLResolver struct {
	httpClient *http.Client
}

// NewURLResolver creates the catch-all resolver.
func NewURLResolver(httpClient *http.Client) *URLResolver {
	return &URLResolver{httpClient: httpClient}
}

// Name identifies the resolver in logs.
func (r *URLResolver) Name() string {
	return "url"
}

// Match accepts any http or https URL.
func (r *URLResolver) Match(reference string) bool {
	parsed, err := url.Parse(reference)

	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// Open issues an unauthenticated GET.
func (r *URLResolver) Open(ctx context.Context, reference string) (io.ReadCloser, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, reference, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return doGet(r.httpClient, request)
}

func doGet(httpClient *http.Client, request *http.Request) (io.ReadCloser, error) {
	response, err := httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		_ = response.Body.Close()

		return nil, core.NewStatusError(core.KindFetch, response.StatusCode, string(body))
	}

	return response.Body, nil
}

// NewHTTPClient returns a client with the fetch timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}
