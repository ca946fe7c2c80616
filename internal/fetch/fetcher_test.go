package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/fetch"
	"github.com/book-expert/translation-service/internal/objectstore"
	"github.com/book-expert/translation-service/internal/tempfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	bucket  string
	objects map[string][]byte
}

func (m *memoryStore) Bucket() string { return m.bucket }

func (m *memoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Upload(_ context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	m.objects[key] = data

	return nil
}

func newFixture(t *testing.T) (*logger.Logger, *tempfile.Manager) {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "fetch-test.log")
	require.NoError(t, err)

	return testLogger, tempfile.NewManager(t.TempDir(), testLogger)
}

func TestFetch_SupabaseReferenceUsesAuthenticatedPath(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		_, _ = w.Write([]byte("webm-bytes"))
	}))
	defer server.Close()

	testLogger, manager := newFixture(t)
	fetcher := fetch.New(
		testLogger,
		fetch.NewSupabaseResolver(server.URL, "service-key", server.Client()),
		fetch.NewURLResolver(server.Client()),
	)

	scope := manager.NewScope()
	defer scope.Close()

	reference := server.URL + "/storage/v1/object/public/messages/voice/clip.webm"
	localPath, err := fetcher.Fetch(context.Background(), scope, reference)
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/authenticated/messages/voice/clip.webm", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "service-key", gotKey)
	assert.True(t, strings.HasSuffix(localPath, ".webm"))

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(data))
}

func TestFetch_PlainURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("ogg-bytes"))
	}))
	defer server.Close()

	testLogger, manager := newFixture(t)
	fetcher := fetch.New(testLogger, fetch.NewURLResolver(server.Client()))

	scope := manager.NewScope()
	defer scope.Close()

	localPath, err := fetcher.Fetch(context.Background(), scope, server.URL+"/audio/note.ogg")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(localPath, ".ogg"))
}

func TestFetch_ErrorStatusReleasesPartialFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	testLogger, manager := newFixture(t)
	fetcher := fetch.New(testLogger, fetch.NewURLResolver(server.Client()))

	scope := manager.NewScope()
	defer scope.Close()

	_, err := fetcher.Fetch(context.Background(), scope, server.URL+"/missing.webm")
	require.Error(t, err)
	assert.Equal(t, core.KindFetch, core.KindOf(err))

	var stageErr *core.Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, http.StatusNotFound, stageErr.StatusCode)
	assert.Zero(t, manager.Stats().Outstanding())
}

func TestFetch_ObjectStoreReference(t *testing.T) {
	t.Parallel()

	store := &memoryStore{bucket: "AUDIO", objects: map[string][]byte{"in/clip.wav": []byte("riff")}}

	testLogger, manager := newFixture(t)
	fetcher := fetch.New(testLogger, fetch.NewObjectStoreResolver(store), fetch.NewURLResolver(http.DefaultClient))

	scope := manager.NewScope()
	defer scope.Close()

	localPath, err := fetcher.Fetch(context.Background(), scope, objectstore.Reference("AUDIO", "in/clip.wav"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(localPath, ".wav"))

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "riff", string(data))

	_, err = fetcher.Fetch(context.Background(), scope, objectstore.Reference("AUDIO", "in/absent.wav"))
	require.Error(t, err)
	assert.Equal(t, core.KindFetch, core.KindOf(err))
}

func TestFetch_NoResolver(t *testing.T) {
	t.Parallel()

	testLogger, manager := newFixture(t)
	fetcher := fetch.New(testLogger, fetch.NewURLResolver(http.DefaultClient))

	scope := manager.NewScope()
	defer scope.Close()

	_, err := fetcher.Fetch(context.Background(), scope, "ftp://example.com/a.webm")
	require.ErrorIs(t, err, fetch.ErrNoResolver)
	assert.Zero(t, manager.Stats().Acquired)
}

func TestSuffixFromReference(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".m4a", fetch.SuffixFromReference("https://x.test/a/b.m4a?token=1"))
	assert.Equal(t, ".webm", fetch.SuffixFromReference("https://x.test/a/b"))
	assert.Equal(t, ".webm", fetch.SuffixFromReference("https://x.test/a/b.verylongextension"))
	assert.Equal(t, ".wav", fetch.SuffixFromReference("nats-object://AUDIO/in/clip.wav"))
}

func TestStorageObjectPath(t *testing.T) {
	t.Parallel()

	objectPath, err := fetch.StorageObjectPath("https://p.supabase.co/storage/v1/object/sign/messages/a/b.webm?token=x")
	require.NoError(t, err)
	assert.Equal(t, "messages/a/b.webm", objectPath)

	objectPath, err = fetch.StorageObjectPath("https://p.supabase.co/storage/v1/object/messages/b.webm")
	require.NoError(t, err)
	assert.Equal(t, "messages/b.webm", objectPath)

	objectPath, err = fetch.StorageObjectPath("https://p.supabase.co/storage/v1/object/public/messages/u1/what%3Fis.webm")
	require.NoError(t, err)
	assert.Equal(t, "messages/u1/what%3Fis.webm", objectPath)

	_, err = fetch.StorageObjectPath("https://p.supabase.co/storage/v1/object/public/only-bucket")
	require.Error(t, err)
}

func TestFetch_SupabaseKeyWithEncodedDelimiters(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		encoded string
		decoded string
	}{
		{name: "question mark", encoded: "what%3Fis.webm", decoded: "what?is.webm"},
		{name: "hash", encoded: "a%23b.webm", decoded: "a#b.webm"},
		{name: "space", encoded: "voice%20note.webm", decoded: "voice note.webm"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var gotPath, gotQuery string

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotQuery = r.URL.RawQuery
				_, _ = w.Write([]byte("webm-bytes"))
			}))
			defer server.Close()

			testLogger, manager := newFixture(t)
			fetcher := fetch.New(testLogger, fetch.NewSupabaseResolver(server.URL, "service-key", server.Client()))

			scope := manager.NewScope()
			defer scope.Close()

			reference := server.URL + "/storage/v1/object/public/messages/u1/" + testCase.encoded

			_, err := fetcher.Fetch(context.Background(), scope, reference)
			require.NoError(t, err)

			assert.Equal(t, "/storage/v1/object/authenticated/messages/u1/"+testCase.decoded, gotPath)
			assert.Empty(t, gotQuery)
		})
	}
}
