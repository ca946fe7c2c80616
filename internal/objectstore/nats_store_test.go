// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/book-expert/translation-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadOpen(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "translated-audio")
	require.NoError(t, err)
	assert.Equal(t, "translated-audio", store.Bucket())

	ctx := context.Background()
	key := "translations/job-1/en_ab12.wav"
	uploadData := []byte("RIFF....WAVE fake audio")

	err = store.Upload(ctx, key, bytes.NewReader(uploadData))
	require.NoError(t, err)

	reader, err := store.Open(ctx, key)
	require.NoError(t, err)

	downloadData, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	require.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_BindExisting(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	_, err = objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)

	_, err = objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)
}

func TestNatsObjectStore_OpenMissing(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "empty")
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "missing.wav")
	require.Error(t, err)
}

func TestParseReference(t *testing.T) {
	t.Parallel()

	reference := objectstore.Reference("audio", "translations/job-1/en_x.wav")
	assert.Equal(t, "nats-object://audio/translations/job-1/en_x.wav", reference)

	bucket, key, err := objectstore.ParseReference(reference)
	require.NoError(t, err)
	assert.Equal(t, "audio", bucket)
	assert.Equal(t, "translations/job-1/en_x.wav", key)

	for _, bad := range []string{"https://x/y", "nats-object://", "nats-object://bucket", "nats-object:///key"} {
		_, _, err = objectstore.ParseReference(bad)
		require.ErrorIs(t, err, objectstore.ErrInvalidReference, bad)
	}
}
