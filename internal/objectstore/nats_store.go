// Package objectstore provides a NATS-based implementation of the ObjectStore interface.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ReferenceScheme prefixes every reference to an object held in a NATS bucket.
const ReferenceScheme = "nats-object://"

// ErrInvalidReference indicates that a string is not a well-formed object reference.
var ErrInvalidReference = errors.New("invalid object store reference")

// NatsObjectStore implements the core.ObjectStore interface using NATS JetStream.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket if needed and binds to it.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Translated audio for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Bucket returns the bound bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Open streams an object from the bucket. The caller closes the reader.
func (n *NatsObjectStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return obj, nil
}

// Upload writes an object, replacing any object with the same key.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data io.Reader) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, data)
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Reference formats the durable locator of key inside bucket.
func Reference(bucket, key string) string {
	return ReferenceScheme + bucket + "/" + key
}

// ParseReference splits a locator produced by Reference.
func ParseReference(reference string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(reference, ReferenceScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}

	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}

	return bucket, key, nil
}
