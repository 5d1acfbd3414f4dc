// Package blobstore mirrors processed reference clips into a NATS JetStream
// object store so that several voxclone replicas share the same voices.
//
// The local reference directory stays the source of truth; the mirror is
// written after every successful upload and read only when a voice is
// missing locally.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/voice"
)

// ErrNotFound is returned by [Mirror.Download] for unknown objects.
var ErrNotFound = errors.New("blobstore: object not found")

// Compile-time assertion that Mirror satisfies voice.Mirror.
var _ voice.Mirror = (*Mirror)(nil)

// ObjectStore is the subset of [jetstream.ObjectStore] the mirror uses.
type ObjectStore interface {
	Put(ctx context.Context, meta jetstream.ObjectMeta, r io.Reader) (*jetstream.ObjectInfo, error)
	Get(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) (jetstream.ObjectResult, error)
}

// Mirror copies files to and from one object store bucket.
type Mirror struct {
	store  ObjectStore
	bucket string
}

// New wraps an already bound object store.
func New(store ObjectStore, bucket string) *Mirror {
	return &Mirror{store: store, bucket: bucket}
}

// Connect dials the NATS server at url and binds to bucket, creating it
// when it does not exist yet. The caller owns the returned connection and
// should drain it on shutdown.
func Connect(ctx context.Context, url, bucket string, opts ...nats.Option) (*Mirror, *nats.Conn, error) {
	if url == "" {
		return nil, nil, errors.New("blobstore: url must not be empty")
	}
	if bucket == "" {
		return nil, nil, errors.New("blobstore: bucket must not be empty")
	}
	opts = append([]nats.Option{nats.Name("voxclone"), nats.MaxReconnects(-1)}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("blobstore: connect %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("blobstore: jetstream: %w", err)
	}

	// Create first, bind when another replica got there before us.
	store, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "voxclone processed reference voices",
		Storage:     jetstream.FileStorage,
	})
	if errors.Is(err, jetstream.ErrBucketExists) {
		store, err = js.ObjectStore(ctx, bucket)
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("blobstore: bind bucket %q: %w", bucket, err)
	}
	return New(store, bucket), nc, nil
}

// Upload stores the file at path under name, replacing any previous
// version.
func (m *Mirror) Upload(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("blobstore: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := m.store.Put(ctx, jetstream.ObjectMeta{
		Name:        name,
		Description: "processed reference clip",
	}, f); err != nil {
		return fmt.Errorf("blobstore: put %q to bucket %q: %w", name, m.bucket, err)
	}
	observe.Logger(ctx).Debug("blobstore: uploaded", "name", name, "bucket", m.bucket)
	return nil
}

// Download writes the object name to path. The file appears atomically:
// the data is written to a temporary file in the same directory first.
func (m *Mirror) Download(ctx context.Context, name, path string) (err error) {
	obj, err := m.store.Get(ctx, name)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("%w: %q in bucket %q", ErrNotFound, name, m.bucket)
	}
	if err != nil {
		return fmt.Errorf("blobstore: get %q from bucket %q: %w", name, m.bucket, err)
	}
	defer obj.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, obj); err != nil {
		tmp.Close()
		return fmt.Errorf("blobstore: read %q: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}
	observe.Logger(ctx).Debug("blobstore: downloaded", "name", name, "bucket", m.bucket)
	return nil
}
