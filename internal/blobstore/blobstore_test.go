package blobstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/MrWong99/voxclone/internal/blobstore"
)

// fakeStore is an in-memory stand-in for a JetStream object store bucket.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
}

func (f *fakeStore) Put(_ context.Context, meta jetstream.ObjectMeta, r io.Reader) (*jetstream.ObjectInfo, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[meta.Name] = data
	return &jetstream.ObjectInfo{ObjectMeta: meta, Size: uint64(len(data))}, nil
}

func (f *fakeStore) Get(_ context.Context, name string, _ ...jetstream.GetObjectOpt) (jetstream.ObjectResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return &fakeResult{Reader: bytes.NewReader(data)}, nil
}

type fakeResult struct {
	*bytes.Reader
}

func (r *fakeResult) Close() error { return nil }
func (r *fakeResult) Info() (*jetstream.ObjectInfo, error) { return &jetstream.ObjectInfo{}, nil }
func (r *fakeResult) Error() error { return nil }

func TestMirror_RoundTrip(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	m := blobstore.New(store, "voices")
	dir := t.TempDir()

	src := filepath.Join(dir, "ana_processed.wav")
	want := []byte("RIFF....WAVEfmt ")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Upload(context.Background(), "ana_processed.wav", src); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.wav")
	if err := m.Download(context.Background(), "ana_processed.wav", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("downloaded %q, want %q", got, want)
	}
}

func TestMirror_DownloadMissing(t *testing.T) {
	t.Parallel()

	m := blobstore.New(&fakeStore{}, "voices")
	dir := t.TempDir()
	dst := filepath.Join(dir, "luis_processed.wav")

	err := m.Download(context.Background(), "luis_processed.wav", dst)
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestMirror_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("nats: timeout")
	m := blobstore.New(&fakeStore{putErr: boom, getErr: boom}, "voices")

	src := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Upload(context.Background(), "clip.wav", src); !errors.Is(err, boom) {
		t.Errorf("Upload err = %v, want %v", err, boom)
	}
	if err := m.Upload(context.Background(), "x", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Upload of missing file: expected error")
	}
	err := m.Download(context.Background(), "clip.wav", filepath.Join(t.TempDir(), "out.wav"))
	if !errors.Is(err, boom) || errors.Is(err, blobstore.ErrNotFound) {
		t.Errorf("Download err = %v, want %v", err, boom)
	}
}

func TestConnect_Validation(t *testing.T) {
	t.Parallel()

	if _, _, err := blobstore.Connect(context.Background(), "", "voices"); err == nil {
		t.Error("expected error for empty url")
	}
	if _, _, err := blobstore.Connect(context.Background(), "nats://127.0.0.1:4222", ""); err == nil {
		t.Error("expected error for empty bucket")
	}
}
