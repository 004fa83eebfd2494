package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPresigner struct {
	base  string
	mu    sync.Mutex
	calls map[string]int
	err   error
	short bool
}

func (s *stubPresigner) RequestUploads(_ context.Context, count int, contentType string) ([]models.UploadTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[contentType] += count
	if s.short {
		count--
	}
	out := make([]models.UploadTarget, count)
	for i := range out {
		key := fmt.Sprintf("uploads/u/%s-%d", filepath.Base(contentType), i)
		out[i] = models.UploadTarget{Key: key, UploadURL: s.base + "/" + key}
	}
	return out, nil
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(paths[i], []byte("img:"+n), 0o644))
	}
	return paths
}

func TestUpload_GroupsByContentType(t *testing.T) {
	var (
		mu       sync.Mutex
		received = map[string]string{}
	)
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received[r.URL.Path] = r.Header.Get("Content-Type") + " " + string(body)
		mu.Unlock()
	}))
	defer storage.Close()

	p := &stubPresigner{base: storage.URL}
	paths := writeImages(t, "a.png", "b.JPG", "c.png")

	keys, err := NewUploader(p, storage.Client(), 2).Upload(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, []string{"uploads/u/png-0", "uploads/u/jpeg-0", "uploads/u/png-1"}, keys)
	assert.Equal(t, map[string]int{"image/png": 2, "image/jpeg": 1}, p.calls)
	assert.Equal(t, "image/png img:c.png", received["/uploads/u/png-1"])
	assert.Equal(t, "image/jpeg img:b.JPG", received["/uploads/u/jpeg-0"])
}

func TestUpload_RespectsConcurrency(t *testing.T) {
	var inFlight, peak int32
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		io.Copy(io.Discard, r.Body)
		atomic.AddInt32(&inFlight, -1)
	}))
	defer storage.Close()

	paths := writeImages(t, "1.png", "2.png", "3.png", "4.png", "5.png", "6.png")
	_, err := NewUploader(&stubPresigner{base: storage.URL}, storage.Client(), 2).Upload(context.Background(), paths)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestUpload_StorageRejects(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer storage.Close()

	_, err := NewUploader(&stubPresigner{base: storage.URL}, storage.Client(), 4).
		Upload(context.Background(), writeImages(t, "a.png"))
	assert.True(t, errors.Is(err, ErrAPIRejected))
}

// blockingPresigner serves the first request and holds later ones until
// their context ends.
type blockingPresigner struct {
	stubPresigner
	served int32
}

func (b *blockingPresigner) RequestUploads(ctx context.Context, count int, contentType string) ([]models.UploadTarget, error) {
	if atomic.AddInt32(&b.served, 1) == 1 {
		return b.stubPresigner.RequestUploads(ctx, count, contentType)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, errors.New("context was never cancelled")
	}
}

func TestUpload_FailedPutReportedOverLaterPresign(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer storage.Close()

	p := &blockingPresigner{stubPresigner: stubPresigner{base: storage.URL}}
	_, err := NewUploader(p, storage.Client(), 1).
		Upload(context.Background(), writeImages(t, "a.png", "b.jpg"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPIRejected), "got %v", err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestUpload_PresignErrors(t *testing.T) {
	paths := writeImages(t, "a.png", "b.png")

	_, err := NewUploader(&stubPresigner{err: ErrAPIUnreachable}, nil, 1).Upload(context.Background(), paths)
	assert.True(t, errors.Is(err, ErrAPIUnreachable))

	_, err = NewUploader(&stubPresigner{short: true}, nil, 1).Upload(context.Background(), paths)
	assert.ErrorContains(t, err, "requested 2 upload urls, got 1")
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	p := &stubPresigner{}
	_, err := NewUploader(p, nil, 1).Upload(context.Background(), writeImages(t, "a.gif"))
	assert.ErrorContains(t, err, "unsupported image format")
	assert.Nil(t, p.calls)
}

func TestImagesInDir(t *testing.T) {
	paths := writeImages(t, "b.webp", "a.jpeg", "notes.txt")
	dir := filepath.Dir(paths[0])
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	got, err := ImagesInDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpeg"), filepath.Join(dir, "b.webp")}, got)

	_, err = ImagesInDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
