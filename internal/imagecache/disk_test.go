package imagecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("png:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDiskStore_FetchCachesFile(t *testing.T) {
	srv, hits := imageServer(t)
	ds, err := NewDiskStore(t.TempDir(), srv.Client(), 2, NewLRU())
	require.NoError(t, err)

	p1, err := ds.Fetch(context.Background(), srv.URL+"/previews/1.png?X-Amz-Signature=a")
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(p1))
	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "png:/previews/1.png", string(data))

	p2, err := ds.Fetch(context.Background(), srv.URL+"/previews/1.png?X-Amz-Signature=b")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Equal(t, 1, ds.Cache().Size())
}

func TestDiskStore_EvictionDeletesFile(t *testing.T) {
	srv, _ := imageServer(t)
	ds, err := NewDiskStore(t.TempDir(), srv.Client(), 2, NewLRU())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := ds.Fetch(ctx, srv.URL+"/1.png")
	require.NoError(t, err)
	_, err = ds.Fetch(ctx, srv.URL+"/2.png")
	require.NoError(t, err)
	_, err = ds.Fetch(ctx, srv.URL+"/3.png")
	require.NoError(t, err)

	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 2, ds.Cache().Size())

	ds.Cache().Clear()
	entries, err := os.ReadDir(ds.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskStore_RedownloadsWhenFileVanishes(t *testing.T) {
	srv, hits := imageServer(t)
	ds, err := NewDiskStore(t.TempDir(), srv.Client(), 2, NewLRU())
	require.NoError(t, err)

	p, err := ds.Fetch(context.Background(), srv.URL+"/1.png")
	require.NoError(t, err)
	require.NoError(t, os.Remove(p))

	_, err = ds.Fetch(context.Background(), srv.URL+"/1.png")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestDiskStore_DownloadError(t *testing.T) {
	srv, _ := imageServer(t)
	dir := t.TempDir()
	ds, err := NewDiskStore(dir, srv.Client(), 2, NewLRU())
	require.NoError(t, err)

	_, err = ds.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, 0, ds.Cache().Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskStore_ReopenKeepsDirBounded(t *testing.T) {
	srv, _ := imageServer(t)
	dir := t.TempDir()
	ctx := context.Background()

	var last string
	for _, name := range []string{"/1.png", "/2.png", "/3.png"} {
		ds, err := NewDiskStore(dir, srv.Client(), 1, NewLRU())
		require.NoError(t, err)
		last, err = ds.Fetch(ctx, srv.URL+name)
		require.NoError(t, err)
		assert.Equal(t, 1, ds.Cache().Size())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "after fetching %s", name)
	}
	_, err := os.Stat(last)
	assert.NoError(t, err)
}

func TestDiskStore_IndexEvictsOldestFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"old.png", "mid.png", "new.png"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		mt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mt, mt))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".download-123"), []byte("partial"), 0o644))

	ds, err := NewDiskStore(dir, nil, 2, NewLRU())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Cache().Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"mid.png", "new.png"}, names)
}

func TestDiskStore_ReopenServesExistingFile(t *testing.T) {
	srv, hits := imageServer(t)
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewDiskStore(dir, srv.Client(), 2, NewLRU())
	require.NoError(t, err)
	p1, err := first.Fetch(ctx, srv.URL+"/1.png")
	require.NoError(t, err)

	second, err := NewDiskStore(dir, srv.Client(), 2, NewLRU())
	require.NoError(t, err)
	p2, err := second.Fetch(ctx, srv.URL+"/1.png?sig=new")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Equal(t, 1, second.Cache().Size())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, fileName("http://x/a.PNG"), fileName("http://x/a.PNG"))
	assert.NotEqual(t, fileName("http://x/a.png"), fileName("http://x/b.png"))
	assert.Equal(t, ".png", filepath.Ext(fileName("http://x/a.PNG")))
	assert.Equal(t, "", filepath.Ext(fileName("http://x/model.safetensors")))
	assert.Equal(t, cacheKey("http://x/a.png?sig=1"), cacheKey("http://x/a.png?sig=2"))
}
