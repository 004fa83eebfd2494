package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxImageBytes caps a single preview download.
const maxImageBytes = 32 << 20

const tempPattern = ".download-*"

// DiskStore downloads preview images into dir and keeps at most the
// capacity of its Cache on disk. Entries are keyed by file name, so a store
// reopened on the same dir picks up what earlier runs left behind.
type DiskStore struct {
	dir    string
	client *http.Client
	cache  *Cache
}

// NewDiskStore creates dir if needed and returns a store bounded by capacity
// under policy. Files already in dir are tracked oldest first, and anything
// beyond capacity is removed.
func NewDiskStore(dir string, client *http.Client, capacity int, policy EvictionPolicy) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image cache dir: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	s := &DiskStore{dir: dir, client: client}
	s.cache = New(capacity, policy, WithEvictHandler(s.remove))
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

// Cache exposes the underlying tracker.
func (s *DiskStore) Cache() *Cache { return s.cache }

// Fetch returns the local path of the image at rawURL, downloading it on
// first use. URLs that differ only in their query string share an entry, so
// re-signed links to the same object hit the cache.
func (s *DiskStore) Fetch(ctx context.Context, rawURL string) (string, error) {
	name := fileName(cacheKey(rawURL))
	p := filepath.Join(s.dir, name)

	if _, err := os.Stat(p); err == nil {
		s.cache.Track(name)
		return p, nil
	}

	if _, err := s.download(ctx, rawURL, p); err != nil {
		return "", err
	}
	s.cache.Track(name)
	return p, nil
}

type diskEntry struct {
	name    string
	modTime time.Time
}

func (s *DiskStore) index() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading image cache dir: %w", err)
	}

	var files []diskEntry
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(tempPattern, e.Name()); ok {
			// left over from an interrupted download
			os.Remove(filepath.Join(s.dir, e.Name()))
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, diskEntry{name: e.Name(), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].name < files[j].name
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	for _, f := range files {
		s.cache.Track(f.name)
	}
	return nil
}

func (s *DiskStore) download(ctx context.Context, rawURL, dst string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building image request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading image: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	if n > maxImageBytes {
		return "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	return dst, nil
}

func (s *DiskStore) remove(name string) {
	p := filepath.Join(s.dir, name)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		slog.Warn("removing cached image failed", "path", p, "error", err)
	}
}

func cacheKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func fileName(key string) string {
	ext := ""
	if u, err := url.Parse(key); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if len(ext) > 5 {
		ext = ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ext
}
