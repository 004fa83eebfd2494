package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Presigner requests upload targets from the API.
type Presigner interface {
	RequestUploads(ctx context.Context, count int, contentType string) ([]models.UploadTarget, error)
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ContentType returns the upload content type for an image path, or "" when
// the extension is not a supported image format.
func ContentType(path string) string {
	return contentTypes[strings.ToLower(filepath.Ext(path))]
}

// ImagesInDir lists the supported images directly inside dir, sorted by name.
func ImagesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading image dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || ContentType(e.Name()) == "" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Uploader sends training images to presigned storage URLs.
type Uploader struct {
	presigner   Presigner
	client      *http.Client
	concurrency int
}

// NewUploader creates an Uploader that runs at most concurrency PUTs at once.
func NewUploader(p Presigner, client *http.Client, concurrency int) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Uploader{presigner: p, client: client, concurrency: concurrency}
}

// Upload uploads every path and returns the object keys in the same order.
// Paths are grouped by content type because each presign request covers
// one type.
func (u *Uploader) Upload(ctx context.Context, paths []string) ([]string, error) {
	groups := make(map[string][]int)
	var order []string
	for i, p := range paths {
		ct := ContentType(p)
		if ct == "" {
			return nil, fmt.Errorf("%s: unsupported image format", p)
		}
		if _, ok := groups[ct]; !ok {
			order = append(order, ct)
		}
		groups[ct] = append(groups[ct], i)
	}

	keys := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	for _, ct := range order {
		// a failed upload cancels ctx; g.Wait below reports it
		if ctx.Err() != nil {
			break
		}
		idx := groups[ct]
		targets, err := u.presigner.RequestUploads(ctx, len(idx), ct)
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, fmt.Errorf("requesting upload urls: %w", err)
		}
		if len(targets) != len(idx) {
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, fmt.Errorf("requested %d upload urls, got %d", len(idx), len(targets))
		}
		for n, i := range idx {
			path, target := paths[i], targets[n]
			keys[i] = target.Key
			g.Go(func() error {
				return u.put(ctx, path, target, ct)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	slog.Info("images uploaded", "count", len(keys))
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, path string, target models.UploadTarget, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, f)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", filepath.Base(path), classifyError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("uploading %s: %w", filepath.Base(path), &APIError{Status: resp.StatusCode})
	}
	slog.Debug("image uploaded", "path", path, "key", target.Key)
	return nil
}
