package operation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/avast/retry-go/v4"

	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// DownloadFile fetches rawURL into a new temp path and returns that path.
// Opening the request is retried on network errors and temporary statuses;
// the body is streamed in ChunkSize reads. When the server announces a
// length, onProgress receives the completed fraction, throttled to
// UpdateInterval.
func (o *Operation) DownloadFile(ctx context.Context, rawURL string, onProgress progress.Func) (string, error) {
	if err := o.check(); err != nil {
		return "", err
	}
	dest, err := o.TempPath(urlExt(rawURL))
	if err != nil {
		return "", err
	}
	onProgress = progress.Throttle(onProgress, o.cfg.UpdateInterval)

	logger.Debug("downloading", "url", rawURL, "dest", dest)
	resp, err := retry.DoWithData(func() (*http.Response, error) {
		return o.get(ctx, rawURL)
	}, RetryOptions(ctx, o.cfg.Retries)...)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	written, err := copyChunks(ctx, f, resp.Body, o.cfg.ChunkSize, resp.ContentLength, onProgress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	onProgress(1)
	logger.Debug("downloaded", "url", rawURL, "bytes", written)
	return dest, nil
}

func (o *Operation) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := o.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func copyChunks(ctx context.Context, w io.Writer, r io.Reader, chunk int, total int64, onProgress progress.Func) (int64, error) {
	buf := make([]byte, chunk)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if total > 0 {
				onProgress(float64(written) / float64(total))
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// urlExt returns the file extension of the URL's path, keeping compound
// tar extensions intact.
func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	for _, ext := range []string{".tar.gz", ".tar.zst"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return ext
		}
	}
	ext := path.Ext(base)
	if ext == "." {
		return ""
	}
	return ext
}
