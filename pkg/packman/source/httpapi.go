package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/operation"
)

var logger = logging.Get("source")

// apiClient issues JSON GET requests against one base URL.
type apiClient struct {
	base    string
	headers http.Header
	client  *http.Client
	retries uint
}

func newAPIClient(base string, env Env) *apiClient {
	client := env.Client
	if client == nil {
		client = operation.NewHTTPClient(30 * time.Second)
	}
	h := http.Header{}
	h.Set("User-Agent", operation.UserAgent)
	h.Set("Accept", "application/json")
	return &apiClient{base: base, headers: h, client: client, retries: env.Retries}
}

// resolve joins endpoint onto the base URL. A leading slash on endpoint is
// relative to the base, not the host.
func (c *apiClient) resolve(endpoint string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(c.base, "/") + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *apiClient) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	target, err := c.resolve(endpoint)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header = c.headers.Clone()

		logger.Debug("api request", "url", target)
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &operation.HTTPStatusError{URL: target, StatusCode: resp.StatusCode}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Unrecoverable(fmt.Errorf("decoding %s: %w", target, err))
		}
		return nil
	}, operation.RetryOptions(ctx, c.retries)...)
}

func isNotFound(err error) bool {
	var status *operation.HTTPStatusError
	return errors.As(err, &status) && status.StatusCode == http.StatusNotFound
}
