// Package health holds the out-of-band checks behind "tvbox-proxy check".
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapetech/tvboxproxy/internal/httpclient"
	"github.com/snapetech/tvboxproxy/internal/spider"
	"github.com/snapetech/tvboxproxy/internal/tvbox"
)

// CheckSubscription fetches and parses the subscription at subURL and returns
// the number of sites it carries.
func CheckSubscription(ctx context.Context, subURL string) (int, error) {
	if subURL == "" {
		return 0, fmt.Errorf("no subscription URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, subURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept-Encoding", "br, gzip")
	client := httpclient.WithTimeout(15 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("subscription unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("subscription returned HTTP %d", resp.StatusCode)
	}
	body, err := httpclient.ReadBody(resp, 0)
	if err != nil {
		return 0, fmt.Errorf("subscription read: %w", err)
	}
	sub, err := tvbox.ParseSubscription(body)
	if err != nil {
		return 0, err
	}
	return len(sub.Sites), nil
}

// CheckEndpoints hits healthz, the config document and the spider binary at
// baseURL and returns the first error or nil. The spider body must pass
// spider.Validate.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: 15 * time.Second}
	for _, path := range []string{"/healthz", "/api/tvbox", "/api/proxy/spider.jar"} {
		url := baseURL + path
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%s: read: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
		if path == "/api/proxy/spider.jar" {
			if err := spider.Validate(body); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}
