package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// GetJSON issues GET base+path?query and decodes a 200 response into out.
// Errors are prefixed with feed.
func GetJSON(ctx context.Context, client *http.Client, feed, base, path string, query url.Values, out any) error {
	u, err := url.Parse(base + path)
	if err != nil {
		return fmt.Errorf("%s: parse url: %w", feed, err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", feed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http get: %w", feed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", feed, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", feed, err)
	}
	return nil
}
