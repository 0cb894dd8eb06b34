package pull

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches the authoritative recent-incident snapshot from the
// backend. It returns raw bytes; decoding and normalization belong to the
// engine so push and pull entries go through the identical path.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) FetchSnapshot(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b := make([]byte, 512)
		n, _ := resp.Body.Read(b)
		return nil, fmt.Errorf("snapshot error: status=%d, body=%s", resp.StatusCode, string(b[:n]))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
