package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodySize = 4 << 20
)

// Client is the shared outbound HTTP client for every adapter.
type Client struct {
	r *resty.Client
}

func NewClient(timeout time.Duration) *Client {
	r := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeaders(map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9,ar;q=0.8",
		})
	return &Client{r: r}
}

// Get issues exactly one GET and reads at most maxBodySize bytes of the body.
// Non-200 responses are errors carrying a short body snippet.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.r.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return nil, err
	}
	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() != 200 {
		snip, _ := io.ReadAll(io.LimitReader(raw, 200))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(string(snip)))
	}
	body, err := io.ReadAll(io.LimitReader(raw, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) Document(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
