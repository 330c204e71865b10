package paragon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/evcraddock/listings/internal/metrics"
)

const (
	resourceProperty = "Property"
	resourceMedia    = "Media"

	maxErrorBody = 512
)

// encodeQueryValue percent-encodes an OData query value. Spaces become
// %20; the feed does not accept '+' inside $filter.
func encodeQueryValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// resourceURL builds <base>/<resource>?$count=true[&$top=N][&$filter=...].
// $filter is always last so its encoded length can be budgeted against
// the URL prefix.
func (c *Client) resourceURL(resource string, top int, filter string) string {
	u := c.filterPrefix(resource, top)
	if filter == "" {
		return strings.TrimSuffix(u, "&$filter=")
	}
	return u + encodeQueryValue(filter)
}

// filterPrefix is the URL up to and including "&$filter=".
func (c *Client) filterPrefix(resource string, top int) string {
	u := c.cfg.BaseURL + "/" + resource + "?$count=true"
	if top > 0 {
		u += "&$top=" + strconv.Itoa(top)
	}
	return u + "&$filter="
}

// get fetches one page and decodes it as an OData envelope.
func get[T any](ctx context.Context, c *Client, resource, rawURL string) (*Envelope[T], error) {
	body, err := c.fetch(ctx, resource, rawURL)
	if err != nil {
		return nil, err
	}

	var env Envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &FeedError{Kind: FeedParse, URL: rawURL, Err: err}
	}
	return &env, nil
}

// getAll fetches rawURL and follows @odata.nextLink until it is absent,
// concatenating pages in order. With maxItems > 0 it stops once that many
// items are collected. The merged envelope carries no next link.
func getAll[T any](ctx context.Context, c *Client, resource, rawURL string, maxItems int) (*Envelope[T], error) {
	first, err := get[T](ctx, c, resource, rawURL)
	if err != nil {
		return nil, err
	}

	merged := &Envelope[T]{Context: first.Context, Count: first.Count, Value: first.Value}
	next := first.NextLink
	current := rawURL
	pages := 1

	for next != "" && (maxItems <= 0 || len(merged.Value) < maxItems) {
		if pages >= c.cfg.MaxPages {
			return nil, &FeedError{Kind: FeedRunawayPagination, URL: rawURL}
		}

		nextURL, err := resolveLink(current, next)
		if err != nil {
			return nil, &FeedError{Kind: FeedParse, URL: current, Err: fmt.Errorf("bad next link %q: %w", next, err)}
		}

		page, err := get[T](ctx, c, resource, nextURL)
		if err != nil {
			return nil, err
		}
		merged.Value = append(merged.Value, page.Value...)
		next = page.NextLink
		current = nextURL
		pages++
	}
	metrics.FeedPages.WithLabelValues(resource).Observe(float64(pages))

	if maxItems > 0 && len(merged.Value) > maxItems {
		merged.Value = merged.Value[:maxItems]
	}
	if merged.Value == nil {
		merged.Value = []T{}
	}
	if maxItems <= 0 && merged.Count != nil && *merged.Count != len(merged.Value) {
		slog.Warn("feed count mismatch",
			"resource", resource,
			"declared", *merged.Count,
			"received", len(merged.Value),
			"pages", pages,
		)
	}
	return merged, nil
}

// resolveLink returns link unchanged when absolute, otherwise resolved
// against the page that returned it.
func resolveLink(current, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return link, nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// fetch performs an authenticated GET. A 401 invalidates the token and
// retries once with a fresh one.
func (c *Client) fetch(ctx context.Context, resource, rawURL string) ([]byte, error) {
	body, err := c.do(ctx, resource, rawURL)
	var fe *FeedError
	if errors.As(err, &fe) && fe.Kind == FeedStatus && fe.Status == http.StatusUnauthorized {
		slog.Warn("feed rejected bearer token, refreshing", "resource", resource)
		c.tokens.Invalidate()
		body, err = c.do(ctx, resource, rawURL)
	}
	return body, err
}

func (c *Client) do(ctx context.Context, resource, rawURL string) (body []byte, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FeedError{Kind: FeedTransport, URL: rawURL, Err: err}
	}

	token, err := c.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FeedError{Kind: FeedTransport, URL: rawURL, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.FeedRequestDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedRequests.WithLabelValues(resource, "transport_error").Inc()
		return nil, &FeedError{Kind: FeedTransport, URL: rawURL, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("closing feed response body", "error", closeErr)
		}
	}()

	body, err = readAllLimit(resp.Body, maxResponseBytes)
	if err != nil {
		metrics.FeedRequests.WithLabelValues(resource, "transport_error").Inc()
		return nil, &FeedError{Kind: FeedTransport, URL: rawURL, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FeedRequests.WithLabelValues(resource, "status_error").Inc()
		return nil, &FeedError{
			Kind:   FeedStatus,
			URL:    rawURL,
			Status: resp.StatusCode,
			Body:   truncate(string(body), maxErrorBody),
		}
	}

	metrics.FeedRequests.WithLabelValues(resource, "success").Inc()
	return body, nil
}

func readAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
