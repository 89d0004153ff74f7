package crawl

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrRobotsDisallowed is returned when robots.txt blocks the target URL.
var ErrRobotsDisallowed = eris.New("crawl: blocked by robots.txt")

// Fetch retrieves a URL politely: robots.txt check first, then the per-host
// crawl delay, then GET with retry on transient failures.
func (c *Coordinator) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return nil, err
	}

	if !c.Allowed(ctx, rawURL) {
		return nil, ErrRobotsDisallowed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.5")

	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := c.wait(ctx, host); err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			zap.L().Warn("crawl: request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("crawl: http %d from %s", resp.StatusCode, rawURL)
			c.backoff(ctx, attempt)
			continue
		case resp.StatusCode == http.StatusNotFound:
			_ = resp.Body.Close()
			return nil, ErrNotFound
		case resp.StatusCode != http.StatusOK:
			_ = resp.Body.Close()
			return nil, eris.Errorf("crawl: unexpected status %d from %s", resp.StatusCode, rawURL)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if err != nil {
			return nil, eris.Wrap(err, "crawl: read body")
		}
		return body, nil
	}

	return nil, eris.Wrap(lastErr, "crawl: all retries exhausted")
}

// ErrNotFound is returned for a definitive 404 from the remote catalog.
var ErrNotFound = eris.New("crawl: not found")

func (c *Coordinator) backoff(ctx context.Context, attempt int) {
	base := 500 * time.Millisecond
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
