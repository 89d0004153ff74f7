package crawl

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// robotsEntry is one host's cached robots.txt decision set.
type robotsEntry struct {
	fetched    time.Time
	disallowed []string
	crawlDelay time.Duration
}

// Allowed reports whether the URL may be fetched under the target host's
// robots.txt. Decisions are cached per host for the configured TTL. An
// unreachable or unparseable robots.txt fails open: we allow the fetch.
func (c *Coordinator) Allowed(ctx context.Context, rawURL string) bool {
	host, err := hostOf(rawURL)
	if err != nil {
		return false
	}

	c.mu.Lock()
	entry, ok := c.robots[host]
	stale := !ok || time.Since(entry.fetched) > c.opts.RobotsTTL
	c.mu.Unlock()

	if stale {
		entry = c.fetchRobots(ctx, rawURL, host)
		c.mu.Lock()
		c.robots[host] = entry
		// A robots Crawl-delay longer than our default replaces the host's
		// limiter on next use.
		if entry.crawlDelay > c.opts.MinDelay {
			delete(c.limiters, host)
		}
		c.mu.Unlock()
	}

	path := pathOf(rawURL)
	for _, prefix := range entry.disallowed {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// fetchRobots retrieves and parses robots.txt, honoring only the wildcard
// user-agent group. Errors yield an empty (allow-everything) entry.
func (c *Coordinator) fetchRobots(ctx context.Context, rawURL, host string) robotsEntry {
	entry := robotsEntry{fetched: time.Now()}

	scheme := "https"
	if strings.HasPrefix(rawURL, "http://") {
		scheme = "http"
	}
	robotsURL := scheme + "://" + host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return entry
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		zap.L().Debug("crawl: robots.txt unreachable, failing open",
			zap.String("host", host),
			zap.Error(err),
		)
		return entry
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return entry
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 128*1024))
	if err != nil {
		return entry
	}

	entry.disallowed, entry.crawlDelay = parseRobots(string(body))
	return entry
}

// parseRobots extracts Disallow prefixes and Crawl-delay for the wildcard
// agent group. Minimal by intent: we only ever crawl as a generic agent.
func parseRobots(body string) ([]string, time.Duration) {
	var (
		disallowed []string
		delay      time.Duration
		applies    bool
	)

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			applies = value == "*"
		case "disallow":
			if applies && value != "" {
				disallowed = append(disallowed, value)
			}
		case "crawl-delay":
			if applies {
				if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
					delay = time.Duration(secs * float64(time.Second))
				}
			}
		}
	}
	return disallowed, delay
}

func pathOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest := rawURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[j:]
		}
	}
	return "/"
}
