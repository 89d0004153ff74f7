// Package crawl centralizes outbound politeness for catalog fetches: a
// robots.txt decision cache, per-host crawl delays, and a retrying HTTP
// client. One Coordinator is shared by every catalog adapter for the life of
// the process; it is the only component that talks to the network.
package crawl

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Options configures a Coordinator.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	MinDelay   time.Duration // minimum spacing between requests to one host
	RobotsTTL  time.Duration // how long a robots.txt decision is trusted
}

// Coordinator owns all process-wide crawl state. Safe for concurrent use:
// the single mutex serializes bookkeeping so two fetches to the same host
// cannot both observe a stale last-request time.
type Coordinator struct {
	client *http.Client
	opts   Options

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastRequest map[string]time.Time
	robots      map[string]robotsEntry
}

// NewCoordinator creates a Coordinator with defaults filled in.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.MinDelay == 0 {
		opts.MinDelay = time.Second
	}
	if opts.RobotsTTL == 0 {
		opts.RobotsTTL = 24 * time.Hour
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "mintmark/1.0 (personal collection manager)"
	}
	return &Coordinator{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:        opts,
		limiters:    make(map[string]*rate.Limiter),
		lastRequest: make(map[string]time.Time),
		robots:      make(map[string]robotsEntry),
	}
}

// wait blocks until the host's crawl delay allows another request.
func (c *Coordinator) wait(ctx context.Context, host string) error {
	c.mu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		delay := c.opts.MinDelay
		if e, ok := c.robots[host]; ok && e.crawlDelay > delay {
			delay = e.crawlDelay
		}
		lim = rate.NewLimiter(rate.Every(delay), 1)
		c.limiters[host] = lim
	}
	c.lastRequest[host] = time.Now()
	c.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return eris.Wrap(err, "crawl: rate limiter wait")
	}
	return nil
}

// LastRequest reports when the host was last scheduled for a request.
func (c *Coordinator) LastRequest(host string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastRequest[host]
	return t, ok
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "crawl: parse url %s", rawURL)
	}
	if u.Host == "" {
		return "", eris.Errorf("crawl: url %s has no host", rawURL)
	}
	return u.Host, nil
}
