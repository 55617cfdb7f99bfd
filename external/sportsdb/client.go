package sportsdb

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/riskibarqy/scoreboard/internal/domain/event"
	"github.com/riskibarqy/scoreboard/internal/platform/cache"
	"github.com/riskibarqy/scoreboard/internal/platform/logging"
	"github.com/riskibarqy/scoreboard/internal/platform/resilience"
	"github.com/riskibarqy/scoreboard/internal/usecase"
)

const (
	defaultBaseURL     = "https://www.thesportsdb.com/api"
	defaultMaxAttempts = 4
	defaultBackoffBase = 650 * time.Millisecond
	jitterSpread       = 0.33
	bodyExcerptLimit   = 180
	maxResponseBytes   = 6 << 20
)

// Per-feed cache windows. Livescore churns constantly; season listings are
// near-static within a day.
const (
	livescoreTTL    = 15 * time.Second
	nextFixturesTTL = 5 * time.Minute
	seasonTTL       = 3 * time.Hour
	recentFinalsTTL = 10 * time.Minute
	eventsDayTTL    = 30 * time.Minute
)

var errSportsDBTransient = crerr.New("sportsdb transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxAttempts    int
	Logger         *logging.Logger
	Cache          *cache.Store
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client fetches event feeds from the score provider. Every feed method is
// memoized through the shared SWR cache keyed by the full request URL, so
// concurrent callers coalesce and stale windows serve without blocking.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxAttempts    int
	backoffBase    time.Duration
	logger         *logging.Logger
	cache          *cache.Store
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		maxAttempts:    maxAttempts,
		backoffBase:    defaultBackoffBase,
		logger:         logger,
		cache:          cfg.Cache,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// Livescore returns currently running events for a sport. v2 endpoint, key
// travels in a header rather than the path.
func (c *Client) Livescore(ctx context.Context, sport string) ([]event.Raw, error) {
	fullURL := c.baseURL + "/v2/json/livescore/" + url.PathEscape(strings.ToLower(sport))
	return c.cachedEvents(ctx, fullURL, livescoreTTL, map[string]string{"X-API-KEY": c.apiKey})
}

// NextFixtures returns the league's upcoming scheduled events.
func (c *Client) NextFixtures(ctx context.Context, leagueID string) ([]event.Raw, error) {
	fullURL := c.v1URL("eventsnextleague.php", url.Values{"id": {leagueID}})
	return c.cachedEvents(ctx, fullURL, nextFixturesTTL, nil)
}

// SeasonEvents returns the full listing for one season label.
func (c *Client) SeasonEvents(ctx context.Context, leagueID, season string) ([]event.Raw, error) {
	fullURL := c.v1URL("eventsseason.php", url.Values{"id": {leagueID}, "s": {season}})
	return c.cachedEvents(ctx, fullURL, seasonTTL, nil)
}

// RecentFinals returns the league's most recently completed events.
func (c *Client) RecentFinals(ctx context.Context, leagueID string) ([]event.Raw, error) {
	fullURL := c.v1URL("eventspastleague.php", url.Values{"id": {leagueID}})
	return c.cachedEvents(ctx, fullURL, recentFinalsTTL, nil)
}

// EventsByDay returns all events on one calendar day for a sport label.
func (c *Client) EventsByDay(ctx context.Context, day time.Time, sportLabel string) ([]event.Raw, error) {
	fullURL := c.v1URL("eventsday.php", url.Values{
		"d": {day.UTC().Format("2006-01-02")},
		"s": {sportLabel},
	})
	return c.cachedEvents(ctx, fullURL, eventsDayTTL, nil)
}

func (c *Client) v1URL(endpoint string, query url.Values) string {
	fullURL := c.baseURL + "/v1/json/" + url.PathEscape(c.apiKey) + "/" + endpoint
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}
	return fullURL
}

func (c *Client) cachedEvents(ctx context.Context, fullURL string, ttl time.Duration, headers map[string]string) ([]event.Raw, error) {
	out, err := c.cache.GetOrLoad(ctx, fullURL, ttl, func(ctx context.Context) (any, error) {
		raw, err := c.fetchJSON(ctx, fullURL, headers)
		if err != nil {
			return nil, err
		}
		items, err := decodeEvents(raw)
		if err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	items, ok := out.([]event.Raw)
	if !ok {
		return nil, fmt.Errorf("unexpected cached payload type %T", out)
	}
	return items, nil
}

func (c *Client) fetchJSON(ctx context.Context, fullURL string, headers map[string]string) ([]byte, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "sportsdb circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: score data provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	raw, err := c.executeRequest(ctx, fullURL, headers)
	if c.circuitEnabled {
		if err != nil && crerr.Is(err, errSportsDBTransient) {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	return raw, err
}

func (c *Client) executeRequest(ctx context.Context, fullURL string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		raw, wait, err := c.attempt(ctx, fullURL, headers, attempt)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if attempt == c.maxAttempts-1 {
			break
		}
		if err := c.sleep(ctx, jitter(wait)); err != nil {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "sportsdb request failed", "url", c.redact(fullURL), "attempts", c.maxAttempts, "error", lastErr)
	return nil, lastErr
}

// attempt performs one request. On failure it returns the delay to wait
// before the next try; a 429 stretches the delay to whatever Retry-After
// demands when that exceeds the exponential backoff.
func (c *Client) attempt(ctx context.Context, fullURL string, headers map[string]string, attempt int) ([]byte, time.Duration, error) {
	wait := c.backoff(attempt)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, wait, crerr.Wrap(err, "build request")
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("user-agent", "scoreboard/1.0")
	for key, value := range headers {
		if strings.TrimSpace(value) != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wait, fmt.Errorf("%w: send request: %s", errSportsDBTransient, c.redact(err.Error()))
	}

	raw, readErr := readBody(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, wait, fmt.Errorf("%w: read response body: %v", errSportsDBTransient, readErr)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > wait {
			wait = retryAfter
		}
		return nil, wait, fmt.Errorf("%w: provider status=429 body=%s", errSportsDBTransient, abbreviateBody(raw))
	default:
		return nil, wait, fmt.Errorf("%w: provider status=%d body=%s", errSportsDBTransient, resp.StatusCode, abbreviateBody(raw))
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffBase << attempt
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) redact(value string) string {
	if c.apiKey == "" {
		return value
	}
	return strings.ReplaceAll(value, c.apiKey, "REDACTED")
}

func readBody(body io.Reader) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(body, maxResponseBytes)); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// jitter spreads a delay uniformly within ±33% so synchronized retries from
// coalesced callers fan out instead of hammering the provider together.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	factor := 1 + (rand.Float64()*2-1)*jitterSpread
	return time.Duration(float64(d) * factor)
}

func parseRetryAfter(raw string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func abbreviateBody(raw []byte) string {
	text := strings.Join(strings.Fields(string(raw)), " ")
	if len(text) <= bodyExcerptLimit {
		return text
	}
	return text[:bodyExcerptLimit] + "..."
}
