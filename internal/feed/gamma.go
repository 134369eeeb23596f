// Package feed turns venue market data into scan snapshots and live quotes.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FewZ2372/polymarket-bot/pkg/cache"
	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// MaxBatchSize is the largest page the Gamma API serves.
	MaxBatchSize = 100

	DefaultGammaURL = "https://gamma-api.polymarket.com"

	gammaService = "gamma-api"
)

// GammaConfig holds Gamma client configuration.
type GammaConfig struct {
	BaseURL string
	// RateLimit is requests per second; Burst defaults to 5.
	RateLimit  float64
	Burst      int
	Cache      cache.Cache
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GammaClient reads markets and events from the Gamma API. List responses are cached for
// CacheTTL; lookups by id always go to the network so resolution is never stale.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewGammaClient creates a Gamma API client.
func NewGammaClient(cfg *GammaConfig) (*GammaClient, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &GammaClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		logger:     cfg.Logger,
	}, nil
}

// FetchMarkets returns up to limit active markets ordered by 24h volume. A limit of 0 fetches all.
func (c *GammaClient) FetchMarkets(ctx context.Context, limit int) ([]types.GammaMarket, error) {
	return cache.Load(c.cache, cache.Key("gamma-markets", limit), c.cacheTTL, func() ([]types.GammaMarket, error) {
		return paginate(ctx, c, limit, func(ctx context.Context, pageLimit, offset int) ([]types.GammaMarket, error) {
			params := activeParams(pageLimit, offset)
			params.Set("order", "volume24hr")
			var page []types.GammaMarket
			if err := c.get(ctx, "/markets", params, &page); err != nil {
				return nil, err
			}
			return page, nil
		})
	})
}

// FetchEvents returns up to limit active events with their child markets.
func (c *GammaClient) FetchEvents(ctx context.Context, limit int) ([]types.GammaEvent, error) {
	return cache.Load(c.cache, cache.Key("gamma-events", limit), c.cacheTTL, func() ([]types.GammaEvent, error) {
		return paginate(ctx, c, limit, func(ctx context.Context, pageLimit, offset int) ([]types.GammaEvent, error) {
			params := activeParams(pageLimit, offset)
			params.Set("order", "volume24hr")
			var page []types.GammaEvent
			if err := c.get(ctx, "/events", params, &page); err != nil {
				return nil, err
			}
			return page, nil
		})
	})
}

// FetchMarketsByID looks markets up by id, closed ones included.
func (c *GammaClient) FetchMarketsByID(ctx context.Context, ids []string) ([]types.GammaMarket, error) {
	var out []types.GammaMarket
	for start := 0; start < len(ids); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		params := url.Values{}
		for _, id := range ids[start:end] {
			params.Add("id", id)
		}
		params.Set("limit", strconv.Itoa(end-start))

		var page []types.GammaMarket
		if err := c.get(ctx, "/markets", params, &page); err != nil {
			return nil, fmt.Errorf("fetch markets by id: %w", err)
		}
		out = append(out, page...)
	}
	return out, nil
}

func activeParams(limit, offset int) url.Values {
	params := url.Values{}
	params.Set("closed", "false")
	params.Set("active", "true")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("ascending", "false")
	return params
}

// paginate walks pages of MaxBatchSize until a short page or the limit. limit 0 means no limit.
func paginate[T any](
	ctx context.Context,
	c *GammaClient,
	limit int,
	fetch func(ctx context.Context, pageLimit, offset int) ([]T, error),
) ([]T, error) {
	var all []T
	for page := 0; ; page++ {
		pageLimit := MaxBatchSize
		if limit > 0 {
			remaining := limit - len(all)
			if remaining <= 0 {
				break
			}
			if remaining < pageLimit {
				pageLimit = remaining
			}
		}

		items, err := fetch(ctx, pageLimit, page*MaxBatchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, items...)

		c.logger.Debug("fetched-page",
			zap.Int("page", page),
			zap.Int("items", len(items)),
			zap.Int("total", len(all)))

		if len(items) < pageLimit {
			break
		}
	}
	return all, nil
}

func (c *GammaClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-bot/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		GammaRequestsTotal.WithLabelValues(path, "error").Inc()
		return &types.ExternalServiceError{Service: gammaService, Err: err}
	}
	defer resp.Body.Close()

	GammaRequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
	GammaRequestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &types.ExternalServiceError{
			Service: gammaService,
			Err:     fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, truncate(body, 200)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
