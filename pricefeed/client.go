package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the dex.ag aggregator API
	DefaultBaseURL = "https://api-v2.dex.ag"

	// DefaultTolerance is the accepted relative deviation from the online price
	DefaultTolerance = 0.02

	defaultAttempts = 3
	serviceName     = "pricefeed"
)

// Config configures the price feed client
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	Attempts          int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client fetches spot prices from the aggregator. Prices are cached for the
// lifetime of the client; a pair and its reverse share one entry.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu    sync.RWMutex
	cache map[string]float64
	group singleflight.Group
}

// NewClient creates a price feed client
func NewClient(cfg Config, m *metrics.Metrics, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		logger:     logger,
		metrics:    m,
		cache:      make(map[string]float64),
	}, nil
}

type priceResponse struct {
	Price decimal.Decimal `json:"price"`
	Error string          `json:"error"`
}

// Price returns how many bought tokens one sold token is worth
func (c *Client) Price(ctx context.Context, bought, sold string) (float64, error) {
	if p, ok := c.cached(bought, sold); ok {
		return p, nil
	}

	v, err, _ := c.group.Do(bought+"-"+sold, func() (interface{}, error) {
		if p, ok := c.cached(bought, sold); ok {
			return p, nil
		}
		p, err := c.fetchWithRetry(ctx, bought, sold)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[bought+"-"+sold] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Client) cached(bought, sold string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.cache[bought+"-"+sold]; ok {
		return p, true
	}
	if p, ok := c.cache[sold+"-"+bought]; ok {
		return 1 / p, true
	}
	return 0, false
}

func (c *Client) fetchWithRetry(ctx context.Context, bought, sold string) (float64, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.Attempts; attempt++ {
		price, err := c.fetch(ctx, bought, sold)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if c.metrics != nil {
			c.metrics.PriceFailures.Inc()
		}
		c.logger.Debug("Price request failed",
			zap.String("pair", bought+"-"+sold),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
		if attempt < c.config.Attempts && c.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.config.RetryDelay):
			}
		}
	}
	return 0, &types.ExternalServiceError{Service: serviceName, Attempts: c.config.Attempts, Err: lastErr}
}

func (c *Client) fetch(ctx context.Context, bought, sold string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if c.metrics != nil {
		c.metrics.PriceRequests.Inc()
		defer c.metrics.ObserveCall(serviceName, time.Now())
	}

	query := url.Values{}
	query.Set("from", aggregatorSymbol(sold))
	query.Set("to", aggregatorSymbol(bought))
	query.Set("fromAmount", "1")
	query.Set("dex", "ag")
	endpoint := c.config.BaseURL + "/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	var result priceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price request failed with status %d: %s", resp.StatusCode, result.Error)
	}

	price, _ := result.Price.Float64()
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("invalid price %s", result.Price.String())
	}
	return price, nil
}

// the aggregator treats WETH as ETH and rejects the wrapped symbol
func aggregatorSymbol(symbol string) string {
	if symbol == "WETH" {
		return "ETH"
	}
	return symbol
}

// IsPriceReasonable compares price, in quote per base, with the online price.
// An unavailable online price is never reasonable; its error is returned
// alongside false.
func (c *Client) IsPriceReasonable(ctx context.Context, base, quote types.Token, price, tolerance float64) (bool, error) {
	online, err := c.Price(ctx, quote.Symbol, base.Symbol)
	if err != nil {
		c.logger.Warn("Could not perform price check against price aggregator", zap.Error(err))
		return false, err
	}

	deviation := math.Abs(online-price) / price
	if deviation >= tolerance {
		c.logger.Warn("Chosen price deviates from the aggregator price",
			zap.String("chosen", decimal.NewFromFloat(price).String()),
			zap.String("online", decimal.NewFromFloat(online).String()),
			zap.String("pair", quote.Symbol+"/"+base.Symbol),
			zap.Float64("tolerance", tolerance))
		return false, nil
	}
	return true, nil
}

// ErrUnreasonableBounds is returned by CheckBounds
var ErrUnreasonableBounds = errors.New("bounds are not reasonable for the current price")

// AreBoundsReasonable holds when the current price lies strictly inside the
// bounds and both bounds are within a factor 1.5 of it.
func AreBoundsReasonable(currentPrice, lowest, highest float64) bool {
	closeToPrice := currentPrice/1.5 < lowest && highest < currentPrice*1.5
	priceWithin := currentPrice > lowest && highest > currentPrice
	return closeToPrice && priceWithin
}

// CheckBounds is AreBoundsReasonable returning a descriptive error
func CheckBounds(currentPrice, lowest, highest float64) error {
	if !AreBoundsReasonable(currentPrice, lowest, highest) {
		return fmt.Errorf("%w: price %v, bounds [%v, %v]", ErrUnreasonableBounds, currentPrice, lowest, highest)
	}
	return nil
}
