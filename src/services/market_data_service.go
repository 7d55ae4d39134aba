// backend/src/services/market_data_service.go
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/tradereview/backend/src/cache"
	"github.com/username/tradereview/backend/src/logger"
	"github.com/username/tradereview/backend/src/metrics"
	"github.com/username/tradereview/backend/src/model"
	"github.com/username/tradereview/backend/src/models"
	"github.com/username/tradereview/backend/src/security/validation"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultMarketDataBaseURL = "https://query1.finance.yahoo.com"
	userAgent                = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	ckPriceBars      = "bars_%s_%s_%s"
	ckInstrumentName = "name_%s"
	nameCacheTTL     = 24 * time.Hour
)

// --- API Response Structs ---

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		Exchange  string `json:"exchange"`
		Shortname string `json:"shortname"`
		Longname  string `json:"longname"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

type yahooHistoryResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency  string `json:"currency"`
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// MarketDataConfig wires the Yahoo Finance client.
type MarketDataConfig struct {
	BaseURL  string
	Timeout  time.Duration
	PriceTTL time.Duration
	Cache    cache.Store
	DB       *sql.DB // optional, persists resolved names
}

type marketDataServiceImpl struct {
	httpClient    http.Client
	baseURL       string
	warmupURLs    []string
	cache         cache.Store
	priceTTL      time.Duration
	db            *sql.DB
	isInitialized bool
	crumb         string
	mu            sync.Mutex
}

func NewMarketDataService(cfg MarketDataConfig) MarketDataService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = time.Hour
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemoryStore(cfg.PriceTTL, cache.CacheCleanupInterval)
	}

	s := &marketDataServiceImpl{
		httpClient: http.Client{Jar: jar, Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cache:      cfg.Cache,
		priceTTL:   cfg.PriceTTL,
		db:         cfg.DB,
	}
	if s.baseURL == "" {
		s.baseURL = DefaultMarketDataBaseURL
	}
	if s.baseURL == DefaultMarketDataBaseURL {
		// Yahoo only hands out a crumb to sessions carrying these cookies
		s.warmupURLs = []string{"https://fc.yahoo.com", "https://finance.yahoo.com"}
	}
	return s
}

func (s *marketDataServiceImpl) initializeSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInitialized {
		return
	}

	logger.FromContext(ctx).Info("Initializing market data session and fetching crumb...")
	for _, u := range s.warmupURLs {
		if resp, err := s.get(ctx, u); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	resp, err := s.get(ctx, s.baseURL+"/v1/test/getcrumb")
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to fetch crumb", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		s.crumb = strings.TrimSpace(string(bodyBytes))
		s.isInitialized = true
		logger.FromContext(ctx).Info("Market data session initialized successfully")
	} else {
		logger.FromContext(ctx).Warn("Failed to fetch crumb", "status", resp.Status)
	}
}

func (s *marketDataServiceImpl) ensureSession(ctx context.Context) string {
	s.mu.Lock()
	needsInit := !s.isInitialized
	s.mu.Unlock()

	if needsInit {
		s.initializeSession(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumb
}

func (s *marketDataServiceImpl) invalidateSession() {
	s.mu.Lock()
	s.isInitialized = false
	s.crumb = ""
	s.mu.Unlock()
}

func (s *marketDataServiceImpl) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return s.httpClient.Do(req)
}

// GetPriceBars returns daily OHLCV bars, cached per (instrument, start, end).
func (s *marketDataServiceImpl) GetPriceBars(ctx context.Context, instrumentID string, start, end time.Time) ([]models.PriceBar, error) {
	key := fmt.Sprintf(ckPriceBars, instrumentID, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var bars []models.PriceBar
	if found, err := cache.GetJSON(ctx, s.cache, key, &bars); err != nil {
		logger.FromContext(ctx).Warn("Price bar cache read failed", "key", key, "error", err)
	} else if found {
		metrics.CacheLookups.WithLabelValues("price_bars", "hit").Inc()
		return bars, nil
	}
	metrics.CacheLookups.WithLabelValues("price_bars", "miss").Inc()

	bars, err := s.fetchPriceBars(ctx, instrumentID, start, end, true)
	if err != nil {
		metrics.MarketDataRequests.WithLabelValues("chart", "error").Inc()
		return nil, err
	}
	metrics.MarketDataRequests.WithLabelValues("chart", "ok").Inc()

	if err := cache.SetJSON(ctx, s.cache, key, bars, s.priceTTL); err != nil {
		logger.FromContext(ctx).Warn("Price bar cache write failed", "key", key, "error", err)
	}
	return bars, nil
}

func (s *marketDataServiceImpl) fetchPriceBars(ctx context.Context, instrumentID string, start, end time.Time, retry bool) ([]models.PriceBar, error) {
	crumb := s.ensureSession(ctx)

	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	if crumb != "" {
		q.Set("crumb", crumb)
	}
	chartURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.baseURL, url.PathEscape(instrumentID), q.Encode())

	resp, err := s.get(ctx, chartURL)
	if err != nil {
		return nil, fmt.Errorf("failed to call chart API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && retry {
		s.invalidateSession()
		return s.fetchPriceBars(ctx, instrumentID, start, end, false)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNoMarketData, instrumentID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned non-OK status %d", resp.StatusCode)
	}

	var history yahooHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if history.Chart.Error != nil {
		return nil, fmt.Errorf("chart API returned an error: %v", history.Chart.Error)
	}
	if len(history.Chart.Result) == 0 || len(history.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMarketData, instrumentID)
	}

	result := history.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]models.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePrice := at(quote.Close, i)
		if closePrice == nil {
			continue
		}
		// Shift to exchange local time so the bar lands on its trading day
		local := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		bar := models.PriceBar{
			Date:  time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
			Close: decimal.NewFromFloat(*closePrice),
			Open:  decimalOr(at(quote.Open, i), *closePrice),
			High:  decimalOr(at(quote.High, i), *closePrice),
			Low:   decimalOr(at(quote.Low, i), *closePrice),
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMarketData, instrumentID)
	}
	return bars, nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func decimalOr(v *float64, fallback float64) decimal.Decimal {
	if v == nil {
		return decimal.NewFromFloat(fallback)
	}
	return decimal.NewFromFloat(*v)
}

// GetInstrumentName looks the name up in the cache, then the database, then the
// search API. Resolved names are persisted.
func (s *marketDataServiceImpl) GetInstrumentName(ctx context.Context, instrumentID string) (string, error) {
	key := fmt.Sprintf(ckInstrumentName, instrumentID)
	if b, found, err := s.cache.Get(ctx, key); err == nil && found {
		metrics.CacheLookups.WithLabelValues("instrument_names", "hit").Inc()
		return string(b), nil
	}
	metrics.CacheLookups.WithLabelValues("instrument_names", "miss").Inc()

	if s.db != nil {
		names, err := model.GetInstrumentNames(s.db, []string{instrumentID})
		if err != nil {
			logger.FromContext(ctx).Error("Failed to read instrument names from DB", "instrument", instrumentID, "error", err)
		} else if n, ok := names[instrumentID]; ok {
			s.cache.Set(ctx, key, []byte(n.DisplayName), nameCacheTTL)
			return n.DisplayName, nil
		}
	}

	name, err := s.searchName(ctx, instrumentID)
	if err != nil {
		metrics.MarketDataRequests.WithLabelValues("search", "error").Inc()
		return "", err
	}
	metrics.MarketDataRequests.WithLabelValues("search", "ok").Inc()

	s.cache.Set(ctx, key, []byte(name), nameCacheTTL)
	if s.db != nil {
		model.UpsertInstrumentName(s.db, model.InstrumentName{InstrumentID: instrumentID, DisplayName: name, Source: "market_data"})
	}
	return name, nil
}

func (s *marketDataServiceImpl) searchName(ctx context.Context, instrumentID string) (string, error) {
	q := url.Values{}
	q.Set("q", instrumentID)
	q.Set("quotesCount", "5")
	q.Set("newsCount", "0")
	resp, err := s.get(ctx, s.baseURL+"/v1/finance/search?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("failed to call search API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned non-OK status %d", resp.StatusCode)
	}

	var searchData yahooSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchData); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}
	for _, quote := range searchData.Quotes {
		if !strings.EqualFold(quote.Symbol, instrumentID) {
			continue
		}
		name := quote.Longname
		if name == "" {
			name = quote.Shortname
		}
		if name = validation.SanitizeDisplayName(name); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no name found for %s", ErrNoMarketData, instrumentID)
}
