package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"crypto-market-pulse/internal/series"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// ClientOptions parameterise the market-data API client.
type ClientOptions struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	RetryCount int
}

// Client fetches raw market data from a CoinGecko-compatible REST API.
type Client struct {
	opts   ClientOptions
	logger zerolog.Logger
	http   *resty.Client
}

// NewClient constructs a market-data API client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "marketpulse/1.0"
	}
	retries := opts.RetryCount
	if retries < 0 {
		retries = 0
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "market_client").Logger(),
		http:   http,
	}
}

// GlobalData is the aggregate market snapshot from /global.
type GlobalData struct {
	TotalMarketCapUSD      float64
	TotalVolumeUSD         float64
	MarketCapChange24h     float64
	DominancePct           map[string]float64
	ActiveCryptocurrencies int
}

type globalResponse struct {
	Data struct {
		TotalMarketCap         map[string]float64 `json:"total_market_cap"`
		TotalVolume            map[string]float64 `json:"total_volume"`
		MarketCapPercentage    map[string]float64 `json:"market_cap_percentage"`
		MarketCapChangePct24h  float64            `json:"market_cap_change_percentage_24h_usd"`
		ActiveCryptocurrencies int                `json:"active_cryptocurrencies"`
	} `json:"data"`
}

// FetchGlobal retrieves aggregate market data.
func (c *Client) FetchGlobal(ctx context.Context) (GlobalData, error) {
	var payload globalResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/global")
	if err != nil {
		return GlobalData{}, fmt.Errorf("fetch global data: %w", err)
	}
	if resp.IsError() {
		return GlobalData{}, apiError(resp)
	}

	return GlobalData{
		TotalMarketCapUSD:      payload.Data.TotalMarketCap["usd"],
		TotalVolumeUSD:         payload.Data.TotalVolume["usd"],
		MarketCapChange24h:     payload.Data.MarketCapChangePct24h,
		DominancePct:           payload.Data.MarketCapPercentage,
		ActiveCryptocurrencies: payload.Data.ActiveCryptocurrencies,
	}, nil
}

type marketRow struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	MarketCap     float64 `json:"market_cap"`
	CurrentPrice  float64 `json:"current_price"`
	MarketCapRank int     `json:"market_cap_rank"`
	Change24h     float64 `json:"price_change_percentage_24h_in_currency"`
	Change7d      float64 `json:"price_change_percentage_7d_in_currency"`
	Change30d     float64 `json:"price_change_percentage_30d_in_currency"`
}

// FetchMarkets retrieves the top-n coins by market cap as a cross-sectional
// snapshot.
func (c *Client) FetchMarkets(ctx context.Context, n int) (series.CrossSection, error) {
	if n <= 0 {
		n = 100
	}

	var rows []marketRow
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency":             "usd",
			"order":                   "market_cap_desc",
			"per_page":                fmt.Sprintf("%d", n),
			"page":                    "1",
			"price_change_percentage": "24h,7d,30d",
		}).
		SetResult(&rows).
		Get("/coins/markets")
	if err != nil {
		return series.CrossSection{}, fmt.Errorf("fetch markets: %w", err)
	}
	if resp.IsError() {
		return series.CrossSection{}, apiError(resp)
	}

	snapshot := series.CrossSection{Taken: time.Now().UTC()}
	for _, row := range rows {
		if row.MarketCap < 0 {
			continue
		}
		snapshot.Assets = append(snapshot.Assets, series.Asset{
			Symbol:    strings.ToUpper(row.Symbol),
			Name:      row.Name,
			MarketCap: row.MarketCap,
			Price:     row.CurrentPrice,
			Change24h: row.Change24h,
			Change7d:  row.Change7d,
			Change30d: row.Change30d,
			Rank:      row.MarketCapRank,
		})
	}
	return snapshot, nil
}

type chartResponse struct {
	Prices     [][]float64 `json:"prices"`
	MarketCaps [][]float64 `json:"market_caps"`
}

// FetchMarketChart retrieves daily price and market-cap history for a coin.
func (c *Client) FetchMarketChart(ctx context.Context, coinID string, days int) (prices, caps series.TimeSeries, err error) {
	if coinID == "" {
		return series.TimeSeries{}, series.TimeSeries{}, fmt.Errorf("coin id required")
	}
	if days <= 0 {
		days = 90
	}

	var payload chartResponse
	resp, reqErr := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency": "usd",
			"days":        fmt.Sprintf("%d", days),
			"interval":    "daily",
		}).
		SetResult(&payload).
		Get("/coins/" + coinID + "/market_chart")
	if reqErr != nil {
		return series.TimeSeries{}, series.TimeSeries{}, fmt.Errorf("fetch market chart for %s: %w", coinID, reqErr)
	}
	if resp.IsError() {
		return series.TimeSeries{}, series.TimeSeries{}, apiError(resp)
	}

	return pairsToSeries(payload.Prices), pairsToSeries(payload.MarketCaps), nil
}

// FetchGlobalChart retrieves the total-market-cap history.
func (c *Client) FetchGlobalChart(ctx context.Context, days int) (series.TimeSeries, error) {
	if days <= 0 {
		days = 90
	}

	var payload struct {
		MarketCaps [][]float64 `json:"market_cap_chart"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency": "usd",
			"days":        fmt.Sprintf("%d", days),
		}).
		SetResult(&payload).
		Get("/global/market_cap_chart")
	if err != nil {
		return series.TimeSeries{}, fmt.Errorf("fetch global chart: %w", err)
	}
	if resp.IsError() {
		return series.TimeSeries{}, apiError(resp)
	}

	return pairsToSeries(payload.MarketCaps), nil
}

func pairsToSeries(pairs [][]float64) series.TimeSeries {
	points := make([]series.Point, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		points = append(points, series.Point{
			Timestamp: time.UnixMilli(int64(pair[0])).UTC(),
			Value:     pair[1],
		})
	}
	return series.New(points)
}

func apiError(resp *resty.Response) error {
	body := strings.TrimSpace(string(resp.Body()))
	if body != "" {
		return fmt.Errorf("market api error (%d): %s", resp.StatusCode(), body)
	}
	return fmt.Errorf("market api error (%d)", resp.StatusCode())
}
