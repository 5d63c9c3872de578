package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"crypto-market-pulse/internal/cache"
	"crypto-market-pulse/internal/entropy"
	"crypto-market-pulse/internal/series"
)

// MarketData is the interface the analysis layer consumes.
type MarketData interface {
	GlobalMarketData(ctx context.Context) (GlobalData, error)
	TopByMarketCap(ctx context.Context, n int) (series.CrossSection, error)
	MarketCapSegments(ctx context.Context) (Segments, error)
	HistoricalMarketCaps(ctx context.Context, days int) (series.TimeSeries, error)
	HistoricalDominance(ctx context.Context, days int) (series.TimeSeries, error)
	HistoricalPrices(ctx context.Context, coinID string, days int) (series.TimeSeries, error)
	AltcoinSeasonIndex(ctx context.Context) (SeasonIndex, error)
	ConcentrationMetrics(ctx context.Context) (Concentration, error)
}

// Segments breaks the total market cap into exclusion tiers.
type Segments struct {
	TotalUSD          float64
	ExclBTCUSD        float64
	ExclBTCETHUSD     float64
	ExclTop10USD      float64
	BTCDominancePct   float64
	ETHDominancePct   float64
	Top10DominancePct float64
}

// SeasonIndex reports the share of top-50 altcoins outperforming BTC over 30
// days and the derived season label.
type SeasonIndex struct {
	OutperformingPct float64
	Outperforming    int
	SampleSize       int
	Season           string
}

// Concentration summarises market-cap concentration over the top 100 coins.
type Concentration struct {
	HHI        float64
	CR1        float64
	CR4        float64
	CR10       float64
	EntropyPct float64
	AssetCount int
}

// Collector fetches market data through the API client with a TTL cache in
// front of every call. Failed fetches return the zero value and an error;
// callers treat any error as "data unavailable".
type Collector struct {
	client *Client
	cache  *cache.Cache
	logger zerolog.Logger
}

// New constructs a Collector.
func New(client *Client, ttl time.Duration, logger zerolog.Logger) *Collector {
	return &Collector{
		client: client,
		cache:  cache.New(ttl),
		logger: logger.With().Str("component", "collector").Logger(),
	}
}

// ClearCache drops all cached responses.
func (c *Collector) ClearCache() {
	c.cache.Clear()
}

// GlobalMarketData returns the aggregate market snapshot.
func (c *Collector) GlobalMarketData(ctx context.Context) (GlobalData, error) {
	if v, ok := c.cache.Get("global"); ok {
		return v.(GlobalData), nil
	}
	data, err := c.client.FetchGlobal(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("global market data fetch failed")
		return GlobalData{}, err
	}
	c.cache.Set("global", data)
	return data, nil
}

// TopByMarketCap returns the top-n coins ranked by market cap.
func (c *Collector) TopByMarketCap(ctx context.Context, n int) (series.CrossSection, error) {
	key := fmt.Sprintf("markets:%d", n)
	if v, ok := c.cache.Get(key); ok {
		return v.(series.CrossSection), nil
	}
	snapshot, err := c.client.FetchMarkets(ctx, n)
	if err != nil {
		c.logger.Error().Err(err).Int("n", n).Msg("top coins fetch failed")
		return series.CrossSection{}, err
	}
	c.cache.Set(key, snapshot)
	return snapshot, nil
}

// MarketCapSegments splits total market cap into exclusion tiers using the
// global data and the top-10 snapshot.
func (c *Collector) MarketCapSegments(ctx context.Context) (Segments, error) {
	global, err := c.GlobalMarketData(ctx)
	if err != nil {
		return Segments{}, err
	}
	top10, err := c.TopByMarketCap(ctx, 10)
	if err != nil {
		return Segments{}, err
	}

	total := global.TotalMarketCapUSD
	btcDom := global.DominancePct["btc"]
	ethDom := global.DominancePct["eth"]

	top10Cap := top10.TotalMarketCap()
	seg := Segments{
		TotalUSD:        total,
		ExclBTCUSD:      total * (1 - btcDom/100),
		ExclBTCETHUSD:   total * (1 - (btcDom+ethDom)/100),
		ExclTop10USD:    math.Max(0, total-top10Cap),
		BTCDominancePct: btcDom,
		ETHDominancePct: ethDom,
	}
	if total > 0 {
		seg.Top10DominancePct = top10Cap / total * 100
	}
	return seg, nil
}

// HistoricalMarketCaps returns the daily total-market-cap series.
func (c *Collector) HistoricalMarketCaps(ctx context.Context, days int) (series.TimeSeries, error) {
	key := fmt.Sprintf("global_chart:%d", days)
	if v, ok := c.cache.Get(key); ok {
		return v.(series.TimeSeries), nil
	}
	s, err := c.client.FetchGlobalChart(ctx, days)
	if err != nil {
		c.logger.Error().Err(err).Int("days", days).Msg("historical market caps fetch failed")
		return series.TimeSeries{}, err
	}
	c.cache.Set(key, s)
	return s, nil
}

// HistoricalDominance derives the daily BTC dominance series from the BTC
// market-cap history and the total-market-cap history.
func (c *Collector) HistoricalDominance(ctx context.Context, days int) (series.TimeSeries, error) {
	key := fmt.Sprintf("dominance:%d", days)
	if v, ok := c.cache.Get(key); ok {
		return v.(series.TimeSeries), nil
	}

	total, err := c.HistoricalMarketCaps(ctx, days)
	if err != nil {
		return series.TimeSeries{}, err
	}
	_, btcCaps, err := c.client.FetchMarketChart(ctx, "bitcoin", days)
	if err != nil {
		c.logger.Error().Err(err).Int("days", days).Msg("btc market cap history fetch failed")
		return series.TimeSeries{}, err
	}

	totalByDay := make(map[string]float64, total.Len())
	for _, p := range total.Points() {
		totalByDay[p.Timestamp.Format("2006-01-02")] = p.Value
	}

	points := make([]series.Point, 0, btcCaps.Len())
	for _, p := range btcCaps.Points() {
		totalCap, ok := totalByDay[p.Timestamp.Format("2006-01-02")]
		if !ok || totalCap <= 0 {
			continue
		}
		dom := p.Value / totalCap * 100
		if dom < 0 || dom > 100 {
			continue
		}
		points = append(points, series.Point{Timestamp: p.Timestamp, Value: dom})
	}

	s := series.New(points)
	c.cache.Set(key, s)
	return s, nil
}

// HistoricalPrices returns the daily price series for a coin.
func (c *Collector) HistoricalPrices(ctx context.Context, coinID string, days int) (series.TimeSeries, error) {
	key := fmt.Sprintf("prices:%s:%d", coinID, days)
	if v, ok := c.cache.Get(key); ok {
		return v.(series.TimeSeries), nil
	}
	prices, _, err := c.client.FetchMarketChart(ctx, coinID, days)
	if err != nil {
		c.logger.Error().Err(err).Str("coin", coinID).Msg("price history fetch failed")
		return series.TimeSeries{}, err
	}
	c.cache.Set(key, prices)
	return prices, nil
}

// AltcoinSeasonIndex computes the share of the top-50 altcoins whose 30-day
// return beats BTC's.
func (c *Collector) AltcoinSeasonIndex(ctx context.Context) (SeasonIndex, error) {
	snapshot, err := c.TopByMarketCap(ctx, 51)
	if err != nil {
		return SeasonIndex{}, err
	}

	var btcReturn float64
	found := false
	for _, asset := range snapshot.Assets {
		if asset.Symbol == "BTC" {
			btcReturn = asset.Change30d
			found = true
			break
		}
	}
	if !found {
		return SeasonIndex{}, fmt.Errorf("btc missing from market snapshot")
	}

	alts := snapshot.Exclude("BTC").TopN(50)
	if len(alts) == 0 {
		return SeasonIndex{}, fmt.Errorf("no altcoins in market snapshot")
	}

	outperforming := 0
	for _, asset := range alts {
		if asset.Change30d > btcReturn {
			outperforming++
		}
	}
	pct := float64(outperforming) / float64(len(alts)) * 100

	return SeasonIndex{
		OutperformingPct: pct,
		Outperforming:    outperforming,
		SampleSize:       len(alts),
		Season:           classifySeason(pct),
	}, nil
}

// ConcentrationMetrics computes HHI, concentration ratios, and normalized
// entropy over the top-100 snapshot.
func (c *Collector) ConcentrationMetrics(ctx context.Context) (Concentration, error) {
	snapshot, err := c.TopByMarketCap(ctx, 100)
	if err != nil {
		return Concentration{}, err
	}

	total := snapshot.TotalMarketCap()
	if total <= 0 || len(snapshot.Assets) == 0 {
		return Concentration{}, fmt.Errorf("empty market snapshot")
	}

	shares := make([]float64, len(snapshot.Assets))
	hhi := 0.0
	for i, asset := range snapshot.Assets {
		shares[i] = asset.MarketCap / total
		hhi += shares[i] * shares[i]
	}

	entropyPct := 0.0
	if maxH := math.Log(float64(len(shares))); maxH > 0 {
		entropyPct = entropy.Portfolio(shares) / maxH * 100
	}

	return Concentration{
		HHI:        hhi * 10000,
		CR1:        topShare(snapshot, 1, total),
		CR4:        topShare(snapshot, 4, total),
		CR10:       topShare(snapshot, 10, total),
		EntropyPct: entropyPct,
		AssetCount: len(snapshot.Assets),
	}, nil
}

func topShare(snapshot series.CrossSection, n int, total float64) float64 {
	sum := 0.0
	for _, asset := range snapshot.TopN(n) {
		sum += asset.MarketCap
	}
	return sum / total * 100
}

func classifySeason(pct float64) string {
	switch {
	case pct >= 75:
		return "Strong Altcoin Season"
	case pct >= 50:
		return "Altcoin Season"
	case pct >= 25:
		return "Bitcoin Season"
	default:
		return "Strong Bitcoin Season"
	}
}

var _ MarketData = (*Collector)(nil)
