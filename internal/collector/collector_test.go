package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestCollector(t *testing.T, handler http.Handler) (*Collector, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	return New(client, time.Minute, noopLogger()), srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func globalPayload(totalUSD, btcDom, ethDom float64) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"total_market_cap":                     map[string]float64{"usd": totalUSD},
			"total_volume":                         map[string]float64{"usd": totalUSD / 20},
			"market_cap_percentage":                map[string]float64{"btc": btcDom, "eth": ethDom},
			"market_cap_change_percentage_24h_usd": 1.5,
			"active_cryptocurrencies":              12000,
		},
	}
}

func marketRows(n int, btcChange30d float64) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		symbol := fmt.Sprintf("alt%d", i)
		change30d := 5.0
		if i%2 == 1 {
			change30d = -5.0
		}
		if i == 0 {
			symbol = "btc"
			change30d = btcChange30d
		}
		rows = append(rows, map[string]any{
			"symbol":          symbol,
			"name":            symbol,
			"market_cap":      float64(1_000_000_000 * (n - i)),
			"current_price":   100.0,
			"market_cap_rank": i + 1,
			"price_change_percentage_24h_in_currency": 1.0,
			"price_change_percentage_7d_in_currency":  2.0,
			"price_change_percentage_30d_in_currency": change30d,
		})
	}
	return rows
}

func chartPairs(days int, start, step float64) [][]float64 {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pairs := make([][]float64, days)
	for i := 0; i < days; i++ {
		ts := base.AddDate(0, 0, i)
		pairs[i] = []float64{float64(ts.UnixMilli()), start + step*float64(i)}
	}
	return pairs
}

func TestGlobalMarketDataCachesResponse(t *testing.T) {
	var hits int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		writeJSON(t, w, globalPayload(3e12, 55, 17))
	})
	c, _ := newTestCollector(t, handler)

	first, err := c.GlobalMarketData(context.Background())
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if first.TotalMarketCapUSD != 3e12 {
		t.Fatalf("unexpected total market cap: %v", first.TotalMarketCapUSD)
	}
	if first.DominancePct["btc"] != 55 {
		t.Fatalf("unexpected btc dominance: %v", first.DominancePct["btc"])
	}

	if _, err := c.GlobalMarketData(context.Background()); err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Fatalf("second call should hit the cache, got %d upstream hits", hits)
	}
}

func TestGlobalMarketDataUpstreamError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c, _ := newTestCollector(t, handler)

	if _, err := c.GlobalMarketData(context.Background()); err == nil {
		t.Fatal("HTTP 429 should return an error")
	}
}

func TestTopByMarketCapNormalizesSymbols(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("price_change_percentage") != "24h,7d,30d" {
			t.Fatalf("missing price change horizons: %s", r.URL.RawQuery)
		}
		writeJSON(t, w, marketRows(3, 4))
	})
	c, _ := newTestCollector(t, handler)

	snapshot, err := c.TopByMarketCap(context.Background(), 3)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(snapshot.Assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(snapshot.Assets))
	}
	if snapshot.Assets[0].Symbol != "BTC" {
		t.Fatalf("symbols should be upper-cased, got %s", snapshot.Assets[0].Symbol)
	}
}

func TestMarketCapSegments(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/global":
			writeJSON(t, w, globalPayload(4e12, 50, 20))
		case "/coins/markets":
			writeJSON(t, w, marketRows(10, 4))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	c, _ := newTestCollector(t, handler)

	seg, err := c.MarketCapSegments(context.Background())
	if err != nil {
		t.Fatalf("segments failed: %v", err)
	}
	if seg.ExclBTCUSD != 2e12 {
		t.Fatalf("expected ex-BTC cap 2e12, got %v", seg.ExclBTCUSD)
	}
	if diff := seg.ExclBTCETHUSD - 4e12*0.3; diff > 1e3 || diff < -1e3 {
		t.Fatalf("expected ex-BTC/ETH cap 1.2e12, got %v", seg.ExclBTCETHUSD)
	}
	if seg.Top10DominancePct <= 0 {
		t.Fatalf("top-10 dominance should be positive, got %v", seg.Top10DominancePct)
	}
}

func TestHistoricalDominanceDerivation(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/global/market_cap_chart":
			writeJSON(t, w, map[string]any{"market_cap_chart": chartPairs(10, 2e12, 0)})
		case "/coins/bitcoin/market_chart":
			writeJSON(t, w, map[string]any{
				"prices":      chartPairs(10, 50000, 100),
				"market_caps": chartPairs(10, 1e12, 0),
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	c, _ := newTestCollector(t, handler)

	dom, err := c.HistoricalDominance(context.Background(), 10)
	if err != nil {
		t.Fatalf("dominance derivation failed: %v", err)
	}
	if dom.Len() != 10 {
		t.Fatalf("expected 10 dominance points, got %d", dom.Len())
	}
	for _, p := range dom.Points() {
		if p.Value != 50 {
			t.Fatalf("constant 1e12/2e12 caps should give 50%% dominance, got %v", p.Value)
		}
	}
}

func TestAltcoinSeasonIndex(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// BTC +4% over 30d; even-indexed alts +5%, odd-indexed -5%.
		writeJSON(t, w, marketRows(51, 4))
	})
	c, _ := newTestCollector(t, handler)

	idx, err := c.AltcoinSeasonIndex(context.Background())
	if err != nil {
		t.Fatalf("season index failed: %v", err)
	}
	if idx.SampleSize != 50 {
		t.Fatalf("expected 50 altcoins, got %d", idx.SampleSize)
	}
	if idx.Outperforming != 25 {
		t.Fatalf("expected 25 outperformers, got %d", idx.Outperforming)
	}
	if idx.Season != "Altcoin Season" {
		t.Fatalf("exactly 50%% outperforming is Altcoin Season, got %q for %.1f%%", idx.Season, idx.OutperformingPct)
	}
}

func TestAltcoinSeasonIndexMissingBTC(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := marketRows(10, 0)[1:]
		writeJSON(t, w, rows)
	})
	c, _ := newTestCollector(t, handler)

	if _, err := c.AltcoinSeasonIndex(context.Background()); err == nil {
		t.Fatal("missing BTC row should return an error")
	}
}

func TestConcentrationMetrics(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, marketRows(100, 4))
	})
	c, _ := newTestCollector(t, handler)

	conc, err := c.ConcentrationMetrics(context.Background())
	if err != nil {
		t.Fatalf("concentration failed: %v", err)
	}
	if conc.AssetCount != 100 {
		t.Fatalf("expected 100 assets, got %d", conc.AssetCount)
	}
	if conc.HHI <= 0 || conc.HHI > 10000 {
		t.Fatalf("HHI out of range: %v", conc.HHI)
	}
	if conc.CR1 >= conc.CR4 || conc.CR4 >= conc.CR10 {
		t.Fatalf("concentration ratios must be increasing: %v %v %v", conc.CR1, conc.CR4, conc.CR10)
	}
	if conc.EntropyPct <= 0 || conc.EntropyPct > 100 {
		t.Fatalf("entropy%% out of range: %v", conc.EntropyPct)
	}
}
