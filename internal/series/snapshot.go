package series

import (
	"sort"
	"time"
)

// Asset is one entity in a cross-sectional market snapshot.
type Asset struct {
	Symbol    string
	Name      string
	MarketCap float64
	Price     float64
	Change24h float64
	Change7d  float64
	Change30d float64
	Rank      int
}

// CrossSection captures the state of a set of assets at one point in time.
type CrossSection struct {
	Taken  time.Time
	Assets []Asset
}

// TotalMarketCap sums market caps over all assets.
func (c CrossSection) TotalMarketCap() float64 {
	total := 0.0
	for _, a := range c.Assets {
		total += a.MarketCap
	}
	return total
}

// MarketCaps returns the market cap vector in snapshot order.
func (c CrossSection) MarketCaps() []float64 {
	caps := make([]float64, len(c.Assets))
	for i, a := range c.Assets {
		caps[i] = a.MarketCap
	}
	return caps
}

// TopN returns the n largest assets by market cap, descending.
func (c CrossSection) TopN(n int) []Asset {
	assets := make([]Asset, len(c.Assets))
	copy(assets, c.Assets)
	sort.Slice(assets, func(i, j int) bool { return assets[i].MarketCap > assets[j].MarketCap })
	if n > 0 && n < len(assets) {
		assets = assets[:n]
	}
	return assets
}

// Exclude returns a copy of the snapshot without the named symbols.
func (c CrossSection) Exclude(symbols ...string) CrossSection {
	excluded := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		excluded[s] = struct{}{}
	}
	assets := make([]Asset, 0, len(c.Assets))
	for _, a := range c.Assets {
		if _, skip := excluded[a.Symbol]; skip {
			continue
		}
		assets = append(assets, a)
	}
	return CrossSection{Taken: c.Taken, Assets: assets}
}
