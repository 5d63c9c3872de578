package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetricSample represents one persisted analysis bucket.
type MetricSample struct {
	Bucket          time.Time
	TotalMarketCap  decimal.Decimal
	BTCDominance    decimal.Decimal
	HHI             float64
	Gini            float64
	EntropyPct      float64
	MarketStructure string
	Regime          string
	Confidence      float64
	Status          string
	Error           *string
	CreatedAt       time.Time
}

// RegimeAlert captures an emitted regime-change alert for auditing.
type RegimeAlert struct {
	ID             int64
	SampleTS       time.Time
	PreviousRegime string
	Regime         string
	Confidence     float64
	Channels       []string
	CreatedAt      time.Time
}
