package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"crypto-market-pulse/internal/forecast"
	"crypto-market-pulse/internal/service"
)

// Analyze runs a one-shot full-market analysis and prints it.
func (a *App) Analyze(ctx context.Context) error {
	market := a.newCollector()
	reporter := a.newReporter(market)

	report, err := reporter.Analyze(ctx)
	if err != nil {
		return err
	}

	printReport(os.Stdout, report)
	return nil
}

func printReport(w io.Writer, report *service.Report) {
	fmt.Fprintf(w, "Market analysis at %s UTC\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if report.Global != nil {
		fmt.Fprintf(writer, "Total market cap\t$%.0f\n", report.Global.TotalMarketCapUSD)
		fmt.Fprintf(writer, "BTC dominance\t%.2f%%\n", report.Global.DominancePct["btc"])
		fmt.Fprintf(writer, "ETH dominance\t%.2f%%\n", report.Global.DominancePct["eth"])
	}
	if report.SeasonIndex != nil {
		fmt.Fprintf(writer, "Altcoin season index\t%.1f%% (%s)\n", report.SeasonIndex.OutperformingPct, report.SeasonIndex.Season)
	}
	if report.Concentration != nil {
		fmt.Fprintf(writer, "HHI (top %d)\t%.0f\n", report.Concentration.AssetCount, report.Concentration.HHI)
		fmt.Fprintf(writer, "CR1/CR4/CR10\t%.1f%% / %.1f%% / %.1f%%\n", report.Concentration.CR1, report.Concentration.CR4, report.Concentration.CR10)
	}
	if report.Distribution != nil {
		fmt.Fprintf(writer, "Normalized entropy\t%.1f%%\n", report.Distribution.NormalizedEntropyPct)
		fmt.Fprintf(writer, "Gini\t%.3f\n", report.Distribution.Gini)
		fmt.Fprintf(writer, "Market structure\t%s\n", report.Distribution.MarketStructure)
		fmt.Fprintf(writer, "Diversification\t%s\n", report.Distribution.DiversificationLevel)
	}
	if report.Dominance != nil {
		fmt.Fprintf(writer, "Dominance trend\t%s\n", report.Dominance.Trend)
		fmt.Fprintf(writer, "Altcoin season score\t%.0f/100\n", report.Dominance.AltcoinSeasonScore)
	}
	if report.Trend != nil {
		fmt.Fprintf(writer, "Trend direction\t%s\n", report.Trend.Direction)
	}
	if report.MarketCycle != "" {
		fmt.Fprintf(writer, "Market cycle\t%s\n", report.MarketCycle)
	}
	if report.Regime != nil {
		fmt.Fprintf(writer, "Regime\t%s (confidence %.0f%%)\n", report.Regime.Regime, report.Regime.Confidence*100)
	}
	if report.Complexity != nil {
		fmt.Fprintf(writer, "Complexity index\t%.0f (%s)\n", report.Complexity.Index, report.Complexity.Level)
		fmt.Fprintf(writer, "\t%s\n", report.Complexity.Interpretation)
	}
	writer.Flush()

	printForecasts(w, "Total market cap forecast", report.MarketCapForecast)
	printForecasts(w, "BTC dominance forecast", report.DominanceForecast)
	printForecasts(w, "BTC price forecast", report.BTCPriceForecast)
}

func printForecasts(w io.Writer, title string, results map[string]forecast.Result) {
	if len(results) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%s\n", title)
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Horizon\tForecast\tLower\tUpper")

	labels := make([]string, 0, len(results))
	for label := range results {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		r := results[label]
		fmt.Fprintf(writer, "%s\t%.2f\t%.2f\t%.2f\n", label, r.PointForecast, r.LowerBound, r.UpperBound)
	}
	writer.Flush()
}
