// backend/src/processors/performance_processor.go
package processors

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/tradereview/backend/src/models"
)

var hundred = decimal.NewFromInt(100)

type performanceProcessorImpl struct{}

func NewPerformanceProcessor() PerformanceProcessor {
	return &performanceProcessorImpl{}
}

// Summarize computes win rate, average profit and loss and the risk/reward ratio
// over all trades and per instrument. Break-even trades count as non-winners with
// a zero loss. An empty input yields HasData=false.
func (p *performanceProcessorImpl) Summarize(trades []models.CompletedTrade) models.PerformanceSummary {
	history := make([]models.CompletedTrade, len(trades))
	copy(history, trades)

	summary := models.PerformanceSummary{
		HasData:      len(trades) > 0,
		History:      history,
		ByInstrument: make([]models.InstrumentPerformance, 0),
	}
	if !summary.HasData {
		summary.PerformanceStats = computeStats(nil)
		return summary
	}
	summary.PerformanceStats = computeStats(trades)

	grouped := make(map[string][]models.CompletedTrade)
	names := make(map[string]string)
	for _, t := range trades {
		grouped[t.InstrumentID] = append(grouped[t.InstrumentID], t)
		if names[t.InstrumentID] == "" {
			names[t.InstrumentID] = t.InstrumentName
		}
	}
	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		summary.ByInstrument = append(summary.ByInstrument, models.InstrumentPerformance{
			InstrumentID:     id,
			InstrumentName:   names[id],
			PerformanceStats: computeStats(grouped[id]),
		})
	}
	return summary
}

func computeStats(trades []models.CompletedTrade) models.PerformanceStats {
	stats := models.PerformanceStats{
		TotalCompletedTrades: len(trades),
		WinRate:              decimal.Zero,
		AvgProfit:            decimal.Zero,
		AvgLoss:              decimal.Zero,
		TotalPnL:             decimal.Zero,
		RiskReward:           models.RiskReward{Value: decimal.Zero},
	}
	if len(trades) == 0 {
		return stats
	}

	profitSum, lossSum := decimal.Zero, decimal.Zero
	for _, t := range trades {
		stats.TotalPnL = stats.TotalPnL.Add(t.PnL)
		if t.PnL.IsPositive() {
			stats.WinningTrades++
			profitSum = profitSum.Add(t.PnL)
		} else {
			stats.LosingTrades++
			lossSum = lossSum.Add(t.PnL.Abs())
		}
	}

	stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).Mul(hundred).Div(decimal.NewFromInt(int64(len(trades))))
	if stats.WinningTrades > 0 {
		stats.AvgProfit = profitSum.Div(decimal.NewFromInt(int64(stats.WinningTrades)))
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(stats.LosingTrades)))
	}
	stats.RiskReward = riskReward(stats.AvgProfit, stats.AvgLoss)
	return stats
}

func riskReward(avgProfit, avgLoss decimal.Decimal) models.RiskReward {
	switch {
	case avgLoss.IsPositive():
		return models.RiskReward{Value: avgProfit.Div(avgLoss)}
	case avgProfit.IsPositive():
		return models.InfiniteRiskReward
	default:
		return models.RiskReward{Value: decimal.Zero}
	}
}
