package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CompletedTrade is one matched slice of a buy lot against a later sell.
type CompletedTrade struct {
	InstrumentID    string          `json:"instrument_id"`
	InstrumentName  string          `json:"instrument_name,omitempty"`
	BuyDate         time.Time       `json:"buy_date"`
	BuyPrice        decimal.Decimal `json:"buy_price"`
	SellDate        time.Time       `json:"sell_date"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	MatchedQuantity decimal.Decimal `json:"matched_quantity"`
	PnL             decimal.Decimal `json:"pnl"` // (SellPrice - BuyPrice) * MatchedQuantity
}

// OpenLot is the unconsumed remainder of a buy after matching.
type OpenLot struct {
	InstrumentID   string          `json:"instrument_id"`
	InstrumentName string          `json:"instrument_name,omitempty"`
	BuyDate        time.Time       `json:"buy_date"`
	BuyPrice       decimal.Decimal `json:"buy_price"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// UnmatchedSell is the part of a sell that found no open lot. It never produces a trade.
type UnmatchedSell struct {
	InstrumentID string          `json:"instrument_id"`
	SellDate     time.Time       `json:"sell_date"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// RiskReward is average profit over average loss. Infinite is set when there were
// profits but no losses.
type RiskReward struct {
	Value    decimal.Decimal
	Infinite bool
}

// InfiniteRiskReward is the sentinel for a loss-free record with at least one win.
var InfiniteRiskReward = RiskReward{Infinite: true}

func (r RiskReward) String() string {
	if r.Infinite {
		return "inf"
	}
	return r.Value.StringFixed(2)
}

// MarshalJSON encodes the infinite sentinel as the string "inf" and finite values as numbers.
func (r RiskReward) MarshalJSON() ([]byte, error) {
	if r.Infinite {
		return json.Marshal("inf")
	}
	return []byte(r.Value.String()), nil
}

func (r *RiskReward) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "inf" {
			*r = InfiniteRiskReward
			return nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("invalid risk/reward value %q: %w", s, err)
		}
		*r = RiskReward{Value: v}
		return nil
	}
	var v decimal.Decimal
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	*r = RiskReward{Value: v}
	return nil
}

// PerformanceStats are the headline statistics over a set of completed trades.
type PerformanceStats struct {
	TotalCompletedTrades int             `json:"total_completed_trades"`
	WinningTrades        int             `json:"winning_trades"`
	LosingTrades         int             `json:"losing_trades"`
	WinRate              decimal.Decimal `json:"win_rate"` // percent, 0-100
	AvgProfit            decimal.Decimal `json:"avg_profit"`
	AvgLoss              decimal.Decimal `json:"avg_loss"` // absolute value
	RiskReward           RiskReward      `json:"risk_reward"`
	TotalPnL             decimal.Decimal `json:"total_pnl"`
}

// InstrumentPerformance holds the statistics of one instrument.
type InstrumentPerformance struct {
	InstrumentID   string `json:"instrument_id"`
	InstrumentName string `json:"instrument_name,omitempty"`
	PerformanceStats
}

// PerformanceSummary is the aggregator output. HasData is false when there
// were no completed trades; that is an empty state, not a failure.
type PerformanceSummary struct {
	HasData bool `json:"has_data"`
	PerformanceStats
	ByInstrument []InstrumentPerformance `json:"by_instrument"`
	History      []CompletedTrade        `json:"history"`
}
