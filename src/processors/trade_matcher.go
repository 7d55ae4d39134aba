// backend/src/processors/trade_matcher.go
package processors

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/tradereview/backend/src/models"
)

var ErrInvalidRecord = errors.New("invalid trade record")

// lot is an open buy waiting to be consumed by later sells.
type lot struct {
	price     decimal.Decimal
	quantity  decimal.Decimal
	tradeDate time.Time
}

type fifoMatcherImpl struct{}

func NewTradeMatcher() TradeMatcher {
	return &fifoMatcherImpl{}
}

// Match groups records by instrument and pairs every sell with the oldest open
// buys. Sell quantity with no open lot left is reported in UnmatchedSells and
// never becomes a trade. Unknown-side records are ignored.
func (m *fifoMatcherImpl) Match(records []models.TradeRecord) (*MatchResult, error) {
	for _, r := range records {
		if !r.IsExecution() {
			continue
		}
		if !r.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: %s row %d has non-positive quantity %s", ErrInvalidRecord, r.InstrumentID, r.Row, r.Quantity)
		}
		if r.Price.IsNegative() {
			return nil, fmt.Errorf("%w: %s row %d has negative price %s", ErrInvalidRecord, r.InstrumentID, r.Row, r.Price)
		}
	}

	byInstrument := make(map[string][]models.TradeRecord)
	for _, r := range records {
		byInstrument[r.InstrumentID] = append(byInstrument[r.InstrumentID], r)
	}
	ids := make([]string, 0, len(byInstrument))
	for id := range byInstrument {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &MatchResult{
		Trades:         make([]models.CompletedTrade, 0),
		OpenLots:       make([]models.OpenLot, 0),
		UnmatchedSells: make([]models.UnmatchedSell, 0),
	}
	for _, id := range ids {
		matchInstrument(id, byInstrument[id], result)
	}
	return result, nil
}

func matchInstrument(instrumentID string, records []models.TradeRecord, result *MatchResult) {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b models.TradeRecord) int {
		if c := a.TradeDate.Compare(b.TradeDate); c != 0 {
			return c
		}
		return a.Row - b.Row
	})

	name := ""
	for _, r := range sorted {
		if r.InstrumentName != "" {
			name = r.InstrumentName
			break
		}
	}

	var queue []lot
	for _, r := range sorted {
		switch r.Side {
		case models.SideBuy:
			queue = append(queue, lot{price: r.Price, quantity: r.Quantity, tradeDate: r.TradeDate})

		case models.SideSell:
			remaining := r.Quantity
			for remaining.IsPositive() && len(queue) > 0 {
				head := &queue[0]
				matched := decimal.Min(remaining, head.quantity)
				result.Trades = append(result.Trades, models.CompletedTrade{
					InstrumentID:    instrumentID,
					InstrumentName:  name,
					BuyDate:         head.tradeDate,
					BuyPrice:        head.price,
					SellDate:        r.TradeDate,
					SellPrice:       r.Price,
					MatchedQuantity: matched,
					PnL:             r.Price.Sub(head.price).Mul(matched),
				})
				remaining = remaining.Sub(matched)
				head.quantity = head.quantity.Sub(matched)
				if head.quantity.IsZero() {
					queue = queue[1:]
				}
			}
			if remaining.IsPositive() {
				result.UnmatchedSells = append(result.UnmatchedSells, models.UnmatchedSell{
					InstrumentID: instrumentID,
					SellDate:     r.TradeDate,
					SellPrice:    r.Price,
					Quantity:     remaining,
				})
			}
		}
	}

	for _, l := range queue {
		result.OpenLots = append(result.OpenLots, models.OpenLot{
			InstrumentID:   instrumentID,
			InstrumentName: name,
			BuyDate:        l.tradeDate,
			BuyPrice:       l.price,
			Quantity:       l.quantity,
		})
	}
}
