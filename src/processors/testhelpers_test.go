package processors

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/tradereview/backend/src/models"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

var rowCounter int

func rec(id string, side models.Side, qty, price float64, date string) models.TradeRecord {
	rowCounter++
	return models.TradeRecord{
		InstrumentID: id,
		Side:         side,
		Quantity:     d(qty),
		Price:        d(price),
		TradeDate:    day(date),
		Row:          rowCounter,
	}
}

func buy(id string, qty, price float64, date string) models.TradeRecord {
	return rec(id, models.SideBuy, qty, price, date)
}

func sell(id string, qty, price float64, date string) models.TradeRecord {
	return rec(id, models.SideSell, qty, price, date)
}

func trade(id string, qty, buyPrice, sellPrice float64) models.CompletedTrade {
	return models.CompletedTrade{
		InstrumentID:    id,
		BuyPrice:        d(buyPrice),
		SellPrice:       d(sellPrice),
		MatchedQuantity: d(qty),
		PnL:             d(sellPrice - buyPrice).Mul(d(qty)),
	}
}
