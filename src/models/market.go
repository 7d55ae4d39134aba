package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one daily OHLCV bar from the market-data provider.
type PriceBar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// ChartPoint is a bar plus its moving averages. SMA values are nil until enough
// bars precede the point.
type ChartPoint struct {
	PriceBar
	SMA5  *decimal.Decimal `json:"sma5,omitempty"`
	SMA25 *decimal.Decimal `json:"sma25,omitempty"`
}

// TradeAnnotation marks an execution on the chart.
type TradeAnnotation struct {
	Date     time.Time       `json:"date"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Text     string          `json:"text"`
}

// ChartData is everything the presentation layer needs to draw one instrument.
type ChartData struct {
	InstrumentID string            `json:"instrument_id"`
	DisplayName  string            `json:"display_name"`
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	Points       []ChartPoint      `json:"points"`
	Annotations  []TradeAnnotation `json:"annotations"`
	HasData      bool              `json:"has_data"`
}
