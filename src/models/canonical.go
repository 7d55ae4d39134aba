// backend/src/models/canonical.go
package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side classifies an execution row by its transaction-type text.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// TradeRecord is the canonical, typed form of one execution row of a broker export.
// The normalizer is responsible for every field; nothing downstream re-reads the raw file.
type TradeRecord struct {
	InstrumentID   string          `json:"instrument_id"`             // e.g. "7203.T"
	InstrumentName string          `json:"instrument_name,omitempty"` // Display name from the export, when present
	Side           Side            `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	TradeDate      time.Time       `json:"trade_date"` // Calendar date, UTC midnight
	Row            int             `json:"row"`        // 0-based data row index in file order
	RawType        string          `json:"raw_type,omitempty"`
}

// IsExecution reports whether the record takes part in matching.
func (r TradeRecord) IsExecution() bool {
	return r.Side == SideBuy || r.Side == SideSell
}

// ColumnMapping records which header label was resolved for each field. An empty
// value means none of the accepted labels was present in the header.
type ColumnMapping struct {
	Date     string `json:"date"`
	Code     string `json:"code"`
	Type     string `json:"type,omitempty"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity,omitempty"`
	Name     string `json:"name,omitempty"`
}

// TradeDataset is the output of the normalizer.
type TradeDataset struct {
	Source        string        `json:"source"`
	Columns       ColumnMapping `json:"columns"`
	PreambleLines int           `json:"preamble_lines"`
	DroppedRows   int           `json:"dropped_rows"` // rows without a code or with unusable non-trade values
	Records       []TradeRecord `json:"records"`
}

// InstrumentIDs returns the distinct instrument ids of the dataset in sorted order.
func (d *TradeDataset) InstrumentIDs() []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, r := range d.Records {
		if _, ok := seen[r.InstrumentID]; ok {
			continue
		}
		seen[r.InstrumentID] = struct{}{}
		ids = append(ids, r.InstrumentID)
	}
	sort.Strings(ids)
	return ids
}

// RecordsFor returns the records of a single instrument in file order.
func (d *TradeDataset) RecordsFor(instrumentID string) []TradeRecord {
	var out []TradeRecord
	for _, r := range d.Records {
		if r.InstrumentID == instrumentID {
			out = append(out, r)
		}
	}
	return out
}

// NameFor returns the first non-empty display name recorded for an instrument.
func (d *TradeDataset) NameFor(instrumentID string) string {
	for _, r := range d.Records {
		if r.InstrumentID == instrumentID && r.InstrumentName != "" {
			return r.InstrumentName
		}
	}
	return ""
}
