// backend/src/parsers/jpcsv/normalizer.go
package jpcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/tradereview/backend/src/models"
	"golang.org/x/text/encoding"
)

var (
	ErrHeaderNotFound = errors.New("header row not found")
	ErrDataParse      = errors.New("failed to parse trade data")
)

// Normalizer turns the decoded text of a broker export into typed trade records.
// It does no I/O and keeps no state between calls.
type Normalizer struct {
	layout   Layout
	encoding encoding.Encoding
}

// NewNormalizer creates a normalizer for a layout. A nil encoding selects
// automatic detection when reading raw bytes.
func NewNormalizer(layout Layout, enc encoding.Encoding) *Normalizer {
	return &Normalizer{layout: layout.withDefaults(), encoding: enc}
}

// Source returns the name of the layout the normalizer reads.
func (n *Normalizer) Source() string {
	return n.layout.Name
}

// Parse reads a raw export, decodes it and normalizes it.
func (n *Normalizer) Parse(file io.Reader) (*models.TradeDataset, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%s parser: failed to read input: %w", n.layout.Name, err)
	}
	return n.Normalize(Decode(raw, n.encoding))
}

// Normalize locates the header row, parses the rows below it and converts them
// into trade records. Either the whole dataset is returned or an error.
func (n *Normalizer) Normalize(text string) (*models.TradeDataset, error) {
	offset, preamble, err := n.locateHeader(text)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text[offset:]))
	reader.FieldsPerRecord = -1 // Broker exports pad or truncate rows freely
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header row: %v", ErrDataParse, err)
	}
	cols := indexHeader(header)

	dataset := &models.TradeDataset{
		Source:        n.layout.Name,
		PreambleLines: preamble,
		Records:       make([]models.TradeRecord, 0),
	}
	dateIdx := cols.find(&dataset.Columns.Date, n.layout.DateColumn)
	codeIdx := cols.find(&dataset.Columns.Code, n.layout.CodeColumn)
	typeIdx := cols.find(&dataset.Columns.Type, n.layout.TypeColumns...)
	priceIdx := cols.find(&dataset.Columns.Price, n.layout.PriceColumns...)
	qtyIdx := cols.find(&dataset.Columns.Quantity, n.layout.QuantityColumns...)
	nameIdx := cols.find(&dataset.Columns.Name, n.layout.NameColumns...)

	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrDataParse, row+1, err)
		}

		code := cell(record, codeIdx)
		if isBlank(code) {
			dataset.DroppedRows++
			continue
		}

		side := n.classifySide(cell(record, typeIdx))

		rawDate := cell(record, dateIdx)
		tradeDate, err := n.parseDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid trade date %q", ErrDataParse, row+1, rawDate)
		}

		price, priceErr := parseNumber(cell(record, priceIdx), priceIdx)
		quantity, qtyErr := parseNumber(cell(record, qtyIdx), qtyIdx)
		if side == models.SideUnknown {
			if priceErr != nil || qtyErr != nil {
				dataset.DroppedRows++
				continue
			}
		} else {
			if priceErr != nil {
				return nil, fmt.Errorf("%w: row %d: invalid price: %v", ErrDataParse, row+1, priceErr)
			}
			if qtyErr != nil {
				return nil, fmt.Errorf("%w: row %d: invalid quantity: %v", ErrDataParse, row+1, qtyErr)
			}
			if price.IsNegative() {
				return nil, fmt.Errorf("%w: row %d: negative price %s", ErrDataParse, row+1, price)
			}
			if qtyIdx >= 0 && !quantity.IsPositive() {
				return nil, fmt.Errorf("%w: row %d: quantity must be positive, got %s", ErrDataParse, row+1, quantity)
			}
		}

		name := cell(record, nameIdx)
		if isBlank(name) {
			name = ""
		}

		dataset.Records = append(dataset.Records, models.TradeRecord{
			InstrumentID:   NormalizeInstrumentCode(code, n.layout.ExchangeSuffix),
			InstrumentName: name,
			Side:           side,
			Price:          price,
			Quantity:       quantity,
			TradeDate:      tradeDate,
			Row:            row,
			RawType:        cell(record, typeIdx),
		})
	}

	return dataset, nil
}

// locateHeader returns the byte offset of the first line that carries both the
// trade-date and instrument-code labels, and the number of lines before it.
func (n *Normalizer) locateHeader(text string) (int, int, error) {
	offset, line := 0, 0
	rest := text
	for {
		idx := strings.IndexByte(rest, '\n')
		current := rest
		if idx >= 0 {
			current = rest[:idx]
		}
		if strings.Contains(current, n.layout.DateColumn) && strings.Contains(current, n.layout.CodeColumn) {
			return offset, line, nil
		}
		if idx < 0 {
			return 0, 0, fmt.Errorf("%w: no line contains both %q and %q", ErrHeaderNotFound, n.layout.DateColumn, n.layout.CodeColumn)
		}
		offset += idx + 1
		rest = rest[idx+1:]
		line++
	}
}

func (n *Normalizer) classifySide(value string) models.Side {
	switch {
	case value == "":
		return models.SideUnknown
	case strings.Contains(value, n.layout.BuyMarker):
		return models.SideBuy
	case strings.Contains(value, n.layout.SellMarker):
		return models.SideSell
	default:
		return models.SideUnknown
	}
}

func (n *Normalizer) parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range n.layout.DateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// NormalizeInstrumentCode strips the float artifact ".0" left by spreadsheet
// round-trips and appends the exchange suffix unless it is already present.
func NormalizeInstrumentCode(code, suffix string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimSuffix(code, ".0")
	if suffix != "" && !strings.HasSuffix(code, suffix) {
		code += suffix
	}
	return code
}

type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, exists := idx[h]; !exists {
			idx[h] = i
		}
	}
	return idx
}

// find resolves the first present label, records it in dst and returns its index or -1.
func (h headerIndex) find(dst *string, labels ...string) int {
	for _, label := range labels {
		if i, ok := h[label]; ok {
			*dst = label
			return i
		}
	}
	return -1
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "-", "--":
		return true
	}
	return false
}

// parseNumber reads a broker-formatted number such as "1,055" or "100株".
// A column that is absent (idx < 0) yields zero without error.
func parseNumber(value string, idx int) (decimal.Decimal, error) {
	if idx < 0 {
		return decimal.Zero, nil
	}
	cleaned := strings.Trim(strings.TrimSpace(value), "\"")
	cleaned = strings.NewReplacer(",", "", " ", "", "円", "", "株", "").Replace(cleaned)
	if isBlank(cleaned) {
		return decimal.Zero, fmt.Errorf("empty value")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", value)
	}
	return d, nil
}
