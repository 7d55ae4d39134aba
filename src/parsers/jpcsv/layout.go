// backend/src/parsers/jpcsv/layout.go
package jpcsv

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout describes the labels of one broker's trade-history export. Alias lists
// are ordered: the first label present in the header wins.
type Layout struct {
	Name            string   `yaml:"name"`
	DateColumn      string   `yaml:"date_column"`
	CodeColumn      string   `yaml:"code_column"`
	TypeColumns     []string `yaml:"type_columns"`
	PriceColumns    []string `yaml:"price_columns"`
	QuantityColumns []string `yaml:"quantity_columns"`
	NameColumns     []string `yaml:"name_columns"`
	BuyMarker       string   `yaml:"buy_marker"`
	SellMarker      string   `yaml:"sell_marker"`
	ExchangeSuffix  string   `yaml:"exchange_suffix"`
	DateFormats     []string `yaml:"date_formats"`
}

var defaultDateFormats = []string{
	"2006/01/02",
	"2006/1/2",
	"2006-01-02",
	"2006-1-2",
	"2006.01.02",
	"20060102",
	"2006年01月02日",
	"2006年1月2日",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
}

// SBILayout matches the SBI Securities execution history export.
var SBILayout = Layout{
	Name:            "sbi",
	DateColumn:      "約定日",
	CodeColumn:      "銘柄コード",
	TypeColumns:     []string{"取引"},
	PriceColumns:    []string{"約定単価"},
	QuantityColumns: []string{"約定数量", "数量", "株数"},
	NameColumns:     []string{"銘柄名", "銘柄"},
	BuyMarker:       "買",
	SellMarker:      "売",
	ExchangeSuffix:  ".T",
}

// RakutenLayout matches the Rakuten Securities domestic stock execution export.
var RakutenLayout = Layout{
	Name:            "rakuten",
	DateColumn:      "約定日",
	CodeColumn:      "銘柄コード",
	TypeColumns:     []string{"売買区分", "取引区分"},
	PriceColumns:    []string{"単価［円］", "約定単価"},
	QuantityColumns: []string{"数量［株］", "約定数量", "数量"},
	NameColumns:     []string{"銘柄名"},
	BuyMarker:       "買",
	SellMarker:      "売",
	ExchangeSuffix:  ".T",
}

// withDefaults fills the optional fields of a layout.
func (l Layout) withDefaults() Layout {
	if l.BuyMarker == "" {
		l.BuyMarker = "買"
	}
	if l.SellMarker == "" {
		l.SellMarker = "売"
	}
	if len(l.DateFormats) == 0 {
		l.DateFormats = defaultDateFormats
	}
	return l
}

// Validate checks that a layout can locate a header.
func (l Layout) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("layout name is required")
	}
	if l.DateColumn == "" || l.CodeColumn == "" {
		return fmt.Errorf("layout %q: date_column and code_column are required", l.Name)
	}
	return nil
}

type layoutFile struct {
	Layouts []Layout `yaml:"layouts"`
}

// LoadLayouts reads additional broker layouts from a YAML file.
func LoadLayouts(path string) ([]Layout, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f layoutFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to decode layouts file %s: %w", path, err)
	}
	for _, l := range f.Layouts {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Layouts, nil
}
