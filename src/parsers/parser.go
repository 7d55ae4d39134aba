// backend/src/parsers/parser.go
package parsers

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/username/tradereview/backend/src/models"
	"github.com/username/tradereview/backend/src/parsers/jpcsv"
)

var ErrUnknownSource = errors.New("unknown export source")

// Parser converts one broker export into a normalized trade dataset.
type Parser interface {
	Parse(file io.Reader) (*models.TradeDataset, error)
	Source() string
}

var (
	mu       sync.RWMutex
	registry = map[string]jpcsv.Layout{
		jpcsv.SBILayout.Name:     jpcsv.SBILayout,
		jpcsv.RakutenLayout.Name: jpcsv.RakutenLayout,
	}
)

// RegisterLayout adds or replaces a broker layout. The exchange suffix of
// layouts that do not set one falls back to defaultSuffix.
func RegisterLayout(layout jpcsv.Layout, defaultSuffix string) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	if layout.ExchangeSuffix == "" {
		layout.ExchangeSuffix = defaultSuffix
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(layout.Name)] = layout
	return nil
}

// SetExchangeSuffix overrides the exchange suffix of every registered layout.
func SetExchangeSuffix(suffix string) {
	mu.Lock()
	defer mu.Unlock()
	for name, layout := range registry {
		layout.ExchangeSuffix = suffix
		registry[name] = layout
	}
}

// GetParser returns the parser for a source name and input encoding label.
func GetParser(source, encodingLabel string) (Parser, error) {
	mu.RLock()
	layout, ok := registry[strings.ToLower(strings.TrimSpace(source))]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	enc, err := jpcsv.ResolveEncoding(encodingLabel)
	if err != nil {
		return nil, err
	}
	return jpcsv.NewNormalizer(layout, enc), nil
}

// Sources lists the registered source names.
func Sources() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
