// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/username/tradereview/backend/src/models"
)

// Define common service errors
var (
	ErrParsingFailed         = errors.New("csv parsing failed")
	ErrProcessingFailed      = errors.New("trade processing failed")
	ErrMissingQuantityColumn = errors.New("no quantity column found in export")
	ErrMissingPriceColumn    = errors.New("no price column found in export")
	ErrAnalysisNotFound      = errors.New("analysis not found")
	ErrInstrumentNotFound    = errors.New("instrument not found in analysis")
	ErrNoMarketData          = errors.New("no market data available")
)

// AnalyzeOptions describe one uploaded export.
type AnalyzeOptions struct {
	Source   string // layout name, e.g. "sbi"
	Encoding string // "auto", "shift_jis", "utf-8", ...
	Filename string
	FileSize int64
}

// AnalysisService runs the normalize-match-summarize pipeline and keeps its results.
type AnalysisService interface {
	Analyze(ctx context.Context, input []byte, opts AnalyzeOptions) (*models.AnalysisReport, error)
	GetReport(ctx context.Context, id string) (*models.AnalysisReport, error)
	ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisHistoryEntry, error)
	DeleteAnalysis(ctx context.Context, id string) error
	ExportCompletedTradesCSV(report *models.AnalysisReport, w io.Writer) error
}

// MarketDataService fetches display-layer data for instruments.
type MarketDataService interface {
	// GetPriceBars returns daily bars with start inclusive and end exclusive.
	GetPriceBars(ctx context.Context, instrumentID string, start, end time.Time) ([]models.PriceBar, error)
	// GetInstrumentName resolves a display name for an instrument id.
	GetInstrumentName(ctx context.Context, instrumentID string) (string, error)
}

// ChartService assembles chart data for one instrument of an analysis.
type ChartService interface {
	BuildChart(ctx context.Context, report *models.AnalysisReport, instrumentID string) (*models.ChartData, error)
	ListInstruments(ctx context.Context, report *models.AnalysisReport) ([]models.InstrumentSummary, error)
}
