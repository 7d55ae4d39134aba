// backend/src/services/chart_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/tradereview/backend/src/logger"
	"github.com/username/tradereview/backend/src/models"
	"github.com/username/tradereview/backend/src/processors"
)

const (
	chartPadding    = 30 * 24 * time.Hour
	smaWarmupPeriod = 40 * 24 * time.Hour
	shortSMAWindow  = 5
	longSMAWindow   = 25
)

type chartServiceImpl struct {
	marketData  MarketDataService
	annotations processors.AnnotationProcessor
	now         func() time.Time
}

func NewChartService(marketData MarketDataService, annotations processors.AnnotationProcessor) ChartService {
	return &chartServiceImpl{
		marketData:  marketData,
		annotations: annotations,
		now:         time.Now,
	}
}

// BuildChart draws the trading period of one instrument padded by 30 days on
// each side, never past today. Bars are fetched from 40 days earlier so the
// moving averages are populated at the left edge.
func (s *chartServiceImpl) BuildChart(ctx context.Context, report *models.AnalysisReport, instrumentID string) (*models.ChartData, error) {
	if report == nil || report.Dataset == nil {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
	}
	records := report.Dataset.RecordsFor(instrumentID)
	executions := make([]models.TradeRecord, 0, len(records))
	for _, r := range records {
		if r.IsExecution() {
			executions = append(executions, r)
		}
	}
	if len(executions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
	}

	first, last := executions[0].TradeDate, executions[0].TradeDate
	for _, r := range executions[1:] {
		if r.TradeDate.Before(first) {
			first = r.TradeDate
		}
		if r.TradeDate.After(last) {
			last = r.TradeDate
		}
	}
	from := first.Add(-chartPadding)
	to := last.Add(chartPadding)
	if today := dateOf(s.now()); to.After(today) {
		to = today
	}

	chart := &models.ChartData{
		InstrumentID: instrumentID,
		DisplayName:  s.displayName(ctx, report.Dataset, instrumentID),
		From:         from,
		To:           to,
		Points:       []models.ChartPoint{},
		Annotations:  []models.TradeAnnotation{},
	}

	bars, err := s.marketData.GetPriceBars(ctx, instrumentID, from.Add(-smaWarmupPeriod), to.AddDate(0, 0, 1))
	if errors.Is(err, ErrNoMarketData) {
		logger.FromContext(ctx).Info("No price data for instrument", "instrument", instrumentID)
		return chart, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching prices for %s: %w", instrumentID, err)
	}

	points := withMovingAverages(bars)
	barDates := make(map[time.Time]bool, len(points))
	for _, p := range points {
		day := dateOf(p.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		chart.Points = append(chart.Points, p)
		barDates[day] = true
	}
	chart.HasData = len(chart.Points) > 0

	for _, a := range s.annotations.Process(executions) {
		if barDates[dateOf(a.Date)] {
			chart.Annotations = append(chart.Annotations, a)
		}
	}
	return chart, nil
}

// ListInstruments returns every instrument of the report with its execution count.
func (s *chartServiceImpl) ListInstruments(ctx context.Context, report *models.AnalysisReport) ([]models.InstrumentSummary, error) {
	if report == nil || report.Dataset == nil {
		return nil, ErrAnalysisNotFound
	}
	ids := report.Dataset.InstrumentIDs()
	out := make([]models.InstrumentSummary, 0, len(ids))
	for _, id := range ids {
		executions := 0
		for _, r := range report.Dataset.RecordsFor(id) {
			if r.IsExecution() {
				executions++
			}
		}
		out = append(out, models.InstrumentSummary{
			InstrumentID: id,
			DisplayName:  s.displayName(ctx, report.Dataset, id),
			Executions:   executions,
		})
	}
	return out, nil
}

// displayName prefers the name from the export, then the market data provider,
// then the id itself.
func (s *chartServiceImpl) displayName(ctx context.Context, dataset *models.TradeDataset, instrumentID string) string {
	if name := dataset.NameFor(instrumentID); name != "" {
		return name
	}
	if s.marketData != nil {
		name, err := s.marketData.GetInstrumentName(ctx, instrumentID)
		if err == nil && name != "" {
			return name
		}
		logger.FromContext(ctx).Debug("Instrument name lookup failed", "instrument", instrumentID, "error", err)
	}
	return instrumentID
}

func withMovingAverages(bars []models.PriceBar) []models.ChartPoint {
	points := make([]models.ChartPoint, len(bars))
	for i, b := range bars {
		points[i] = models.ChartPoint{
			PriceBar: b,
			SMA5:     sma(bars, i, shortSMAWindow),
			SMA25:    sma(bars, i, longSMAWindow),
		}
	}
	return points
}

// sma is the mean close of the window ending at bars[i], nil while the window is incomplete.
func sma(bars []models.PriceBar, i, window int) *decimal.Decimal {
	if i+1 < window {
		return nil
	}
	sum := decimal.Zero
	for _, b := range bars[i+1-window : i+1] {
		sum = sum.Add(b.Close)
	}
	avg := sum.Div(decimal.NewFromInt(int64(window))).Round(2)
	return &avg
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
