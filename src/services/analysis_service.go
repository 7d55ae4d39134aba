// backend/src/services/analysis_service.go
package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/username/tradereview/backend/src/cache"
	"github.com/username/tradereview/backend/src/events"
	"github.com/username/tradereview/backend/src/logger"
	"github.com/username/tradereview/backend/src/metrics"
	"github.com/username/tradereview/backend/src/model"
	"github.com/username/tradereview/backend/src/models"
	"github.com/username/tradereview/backend/src/parsers"
	"github.com/username/tradereview/backend/src/processors"
	"github.com/username/tradereview/backend/src/security/validation"
	"github.com/username/tradereview/backend/src/utils"
)

const (
	ckReport       = "report_%s"
	ckReportByHash = "report_hash_%s"

	noCompletedTradesMessage = "No completed trades in this export. Sells need an earlier buy of the same instrument."
)

type analysisServiceImpl struct {
	matcher     processors.TradeMatcher
	summarizer  processors.PerformanceProcessor
	reportCache cache.Store
	cacheTTL    time.Duration
	db          *sql.DB
	publisher   events.Publisher
}

// NewAnalysisService wires the pipeline. db and publisher may be nil; the
// service then keeps reports in the cache only and publishes nothing.
func NewAnalysisService(
	matcher processors.TradeMatcher,
	summarizer processors.PerformanceProcessor,
	reportCache cache.Store,
	cacheTTL time.Duration,
	db *sql.DB,
	publisher events.Publisher,
) AnalysisService {
	if reportCache == nil {
		reportCache = cache.NewMemoryStore(cache.DefaultCacheExpiration, cache.CacheCleanupInterval)
	}
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultCacheExpiration
	}
	return &analysisServiceImpl{
		matcher:     matcher,
		summarizer:  summarizer,
		reportCache: reportCache,
		cacheTTL:    cacheTTL,
		db:          db,
		publisher:   publisher,
	}
}

type pipelineResult struct {
	report *models.AnalysisReport
	err    error
}

func (s *analysisServiceImpl) Analyze(ctx context.Context, input []byte, opts AnalyzeOptions) (*models.AnalysisReport, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	source := strings.ToLower(strings.TrimSpace(opts.Source))
	hash := utils.HashBytes([]byte(source), []byte(strings.ToLower(opts.Encoding)), input)

	if report := s.lookupByHash(ctx, hash); report != nil {
		log.Info("Analysis served from cache", "analysisID", report.ID, "hash", hash)
		metrics.AnalysesTotal.WithLabelValues(source, "cached").Inc()
		return report, nil
	}

	// The pipeline is one unit of work; an abandoned request discards its result.
	done := make(chan pipelineResult, 1)
	go func() {
		report, err := s.runPipeline(input, source, opts)
		done <- pipelineResult{report: report, err: err}
	}()

	var res pipelineResult
	select {
	case <-ctx.Done():
		metrics.AnalysesTotal.WithLabelValues(source, "cancelled").Inc()
		return nil, ctx.Err()
	case res = <-done:
	}
	metrics.AnalysisDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if res.err != nil {
		log.Warn("Analysis failed", "source", source, "filename", opts.Filename, "error", res.err)
		metrics.AnalysesTotal.WithLabelValues(source, "error").Inc()
		return nil, res.err
	}

	report := res.report
	report.Hash = hash
	metrics.AnalysesTotal.WithLabelValues(source, "ok").Inc()
	metrics.CompletedTrades.Add(float64(report.Summary.TotalCompletedTrades))

	s.storeReport(ctx, report, opts.FileSize)
	if s.publisher != nil {
		if err := s.publisher.PublishAnalysisCompleted(ctx, report); err != nil {
			log.Error("Failed to publish analysis event", "analysisID", report.ID, "error", err)
		}
	}

	log.Info("Analysis completed", "analysisID", report.ID, "source", source,
		"records", len(report.Dataset.Records), "completedTrades", report.Summary.TotalCompletedTrades,
		"duration", time.Since(start))
	return report, nil
}

func (s *analysisServiceImpl) runPipeline(input []byte, source string, opts AnalyzeOptions) (*models.AnalysisReport, error) {
	parser, err := parsers.GetParser(source, opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}
	dataset, err := parser.Parse(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}
	if dataset.Columns.Quantity == "" {
		return nil, ErrMissingQuantityColumn
	}
	if dataset.Columns.Price == "" {
		return nil, ErrMissingPriceColumn
	}
	for i := range dataset.Records {
		dataset.Records[i].InstrumentName = validation.SanitizeDisplayName(dataset.Records[i].InstrumentName)
	}

	matched, err := s.matcher.Match(dataset.Records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}
	summary := s.summarizer.Summarize(matched.Trades)

	report := &models.AnalysisReport{
		ID:             uuid.NewString(),
		Source:         parser.Source(),
		Filename:       validation.SanitizeDisplayName(opts.Filename),
		CreatedAt:      time.Now().UTC(),
		Dataset:        dataset,
		Summary:        summary,
		OpenLots:       matched.OpenLots,
		UnmatchedSells: matched.UnmatchedSells,
	}
	if !summary.HasData {
		report.Message = noCompletedTradesMessage
	}
	return report, nil
}

func (s *analysisServiceImpl) lookupByHash(ctx context.Context, hash string) *models.AnalysisReport {
	var id string
	if b, found, err := s.reportCache.Get(ctx, fmt.Sprintf(ckReportByHash, hash)); err == nil && found {
		id = string(b)
	} else if s.db != nil {
		dbID, err := model.GetLatestAnalysisIDByHash(s.db, hash)
		if err != nil {
			if !errors.Is(err, model.ErrAnalysisNotFound) {
				logger.FromContext(ctx).Error("Failed to look up analysis by hash", "error", err)
			}
			return nil
		}
		id = dbID
	}
	if id == "" {
		metrics.CacheLookups.WithLabelValues("reports", "miss").Inc()
		return nil
	}

	report, err := s.GetReport(ctx, id)
	if err != nil {
		return nil
	}
	return report
}

func (s *analysisServiceImpl) storeReport(ctx context.Context, report *models.AnalysisReport, fileSize int64) {
	log := logger.FromContext(ctx)
	if err := cache.SetJSON(ctx, s.reportCache, fmt.Sprintf(ckReport, report.ID), report, s.cacheTTL); err != nil {
		log.Warn("Failed to cache report", "analysisID", report.ID, "error", err)
	}
	if err := s.reportCache.Set(ctx, fmt.Sprintf(ckReportByHash, report.Hash), []byte(report.ID), s.cacheTTL); err != nil {
		log.Warn("Failed to cache report hash", "analysisID", report.ID, "error", err)
	}

	if s.db == nil {
		return
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		log.Error("Failed to serialize report", "analysisID", report.ID, "error", err)
		return
	}
	entry := models.AnalysisHistoryEntry{
		ID:              report.ID,
		Hash:            report.Hash,
		Source:          report.Source,
		Filename:        report.Filename,
		FileSize:        fileSize,
		RecordCount:     len(report.Dataset.Records),
		CompletedTrades: report.Summary.TotalCompletedTrades,
		WinRate:         report.Summary.WinRate.StringFixed(2),
		RiskReward:      report.Summary.RiskReward.String(),
		TotalPnL:        report.Summary.TotalPnL.String(),
		CreatedAt:       report.CreatedAt,
	}
	if err := model.InsertAnalysis(s.db, entry, reportJSON); err != nil {
		log.Error("Failed to persist analysis", "analysisID", report.ID, "error", err)
	}

	for _, id := range report.Dataset.InstrumentIDs() {
		name := report.Dataset.NameFor(id)
		if name == "" {
			continue
		}
		if err := model.UpsertInstrumentName(s.db, model.InstrumentName{InstrumentID: id, DisplayName: name, Source: "export"}); err != nil {
			log.Warn("Failed to store instrument name", "instrument", id, "error", err)
		}
	}
}

func (s *analysisServiceImpl) GetReport(ctx context.Context, id string) (*models.AnalysisReport, error) {
	key := fmt.Sprintf(ckReport, id)
	var report models.AnalysisReport
	found, err := cache.GetJSON(ctx, s.reportCache, key, &report)
	if err != nil {
		logger.FromContext(ctx).Warn("Report cache read failed", "analysisID", id, "error", err)
	}
	if found {
		metrics.CacheLookups.WithLabelValues("reports", "hit").Inc()
		return &report, nil
	}
	metrics.CacheLookups.WithLabelValues("reports", "miss").Inc()

	if s.db == nil {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}
	raw, err := model.GetAnalysisReportJSON(s.db, id)
	if errors.Is(err, model.ErrAnalysisNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading analysis %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("error decoding analysis %s: %w", id, err)
	}
	if err := s.reportCache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		logger.FromContext(ctx).Warn("Failed to cache report", "analysisID", id, "error", err)
	}
	return &report, nil
}

func (s *analysisServiceImpl) ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisHistoryEntry, error) {
	if s.db == nil {
		return []models.AnalysisHistoryEntry{}, nil
	}
	entries, err := model.ListAnalyses(s.db, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing analyses: %w", err)
	}
	return entries, nil
}

func (s *analysisServiceImpl) DeleteAnalysis(ctx context.Context, id string) error {
	report, err := s.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if s.db != nil {
		if err := model.DeleteAnalysis(s.db, id); err != nil {
			return fmt.Errorf("error deleting analysis %s: %w", id, err)
		}
	}
	s.reportCache.Delete(ctx, fmt.Sprintf(ckReport, id))
	s.reportCache.Delete(ctx, fmt.Sprintf(ckReportByHash, report.Hash))
	logger.FromContext(ctx).Info("Analysis deleted", "analysisID", id)
	return nil
}

var completedTradesCSVHeader = []string{
	"instrument_id", "instrument_name", "buy_date", "buy_price", "sell_date", "sell_price", "quantity", "pnl",
}

// ExportCompletedTradesCSV writes the trade history of a report. Text cells are
// escaped against spreadsheet formula injection.
func (s *analysisServiceImpl) ExportCompletedTradesCSV(report *models.AnalysisReport, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(completedTradesCSVHeader); err != nil {
		return err
	}
	for _, t := range report.Summary.History {
		row := []string{
			validation.SanitizeForFormulaInjection(t.InstrumentID),
			validation.SanitizeForFormulaInjection(t.InstrumentName),
			t.BuyDate.Format("2006-01-02"),
			t.BuyPrice.String(),
			t.SellDate.Format("2006-01-02"),
			t.SellPrice.String(),
			t.MatchedQuantity.String(),
			t.PnL.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
