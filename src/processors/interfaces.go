// backend/src/processors/interfaces.go
package processors

import "github.com/username/tradereview/backend/src/models"

// MatchResult holds everything the FIFO pass produces for a dataset.
type MatchResult struct {
	Trades         []models.CompletedTrade
	OpenLots       []models.OpenLot
	UnmatchedSells []models.UnmatchedSell
}

// TradeMatcher pairs buys with later sells into completed round trips.
type TradeMatcher interface {
	Match(records []models.TradeRecord) (*MatchResult, error)
}

// PerformanceProcessor derives summary statistics from completed trades.
type PerformanceProcessor interface {
	Summarize(trades []models.CompletedTrade) models.PerformanceSummary
}

// AnnotationProcessor turns executions into chart annotations.
type AnnotationProcessor interface {
	Process(records []models.TradeRecord) []models.TradeAnnotation
}
