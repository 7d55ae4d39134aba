package models

import "time"

// AnalysisReport is the full result of one uploaded export.
type AnalysisReport struct {
	ID             string             `json:"id"`
	Hash           string             `json:"hash"`
	Source         string             `json:"source"`
	Filename       string             `json:"filename,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Dataset        *TradeDataset      `json:"dataset"`
	Summary        PerformanceSummary `json:"summary"`
	OpenLots       []OpenLot          `json:"open_lots"`
	UnmatchedSells []UnmatchedSell    `json:"unmatched_sells"`
	Message        string             `json:"message,omitempty"`
}

// AnalysisHistoryEntry is one row of the persisted analysis history.
type AnalysisHistoryEntry struct {
	ID              string    `json:"id"`
	Hash            string    `json:"hash"`
	Source          string    `json:"source"`
	Filename        string    `json:"filename,omitempty"`
	FileSize        int64     `json:"file_size"`
	RecordCount     int       `json:"record_count"`
	CompletedTrades int       `json:"completed_trades"`
	WinRate         string    `json:"win_rate"`
	RiskReward      string    `json:"risk_reward"`
	TotalPnL        string    `json:"total_pnl"`
	CreatedAt       time.Time `json:"created_at"`
}

// AnalysisEvent is published after an analysis completes.
type AnalysisEvent struct {
	EventType       string    `json:"event_type"`
	AnalysisID      string    `json:"analysis_id"`
	Source          string    `json:"source"`
	Instruments     []string  `json:"instruments"`
	CompletedTrades int       `json:"completed_trades"`
	WinRate         string    `json:"win_rate"`
	TotalPnL        string    `json:"total_pnl"`
	Timestamp       time.Time `json:"timestamp"`
}

// InstrumentSummary is a row of the instrument picker.
type InstrumentSummary struct {
	InstrumentID string `json:"instrument_id"`
	DisplayName  string `json:"display_name"`
	Executions   int    `json:"executions"`
}
