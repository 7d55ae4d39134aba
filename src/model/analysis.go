package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/username/tradereview/backend/src/models"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

// InsertAnalysis stores a history row with the serialized report.
func InsertAnalysis(db *sql.DB, entry models.AnalysisHistoryEntry, reportJSON []byte) error {
	query := `
		INSERT INTO analyses (id, hash, source, filename, file_size, record_count, completed_trades, win_rate, risk_reward, total_pnl, report_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.Exec(query,
		entry.ID, entry.Hash, entry.Source, entry.Filename, entry.FileSize, entry.RecordCount,
		entry.CompletedTrades, entry.WinRate, entry.RiskReward, entry.TotalPnL, string(reportJSON), entry.CreatedAt.UTC(),
	)
	return err
}

// GetAnalysisReportJSON returns the serialized report of an analysis.
func GetAnalysisReportJSON(db *sql.DB, id string) ([]byte, error) {
	var report string
	err := db.QueryRow(`SELECT report_json FROM analyses WHERE id = ?`, id).Scan(&report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(report), nil
}

// GetLatestAnalysisIDByHash finds the most recent analysis of identical input.
func GetLatestAnalysisIDByHash(db *sql.DB, hash string) (string, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM analyses WHERE hash = ? ORDER BY created_at DESC LIMIT 1`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAnalysisNotFound
	}
	return id, err
}

// ListAnalyses returns the newest history rows first.
func ListAnalyses(db *sql.DB, limit int) ([]models.AnalysisHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, hash, source, COALESCE(filename, ''), file_size, record_count, completed_trades, win_rate, risk_reward, total_pnl, created_at
		FROM analyses ORDER BY created_at DESC, id LIMIT ?`
	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.AnalysisHistoryEntry, 0)
	for rows.Next() {
		var e models.AnalysisHistoryEntry
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Hash, &e.Source, &e.Filename, &e.FileSize, &e.RecordCount,
			&e.CompletedTrades, &e.WinRate, &e.RiskReward, &e.TotalPnL, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteAnalysis removes one analysis. Deleting a missing id is not an error.
func DeleteAnalysis(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	return err
}
