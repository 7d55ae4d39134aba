package model

import (
	"database/sql"
	"strings"
	"time"

	"github.com/username/tradereview/backend/src/logger"
)

// InstrumentName caches the display name resolved for an instrument id.
type InstrumentName struct {
	InstrumentID string
	DisplayName  string
	Source       string // "export" or "market_data"
	UpdatedAt    time.Time
}

// GetInstrumentNames retrieves cached names for several instruments in one query.
func GetInstrumentNames(db *sql.DB, ids []string) (map[string]InstrumentName, error) {
	names := make(map[string]InstrumentName)
	if len(ids) == 0 {
		return names, nil
	}
	query := `SELECT instrument_id, display_name, source, updated_at FROM instrument_names WHERE instrument_id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var n InstrumentName
		if err := rows.Scan(&n.InstrumentID, &n.DisplayName, &n.Source, &n.UpdatedAt); err != nil {
			return nil, err
		}
		names[n.InstrumentID] = n
	}
	return names, rows.Err()
}

// UpsertInstrumentName saves a name, replacing any previous one.
func UpsertInstrumentName(db *sql.DB, n InstrumentName) error {
	query := `
        INSERT INTO instrument_names (instrument_id, display_name, source, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(instrument_id) DO UPDATE SET
            display_name = excluded.display_name,
            source = excluded.source,
            updated_at = excluded.updated_at;
    `
	_, err := db.Exec(query, n.InstrumentID, n.DisplayName, n.Source, time.Now().UTC())
	if err != nil {
		logger.L.Error("Failed to upsert instrument name", "instrument", n.InstrumentID, "error", err)
	}
	return err
}
