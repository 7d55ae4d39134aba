package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradereview/backend/src/models"
)

func TestAnalyses(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older := models.AnalysisHistoryEntry{ID: "a1", Hash: "h1", Source: "sbi", Filename: "old.csv", RecordCount: 3, CompletedTrades: 1, WinRate: "100", RiskReward: "inf", TotalPnL: "10000", CreatedAt: base}
	newer := models.AnalysisHistoryEntry{ID: "a2", Hash: "h1", Source: "sbi", Filename: "new.csv", RecordCount: 4, CompletedTrades: 2, WinRate: "50", RiskReward: "2.5", TotalPnL: "3000", CreatedAt: base.Add(time.Hour)}

	require.NoError(t, InsertAnalysis(db, older, []byte(`{"id":"a1"}`)))
	require.NoError(t, InsertAnalysis(db, newer, []byte(`{"id":"a2"}`)))

	t.Run("lists newest first", func(t *testing.T) {
		entries, err := ListAnalyses(db, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "a2", entries[0].ID)
		assert.Equal(t, "2.5", entries[0].RiskReward)
		assert.Equal(t, "old.csv", entries[1].Filename)
	})

	t.Run("reads the stored report", func(t *testing.T) {
		b, err := GetAnalysisReportJSON(db, "a1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"a1"}`, string(b))
	})

	t.Run("finds the latest analysis by hash", func(t *testing.T) {
		id, err := GetLatestAnalysisIDByHash(db, "h1")
		require.NoError(t, err)
		assert.Equal(t, "a2", id)

		_, err = GetLatestAnalysisIDByHash(db, "nope")
		assert.ErrorIs(t, err, ErrAnalysisNotFound)
	})

	t.Run("deletes analyses", func(t *testing.T) {
		require.NoError(t, DeleteAnalysis(db, "a1"))
		_, err := GetAnalysisReportJSON(db, "a1")
		assert.ErrorIs(t, err, ErrAnalysisNotFound)
	})
}

func TestInstrumentNames(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, UpsertInstrumentName(db, InstrumentName{InstrumentID: "7203.T", DisplayName: "TOYOTA MOTOR CORP", Source: "market_data"}))
	require.NoError(t, UpsertInstrumentName(db, InstrumentName{InstrumentID: "7203.T", DisplayName: "トヨタ自動車", Source: "export"}))

	names, err := GetInstrumentNames(db, []string{"7203.T", "6758.T"})
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "トヨタ自動車", names["7203.T"].DisplayName)
	assert.Equal(t, "export", names["7203.T"].Source)

	empty, err := GetInstrumentNames(db, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
