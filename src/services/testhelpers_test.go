package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/tradereview/backend/src/database"
	"github.com/username/tradereview/backend/src/models"
)

const sbiHeader = "約定日,銘柄,銘柄コード,市場,取引,約定数量,約定単価,受渡日\n"

// sbiExport builds a minimal SBI export with a two-line preamble.
func sbiExport(rows ...string) []byte {
	out := "約定履歴照会\n\"検索件数\",\"3件\"\n" + sbiHeader
	for _, r := range rows {
		out += r + "\n"
	}
	return []byte(out)
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	_, filename, _, _ := runtime.Caller(0)
	migrationsPath := filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations")

	dbPath := filepath.Join(t.TempDir(), "services.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db, migrationsPath, dbPath))
	return db
}

type fakePublisher struct {
	mu      sync.Mutex
	reports []*models.AnalysisReport
}

func (p *fakePublisher) PublishAnalysisCompleted(_ context.Context, report *models.AnalysisReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

// fakeMarketData serves one bar per calendar day with Close = 100 + day index.
type fakeMarketData struct {
	names     map[string]string
	noData    bool
	gotStart  time.Time
	gotEnd    time.Time
	nameCalls int
}

func (f *fakeMarketData) GetPriceBars(_ context.Context, instrumentID string, start, end time.Time) ([]models.PriceBar, error) {
	f.gotStart, f.gotEnd = start, end
	if f.noData {
		return nil, ErrNoMarketData
	}
	var bars []models.PriceBar
	for i, day := 0, start; day.Before(end); i, day = i+1, day.AddDate(0, 0, 1) {
		c := decimal.NewFromInt(int64(100 + i))
		bars = append(bars, models.PriceBar{Date: day, Open: c, High: c, Low: c, Close: c, Volume: 1000})
	}
	return bars, nil
}

func (f *fakeMarketData) GetInstrumentName(_ context.Context, instrumentID string) (string, error) {
	f.nameCalls++
	if name, ok := f.names[instrumentID]; ok {
		return name, nil
	}
	return "", ErrNoMarketData
}
