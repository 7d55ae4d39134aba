package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradereview/backend/src/models"
	"github.com/username/tradereview/backend/src/processors"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func chartReport() *models.AnalysisReport {
	return &models.AnalysisReport{
		ID: "a1",
		Dataset: &models.TradeDataset{
			Source: "sbi",
			Records: []models.TradeRecord{
				{InstrumentID: "7203.T", InstrumentName: "トヨタ自動車", Side: models.SideBuy, Price: decimal.RequireFromString("1055.7"), Quantity: decimal.NewFromInt(100), TradeDate: day(2024, 3, 1), Row: 0},
				{InstrumentID: "7203.T", Side: models.SideSell, Price: decimal.NewFromInt(1200), Quantity: decimal.NewFromInt(100), TradeDate: day(2024, 3, 10), Row: 1},
				{InstrumentID: "7203.T", Side: models.SideUnknown, TradeDate: day(2024, 3, 12), Row: 2},
				{InstrumentID: "6758.T", Side: models.SideBuy, Price: decimal.NewFromInt(12500), Quantity: decimal.NewFromInt(50), TradeDate: day(2024, 2, 10), Row: 3},
				{InstrumentID: "9984.T", Side: models.SideUnknown, TradeDate: day(2024, 2, 11), Row: 4},
			},
		},
	}
}

func newTestChartService(md MarketDataService, now time.Time) *chartServiceImpl {
	s := NewChartService(md, processors.NewAnnotationProcessor()).(*chartServiceImpl)
	s.now = func() time.Time { return now }
	return s
}

func TestChartService_BuildChart(t *testing.T) {
	ctx := context.Background()

	t.Run("pads the trading period and caps it at today", func(t *testing.T) {
		md := &fakeMarketData{}
		s := newTestChartService(md, time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC))

		chart, err := s.BuildChart(ctx, chartReport(), "7203.T")
		require.NoError(t, err)

		assert.Equal(t, "トヨタ自動車", chart.DisplayName)
		assert.Equal(t, day(2024, 1, 31), chart.From)
		assert.Equal(t, day(2024, 3, 20), chart.To)
		assert.Equal(t, day(2023, 12, 22), md.gotStart, "fetch starts 40 days before the window")
		assert.Equal(t, day(2024, 3, 21), md.gotEnd)

		require.True(t, chart.HasData)
		assert.Equal(t, day(2024, 1, 31), chart.Points[0].Date)
		assert.Equal(t, day(2024, 3, 20), chart.Points[len(chart.Points)-1].Date)
		assert.Len(t, chart.Points, 50)
	})

	t.Run("moving averages are warm at the left edge", func(t *testing.T) {
		s := newTestChartService(&fakeMarketData{}, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
		chart, err := s.BuildChart(ctx, chartReport(), "7203.T")
		require.NoError(t, err)

		// closes rise by one per day, so SMA(n) = close - (n-1)/2
		first := chart.Points[0]
		require.NotNil(t, first.SMA5)
		require.NotNil(t, first.SMA25)
		assert.True(t, first.SMA5.Equal(first.Close.Sub(decimal.NewFromInt(2))), "sma5 %s close %s", first.SMA5, first.Close)
		assert.True(t, first.SMA25.Equal(first.Close.Sub(decimal.NewFromInt(12))), "sma25 %s close %s", first.SMA25, first.Close)
	})

	t.Run("annotates executions with a bar", func(t *testing.T) {
		s := newTestChartService(&fakeMarketData{}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
		chart, err := s.BuildChart(ctx, chartReport(), "7203.T")
		require.NoError(t, err)

		assert.Equal(t, day(2024, 4, 9), chart.To)
		require.Len(t, chart.Annotations, 2)
		assert.Equal(t, "03/01 買 1055円 100株", chart.Annotations[0].Text)
		assert.Equal(t, "03/10 売 1200円 100株", chart.Annotations[1].Text)
	})

	t.Run("no market data is an empty chart", func(t *testing.T) {
		s := newTestChartService(&fakeMarketData{noData: true}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
		chart, err := s.BuildChart(ctx, chartReport(), "6758.T")
		require.NoError(t, err)
		assert.False(t, chart.HasData)
		assert.Empty(t, chart.Points)
		assert.Empty(t, chart.Annotations)
	})

	t.Run("unknown instrument", func(t *testing.T) {
		s := newTestChartService(&fakeMarketData{}, time.Now())
		_, err := s.BuildChart(ctx, chartReport(), "1301.T")
		assert.ErrorIs(t, err, ErrInstrumentNotFound)

		_, err = s.BuildChart(ctx, chartReport(), "9984.T")
		assert.ErrorIs(t, err, ErrInstrumentNotFound, "instruments without executions have no chart")
	})
}

func TestChartService_ListInstruments(t *testing.T) {
	md := &fakeMarketData{names: map[string]string{"6758.T": "Sony Group Corporation"}}
	s := newTestChartService(md, time.Now())

	list, err := s.ListInstruments(context.Background(), chartReport())
	require.NoError(t, err)

	assert.Equal(t, []models.InstrumentSummary{
		{InstrumentID: "6758.T", DisplayName: "Sony Group Corporation", Executions: 1},
		{InstrumentID: "7203.T", DisplayName: "トヨタ自動車", Executions: 2},
		{InstrumentID: "9984.T", DisplayName: "9984.T", Executions: 0},
	}, list)
	assert.Equal(t, 2, md.nameCalls, "names from the export are not looked up")
}
