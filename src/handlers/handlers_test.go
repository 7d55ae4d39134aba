package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradereview/backend/src/cache"
	"github.com/username/tradereview/backend/src/config"
	"github.com/username/tradereview/backend/src/models"
	"github.com/username/tradereview/backend/src/processors"
	"github.com/username/tradereview/backend/src/security"
	"github.com/username/tradereview/backend/src/services"
)

const sbiCSV = `約定履歴照会
約定日,銘柄,銘柄コード,市場,取引,約定数量,約定単価,受渡日
2024/01/05,トヨタ自動車,7203,東証,株式現物買,100,"1,000",2024/01/09
2024/02/01,トヨタ自動車,7203,東証,株式現物売,100,"1,200",2024/02/05
`

type stubMarketData struct{}

func (stubMarketData) GetPriceBars(_ context.Context, _ string, start, end time.Time) ([]models.PriceBar, error) {
	var bars []models.PriceBar
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		bars = append(bars, models.PriceBar{Date: d, Close: decimal.NewFromInt(1000)})
	}
	return bars, nil
}

func (stubMarketData) GetInstrumentName(context.Context, string) (string, error) {
	return "", services.ErrNoMarketData
}

func newTestRouter(t *testing.T, auth *security.AuthService) http.Handler {
	t.Helper()
	cfg := &config.AppConfig{MaxUploadSizeBytes: 1 << 20, DefaultSource: "sbi", InputEncoding: "auto"}

	analysisService := services.NewAnalysisService(
		processors.NewTradeMatcher(),
		processors.NewPerformanceProcessor(),
		cache.NewMemoryStore(time.Minute, time.Minute),
		time.Minute, nil, nil,
	)
	chartService := services.NewChartService(stubMarketData{}, processors.NewAnnotationProcessor())
	uploadHandler := NewUploadHandler(analysisService, cfg)
	analysis := NewAnalysisHandler(analysisService, chartService)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Get("/health", NewHealthHandler(nil).HandleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(auth))
		r.Get("/sources", uploadHandler.HandleListSources)
		r.Post("/upload", uploadHandler.HandleUpload)
		r.Get("/analyses", analysis.HandleListAnalyses)
		r.Route("/analyses/{id}", func(r chi.Router) {
			r.Get("/", analysis.HandleGetAnalysis)
			r.Delete("/", analysis.HandleDeleteAnalysis)
			r.Get("/trades.csv", analysis.HandleExportTrades)
			r.Get("/instruments", analysis.HandleListInstruments)
			r.Get("/chart/{instrument}", analysis.HandleGetChart)
		})
	})
	return r
}

func uploadRequest(t *testing.T, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="trades.csv"`)
	h.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func upload(t *testing.T, router http.Handler) models.AnalysisReport {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, sbiCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report models.AnalysisReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func TestUploadHandler(t *testing.T) {
	router := newTestRouter(t, nil)

	t.Run("analyzes an export with the default source", func(t *testing.T) {
		report := upload(t, router)
		assert.Equal(t, "sbi", report.Source)
		assert.Equal(t, 1, report.Summary.TotalCompletedTrades)
		assert.True(t, report.Summary.TotalPnL.Equal(decimal.NewFromInt(20000)))
		assert.Equal(t, models.InfiniteRiskReward, report.Summary.RiskReward)
	})

	cases := []struct {
		name    string
		content string
		fields  map[string]string
		status  int
	}{
		{"unknown source", sbiCSV, map[string]string{"source": "nomura"}, http.StatusBadRequest},
		{"header not found", "a,b,c\n1,2,3\n", nil, http.StatusBadRequest},
		{"missing quantity column", "約定日,銘柄コード,取引,約定単価\n2024/01/05,7203,株式現物買,1000\n", nil, http.StatusBadRequest},
		{"unparsable quantity", "約定日,銘柄コード,取引,約定単価,約定数量\n2024/01/05,7203,株式現物買,1000,abc\n", nil, http.StatusUnprocessableEntity},
		{"binary content", "\x00\x01\x02", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, uploadRequest(t, tc.content, tc.fields))
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	t.Run("missing file field", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("source", "sbi"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lists sources", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"rakuten"`)
		assert.Contains(t, rec.Body.String(), `"default":"sbi"`)
	})
}

func TestAnalysisHandler(t *testing.T) {
	router := newTestRouter(t, nil)
	report := upload(t, router)
	base := "/api/analyses/" + report.ID

	t.Run("returns the report with an ETag", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		etag := rec.Header().Get("ETag")
		require.NotEmpty(t, etag)

		req := httptest.NewRequest(http.MethodGet, base, nil)
		req.Header.Set("If-None-Match", etag)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotModified, rec.Code)
	})

	t.Run("rejects malformed and unknown ids", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/3f2b6d1e-0000-4000-8000-000000000000", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("exports trades as CSV", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"/trades.csv", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[1], "7203.T,トヨタ自動車,2024-01-05,1000,2024-02-01,1200,100,20000"))
	})

	t.Run("lists instruments", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"/instruments", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var list []models.InstrumentSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Equal(t, []models.InstrumentSummary{{InstrumentID: "7203.T", DisplayName: "トヨタ自動車", Executions: 2}}, list)
	})

	t.Run("builds a chart", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"/chart/7203.T", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var chart models.ChartData
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
		assert.True(t, chart.HasData)
		assert.Len(t, chart.Annotations, 2)
	})

	t.Run("chart errors", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"/chart/bad$id", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"/chart/6758.T", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lists history without a database", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses?limit=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("deletes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, base, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	auth := security.NewAuthService("test-secret-that-is-long-enough-123")
	router := newTestRouter(t, auth)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.GenerateToken("ci", "api", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind auth")
}
