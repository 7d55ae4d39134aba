// backend/src/handlers/analysis_handler.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/tradereview/backend/src/logger"
	"github.com/username/tradereview/backend/src/models"
	"github.com/username/tradereview/backend/src/security/validation"
	"github.com/username/tradereview/backend/src/services"
	"github.com/username/tradereview/backend/src/utils"
)

const defaultHistoryLimit = 50

type AnalysisHandler struct {
	analysisService services.AnalysisService
	chartService    services.ChartService
}

func NewAnalysisHandler(analysisService services.AnalysisService, chartService services.ChartService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		chartService:    chartService,
	}
}

func (h *AnalysisHandler) HandleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, err := validation.ParseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.analysisService.ListAnalyses(r.Context(), limit)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, entries, http.StatusOK)
}

// loadReport resolves the {id} URL parameter, writing the error response itself.
func (h *AnalysisHandler) loadReport(w http.ResponseWriter, r *http.Request) (*models.AnalysisReport, bool) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateAnalysisID(id); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	report, err := h.analysisService.GetReport(r.Context(), id)
	if err != nil {
		sendServiceError(w, r, err)
		return nil, false
	}
	return report, true
}

func (h *AnalysisHandler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	etag, err := utils.GenerateETag(report)
	if err != nil {
		logger.FromContext(r.Context()).Warn("Proceeding without ETag", "analysisID", report.ID, "error", err)
	} else if utils.ETagMatches(w, r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	utils.SendJSON(w, report, http.StatusOK)
}

func (h *AnalysisHandler) HandleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateAnalysisID(id); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.analysisService.DeleteAnalysis(r.Context(), id); err != nil {
		sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AnalysisHandler) HandleExportTrades(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"trades-%s.csv\"", report.ID))
	if err := h.analysisService.ExportCompletedTradesCSV(report, w); err != nil {
		logger.FromContext(r.Context()).Error("Failed to write trades CSV", "analysisID", report.ID, "error", err)
	}
}

func (h *AnalysisHandler) HandleListInstruments(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	instruments, err := h.chartService.ListInstruments(r.Context(), report)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, instruments, http.StatusOK)
}

func (h *AnalysisHandler) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrument")
	if err := validation.ValidateInstrumentID(instrumentID); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	chart, err := h.chartService.BuildChart(r.Context(), report, instrumentID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, chart, http.StatusOK)
}
