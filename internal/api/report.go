package api

import (
	"net/http"
	"time"

	"task-manager/internal/cerr"
	"task-manager/internal/model"
)

type reportResponse struct {
	ID         uint       `json:"id"`
	LastReport *time.Time `json:"last_report"`
	Timing     int        `json:"timing"`
}

func newReportResponse(report *model.Report) reportResponse {
	return reportResponse{ID: report.ID, LastReport: report.LastReport, Timing: report.Timing}
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reportService.GetReport(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}

func (s *Server) updateReport(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Timing *int `json:"timing"`
	}
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	if input.Timing == nil {
		writeError(w, r, cerr.Invalid("timing is required"))
		return
	}
	report, err := s.reportService.SetTiming(r.Context(), userFromContext(r.Context()), *input.Timing)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}
