package handlers

import (
	"net/http"

	"github.com/weddingdesk/api/internal/metrics"
)

/* AdmissionStatsHandlers handles admission statistics endpoints */
type AdmissionStatsHandlers struct {
	stats *metrics.AdmissionStats
}

/* NewAdmissionStatsHandlers creates new statistics handlers */
func NewAdmissionStatsHandlers(stats *metrics.AdmissionStats) *AdmissionStatsHandlers {
	return &AdmissionStatsHandlers{
		stats: stats,
	}
}

/* GetStats returns current admission statistics */
func (h *AdmissionStatsHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.stats.GetStats(), http.StatusOK)
}

/* ResetStats resets admission statistics */
func (h *AdmissionStatsHandlers) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.stats.Reset()
	WriteSuccess(w, map[string]string{"message": "Admission statistics reset"}, http.StatusOK)
}
