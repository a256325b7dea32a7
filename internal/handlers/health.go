package handlers

import (
	"net/http"

	"github.com/weddingdesk/api/internal/initialization"
)

/* HealthHandlers serves the health endpoint */
type HealthHandlers struct {
	checker *initialization.HealthChecker
	version string
}

/* NewHealthHandlers creates health handlers */
func NewHealthHandlers(checker *initialization.HealthChecker, version string) *HealthHandlers {
	return &HealthHandlers{checker: checker, version: version}
}

/* Health reports dependency health; 503 only when a critical check fails */
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := h.checker.CheckAll(r.Context())
	status.Version = h.version

	code := http.StatusOK
	if !status.Overall {
		code = http.StatusServiceUnavailable
	}
	WriteSuccess(w, status, code)
}
