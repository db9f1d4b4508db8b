package resources

import (
	"net/http"

	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/service"
)

// SystemHandlers exposes store health and maintenance
type SystemHandlers struct {
	service *service.Service
}

// HealthCheck reports the service version and whether the store answers
func (h *SystemHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health, err := h.service.DatabaseHealth(r.Context())
	if err != nil {
		nuts.L.Warnf("[API] Health check failed: %v", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"version": nuts.GetVersion(),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  health.Status,
		"version": nuts.GetVersion(),
	})
}

// @Summary Database health
// @Tags system
// @Produce json
// @Success 200 {object} models.DatabaseHealth
// @Router /system/database [get]
func (h *SystemHandlers) DatabaseHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.service.DatabaseHealth(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, health)
}

// @Summary Integrity check
// @Description Always 200; problems are listed in the report
// @Tags system
// @Produce json
// @Success 200 {object} models.IntegrityReport
// @Router /system/integrity [get]
func (h *SystemHandlers) IntegrityCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.IntegrityCheck(r.Context()))
}

// @Summary Run maintenance tasks
// @Description Runs the named tasks in order; defaults to analyze, checkpoint and integrity
// @Tags system
// @Produce json
// @Param task query []string false "analyze, checkpoint, vacuum or integrity" collectionFormat(multi)
// @Success 200 {array} models.MaintenanceResult
// @Failure 400 {object} errors.Error
// @Router /system/maintenance [post]
func (h *SystemHandlers) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.RunMaintenance(r.Context(), r.URL.Query()["task"]...)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, results)
}
