package resources

import (
	"bytes"
	"net/http"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/service"
)

// SensorHandlers encapsulates the sensor-related HTTP handlers
type SensorHandlers struct {
	service *service.Service
}

// @Summary List sensors
// @Description List sensors filtered by type and location
// @Tags sensors
// @Produce json
// @Param type query string false "Sensor type"
// @Param location query string false "Sensor location"
// @Param sort query string false "Sort column, prefix with - for descending"
// @Success 200 {array} models.Sensor
// @Failure 400 {object} errors.Error
// @Router /sensors [get]
func (h *SensorHandlers) ListSensors(w http.ResponseWriter, r *http.Request) {
	var filters models.SensorFilters
	if err := decoder.Decode(&filters, r.URL.Query()); err != nil {
		respondWithError(w, r, errors.NewValidationError("invalid query parameters", err))
		return
	}

	sensors, err := h.service.ListSensors(r.Context(), filters)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sensors)
}

// @Summary Create a new sensor
// @Tags sensors
// @Accept json
// @Produce json
// @Param sensor body models.Sensor true "Sensor details"
// @Success 201 {object} models.Sensor
// @Failure 400 {object} errors.Error
// @Router /sensors [post]
func (h *SensorHandlers) CreateSensor(w http.ResponseWriter, r *http.Request) {
	var sensor models.Sensor
	if err := decodeBody(w, r, &sensor); err != nil {
		respondWithError(w, r, err)
		return
	}

	created, err := h.service.CreateSensor(r.Context(), &sensor)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// @Summary Get a sensor
// @Tags sensors
// @Produce json
// @Param id path int true "Sensor ID"
// @Success 200 {object} models.Sensor
// @Failure 404 {object} errors.Error
// @Router /sensors/{id} [get]
func (h *SensorHandlers) GetSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	sensor, err := h.service.GetSensor(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sensor)
}

// @Summary Update a sensor
// @Description Overwrites every mutable field of the sensor
// @Tags sensors
// @Accept json
// @Produce json
// @Param id path int true "Sensor ID"
// @Param sensor body models.Sensor true "Sensor details"
// @Success 200 {object} models.Sensor
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /sensors/{id} [put]
func (h *SensorHandlers) UpdateSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var sensor models.Sensor
	if err := decodeBody(w, r, &sensor); err != nil {
		respondWithError(w, r, err)
		return
	}

	updated, err := h.service.UpdateSensor(r.Context(), id, &sensor)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

// @Summary Delete a sensor
// @Description Deletes the sensor together with its readings and sessions
// @Tags sensors
// @Param id path int true "Sensor ID"
// @Success 204
// @Failure 404 {object} errors.Error
// @Router /sensors/{id} [delete]
func (h *SensorHandlers) DeleteSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.service.DeleteSensor(r.Context(), id); err != nil {
		respondWithError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary Sensor threshold health
// @Tags sensors
// @Produce json
// @Success 200 {object} models.SensorHealthReport
// @Router /sensors/health [get]
func (h *SensorHandlers) SensorHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SensorHealth(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// @Summary Export sensors as CSV
// @Tags sensors
// @Produce text/csv
// @Router /sensors/export [get]
func (h *SensorHandlers) ExportSensors(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportSensorsCSV(r.Context(), &buf); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sensors.csv"`)
	w.Write(buf.Bytes())
}
