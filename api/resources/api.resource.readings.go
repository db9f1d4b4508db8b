package resources

import (
	"bytes"
	"net/http"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/service"
)

// ReadingHandlers encapsulates the reading and aggregation HTTP handlers
type ReadingHandlers struct {
	service *service.Service
}

// @Summary Record a sensor reading
// @Tags readings
// @Accept json
// @Produce json
// @Param id path int true "Sensor ID"
// @Param reading body models.Reading true "Reading; sensor_id is taken from the path"
// @Success 201 {object} map[string]int64
// @Failure 400 {object} errors.Error
// @Router /sensors/{id}/readings [post]
func (h *ReadingHandlers) RecordReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var reading models.Reading
	if err := decodeBody(w, r, &reading); err != nil {
		respondWithError(w, r, err)
		return
	}
	reading.SensorID = id

	readingID, err := h.service.RecordReading(r.Context(), &reading)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]int64{"id": readingID})
}

// @Summary Record readings in bulk
// @Description Stores every reading or none of them
// @Tags readings
// @Accept json
// @Produce json
// @Param readings body []models.Reading true "Readings"
// @Success 201 {object} map[string]int
// @Failure 400 {object} errors.Error
// @Router /readings/bulk [post]
func (h *ReadingHandlers) RecordReadings(w http.ResponseWriter, r *http.Request) {
	var readings []models.Reading
	if err := decodeBody(w, r, &readings); err != nil {
		respondWithError(w, r, err)
		return
	}

	n, err := h.service.RecordReadings(r.Context(), readings)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]int{"inserted": n})
}

// @Summary Get sensor readings
// @Description Raw readings of one sensor in a time range, oldest first
// @Tags readings
// @Produce json
// @Param id path int true "Sensor ID"
// @Param start query string false "Start time (unix seconds or RFC3339)"
// @Param end query string false "End time (unix seconds or RFC3339)"
// @Success 200 {array} models.Reading
// @Router /sensors/{id}/readings [get]
func (h *ReadingHandlers) GetSensorReadings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	_, tr, err := decodeRange(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	readings, err := h.service.ReadingsInRange(r.Context(), id, tr)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, readings)
}

// @Summary Latest sensor reading
// @Tags readings
// @Produce json
// @Param id path int true "Sensor ID"
// @Success 200 {object} models.Reading
// @Failure 404 {object} errors.Error
// @Router /sensors/{id}/readings/latest [get]
func (h *ReadingHandlers) LatestReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	reading, err := h.service.LatestReading(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, reading)
}

// @Summary Aggregate sensor readings
// @Tags readings
// @Produce json
// @Param id path int true "Sensor ID"
// @Param start query string false "Start time"
// @Param end query string false "End time"
// @Param interval query string false "Aggregation interval (1min, 5min, 15min, 20min, 1hour, 6hour, 1day, 1week)"
// @Success 200 {array} models.Bucket
// @Router /sensors/{id}/aggregate [get]
func (h *ReadingHandlers) Aggregate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	q, tr, err := decodeRange(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	buckets, err := h.service.Aggregate(r.Context(), id, tr, q.Interval)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, buckets)
}

// @Summary Aggregate several sensors on a shared time axis
// @Tags readings
// @Produce json
// @Param sensor_ids query []int true "Sensor IDs" collectionFormat(multi)
// @Param start query string false "Start time"
// @Param end query string false "End time"
// @Param interval query string false "Aggregation interval"
// @Param window query int false "Moving average window"
// @Success 200 {object} models.TimeSeriesData
// @Router /readings/aggregate [get]
func (h *ReadingHandlers) AggregateMulti(w http.ResponseWriter, r *http.Request) {
	q, tr, err := decodeRange(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	data, err := h.service.AggregateMulti(r.Context(), q.SensorIDs, tr, q.Interval, q.Window)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, data)
}

// @Summary Readings of all sensors in a time range
// @Tags readings
// @Produce json
// @Param start query string false "Start time"
// @Param end query string false "End time"
// @Success 200 {array} models.Reading
// @Router /readings [get]
func (h *ReadingHandlers) GlobalReadings(w http.ResponseWriter, r *http.Request) {
	_, tr, err := decodeRange(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	readings, err := h.service.ReadingsForAll(r.Context(), tr)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, readings)
}

// @Summary Current reading of every sensor
// @Tags readings
// @Produce json
// @Success 200 {array} models.Reading
// @Router /readings/current [get]
func (h *ReadingHandlers) CurrentReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := h.service.CurrentReadings(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, readings)
}

// @Summary Import readings from CSV
// @Description Header-mapped CSV; all rows are stored or none
// @Tags readings
// @Accept text/csv
// @Produce json
// @Success 201 {object} map[string]int
// @Failure 400 {object} errors.Error
// @Router /readings/import [post]
func (h *ReadingHandlers) ImportCSV(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	n, err := h.service.ImportReadingsCSV(r.Context(), body)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]int{"imported": n})
}

// @Summary Export readings as CSV
// @Tags readings
// @Produce text/csv
// @Param sensor_id query int false "Sensor ID; all sensors when omitted"
// @Param start query string false "Start time"
// @Param end query string false "End time"
// @Router /readings/export [get]
func (h *ReadingHandlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	q, tr, err := decodeRange(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if q.SensorID < 0 {
		respondWithError(w, r, errors.NewValidationError("sensor_id must be positive", nil))
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportReadingsCSV(r.Context(), &buf, q.SensorID, tr); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="readings.csv"`)
	w.Write(buf.Bytes())
}
