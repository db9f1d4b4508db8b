package resources

import (
	"net/http"
	"strconv"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/service"
)

// SessionHandlers encapsulates the logging session HTTP handlers
type SessionHandlers struct {
	service *service.Service
}

// @Summary Start a logging session
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body models.SessionStart true "Session"
// @Success 201 {object} models.LoggingSession
// @Failure 409 {object} errors.Error
// @Router /sessions [post]
func (h *SessionHandlers) StartSession(w http.ResponseWriter, r *http.Request) {
	var start models.SessionStart
	if err := decodeBody(w, r, &start); err != nil {
		respondWithError(w, r, err)
		return
	}

	session, err := h.service.StartSession(r.Context(), start)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, session)
}

// @Summary Stop a logging session
// @Tags sessions
// @Produce json
// @Param id path int true "Session ID"
// @Success 200 {object} models.LoggingSession
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Router /sessions/{id}/stop [post]
func (h *SessionHandlers) StopSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	session, err := h.service.StopSession(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// @Summary Get a logging session
// @Tags sessions
// @Produce json
// @Param id path int true "Session ID"
// @Success 200 {object} models.LoggingSession
// @Failure 404 {object} errors.Error
// @Router /sessions/{id} [get]
func (h *SessionHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// @Summary Active logging sessions of all sensors
// @Tags sessions
// @Produce json
// @Success 200 {array} models.LoggingSession
// @Router /sessions/active [get]
func (h *SessionHandlers) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.AllActiveSessions(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessions)
}

// @Summary Logging sessions of a sensor
// @Tags sessions
// @Produce json
// @Param id path int true "Sensor ID"
// @Param active query bool false "Only active sessions"
// @Success 200 {array} models.LoggingSession
// @Router /sensors/{id}/sessions [get]
func (h *SessionHandlers) SensorSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	list := h.service.SensorSessions
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		list = h.service.ActiveSessions
	}
	sessions, err := list(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessions)
}

// @Summary Stop every active session of a sensor
// @Tags sessions
// @Produce json
// @Param id path int true "Sensor ID"
// @Success 200 {object} map[string]int64
// @Failure 404 {object} errors.Error
// @Router /sensors/{id}/sessions/stop [post]
func (h *SessionHandlers) StopSensorSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	n, err := h.service.StopSensorSessions(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"stopped": n})
}
