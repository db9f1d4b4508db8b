package service

import (
	"context"
	"strconv"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

// StartSession opens a logging session and returns it
func (s *Service) StartSession(ctx context.Context, start models.SessionStart) (*models.LoggingSession, error) {
	id, err := s.sessions.Start(ctx, start)
	if err != nil {
		return nil, err
	}
	s.record(EventSessionStarted, map[string]string{"sensor_id": strconv.FormatInt(start.SensorID, 10)})
	return s.sessions.Get(ctx, id)
}

// StopSession closes a session and returns it with its end time
func (s *Service) StopSession(ctx context.Context, sessionID int64) (*models.LoggingSession, error) {
	if err := s.sessions.Stop(ctx, sessionID); err != nil {
		return nil, err
	}
	s.record(EventSessionStopped, map[string]string{"session_id": strconv.FormatInt(sessionID, 10)})
	return s.sessions.Get(ctx, sessionID)
}

// StopSensorSessions closes every active session of a sensor and returns how many were closed
func (s *Service) StopSensorSessions(ctx context.Context, sensorID int64) (int64, error) {
	n, err := s.sessions.StopForSensor(ctx, sensorID)
	if err != nil {
		return 0, err
	}
	s.record(EventSessionStopped, map[string]string{"sensor_id": strconv.FormatInt(sensorID, 10)})
	return n, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID int64) (*models.LoggingSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

func (s *Service) ActiveSessions(ctx context.Context, sensorID int64) ([]*models.LoggingSession, error) {
	return s.sessions.ActiveFor(ctx, sensorID)
}

func (s *Service) SensorSessions(ctx context.Context, sensorID int64) ([]*models.LoggingSession, error) {
	return s.sessions.ListBySensor(ctx, sensorID)
}

func (s *Service) AllActiveSessions(ctx context.Context) ([]*models.LoggingSession, error) {
	return s.sessions.ListActive(ctx)
}
