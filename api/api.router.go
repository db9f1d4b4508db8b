package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/api/middleware"
	"github.com/itsatony/w4b_v3/server/sensorlog/api/resources"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/service"
)

type Router struct {
	router    *mux.Router
	resources *resources.Resources
	metrics   *monitoring.Service
	cfg       config.ServerConfig
	handler   http.Handler
}

// NewRouter wires every route to the service. metrics may be nil, in which
// case /metrics is not served.
func NewRouter(svc *service.Service, metrics *monitoring.Service, cfg config.ServerConfig) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		resources: resources.NewResources(svc),
		metrics:   metrics,
		cfg:       cfg,
	}

	r.setupRoutes()
	r.handler = r.wrap(r.router)
	return r
}

func (r *Router) setupRoutes() {
	r.router.Use(middleware.RequestID)
	if r.metrics != nil {
		r.router.Use(middleware.Timing(r.metrics))
		r.router.Handle("/metrics", r.metrics.Handler()).Methods(http.MethodGet)
	}

	// Public routes
	r.router.HandleFunc("/health", r.resources.System.HealthCheck).Methods(http.MethodGet)

	api := r.router.PathPrefix("/api").Subrouter()

	// Sensors
	sensors := api.PathPrefix("/sensors").Subrouter()
	sensors.HandleFunc("", r.resources.Sensors.ListSensors).Methods(http.MethodGet)
	sensors.HandleFunc("", r.resources.Sensors.CreateSensor).Methods(http.MethodPost)
	sensors.HandleFunc("/health", r.resources.Sensors.SensorHealth).Methods(http.MethodGet)
	sensors.HandleFunc("/export", r.resources.Sensors.ExportSensors).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}", r.resources.Sensors.GetSensor).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}", r.resources.Sensors.UpdateSensor).Methods(http.MethodPut)
	sensors.HandleFunc("/{id:[0-9]+}", r.resources.Sensors.DeleteSensor).Methods(http.MethodDelete)
	sensors.HandleFunc("/{id:[0-9]+}/readings", r.resources.Readings.GetSensorReadings).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}/readings", r.resources.Readings.RecordReading).Methods(http.MethodPost)
	sensors.HandleFunc("/{id:[0-9]+}/readings/latest", r.resources.Readings.LatestReading).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}/aggregate", r.resources.Readings.Aggregate).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}/sessions", r.resources.Sessions.SensorSessions).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}/sessions/stop", r.resources.Sessions.StopSensorSessions).Methods(http.MethodPost)

	// Readings
	readings := api.PathPrefix("/readings").Subrouter()
	readings.HandleFunc("", r.resources.Readings.GlobalReadings).Methods(http.MethodGet)
	readings.HandleFunc("/bulk", r.resources.Readings.RecordReadings).Methods(http.MethodPost)
	readings.HandleFunc("/current", r.resources.Readings.CurrentReadings).Methods(http.MethodGet)
	readings.HandleFunc("/aggregate", r.resources.Readings.AggregateMulti).Methods(http.MethodGet)
	readings.HandleFunc("/import", r.resources.Readings.ImportCSV).Methods(http.MethodPost)
	readings.HandleFunc("/export", r.resources.Readings.ExportCSV).Methods(http.MethodGet)

	// Sessions
	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("", r.resources.Sessions.StartSession).Methods(http.MethodPost)
	sessions.HandleFunc("/active", r.resources.Sessions.ListActiveSessions).Methods(http.MethodGet)
	sessions.HandleFunc("/{id:[0-9]+}", r.resources.Sessions.GetSession).Methods(http.MethodGet)
	sessions.HandleFunc("/{id:[0-9]+}/stop", r.resources.Sessions.StopSession).Methods(http.MethodPost)

	// System
	system := api.PathPrefix("/system").Subrouter()
	system.HandleFunc("/database", r.resources.System.DatabaseHealth).Methods(http.MethodGet)
	system.HandleFunc("/integrity", r.resources.System.IntegrityCheck).Methods(http.MethodGet)
	system.HandleFunc("/maintenance", r.resources.System.RunMaintenance).Methods(http.MethodPost)
}

// wrap adds panic recovery, CORS and access logging around the router
func (r *Router) wrap(h http.Handler) http.Handler {
	origins := r.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader, "Retry-After"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return handlers.CombinedLoggingHandler(middleware.LogWriter{}, h)
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	nuts.L.Errorf("[HTTP] Recovered from panic: %s", fmt.Sprint(v...))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}
