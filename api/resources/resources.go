// FilePath: server/sensorlog/api/resources/resources.go
package resources

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/api/middleware"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/service"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Sensors  *SensorHandlers
	Readings *ReadingHandlers
	Sessions *SessionHandlers
	System   *SystemHandlers
}

// NewResources creates a new Resources instance
func NewResources(svc *service.Service) *Resources {
	return &Resources{
		Sensors:  &SensorHandlers{service: svc},
		Readings: &ReadingHandlers{service: svc},
		Sessions: &SessionHandlers{service: svc},
		System:   &SystemHandlers{service: svc},
	}
}

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// rangeQuery is the query string shared by the reading and aggregation routes.
// start and end accept unix seconds or RFC3339; they default to the last 24 hours.
type rangeQuery struct {
	Start     string  `schema:"start"`
	End       string  `schema:"end"`
	Interval  string  `schema:"interval"`
	Window    int     `schema:"window"`
	SensorID  int64   `schema:"sensor_id"`
	SensorIDs []int64 `schema:"sensor_ids"`
}

func decodeRange(r *http.Request) (rangeQuery, models.TimeRange, error) {
	var q rangeQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		return q, models.TimeRange{}, errors.NewValidationError("invalid query parameters", err)
	}
	now := time.Now()
	tr := models.TimeRange{Start: now.Add(-24 * time.Hour).Unix(), End: now.Unix()}
	var err error
	if q.Start != "" {
		if tr.Start, err = parseTime(q.Start); err != nil {
			return q, tr, err
		}
	}
	if q.End != "" {
		if tr.End, err = parseTime(q.End); err != nil {
			return q, tr, err
		}
	}
	return q, tr, nil
}

func parseTime(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid time %q", s), err)
	}
	return t.Unix(), nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid %s %q", name, raw), err)
	}
	return id, nil
}

// maxBodyBytes bounds the size of JSON and CSV request bodies
const maxBodyBytes = 32 << 20

// decodeBody decodes a JSON request body of at most maxBodyBytes
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.NewValidationError(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), err)
		}
		return errors.NewValidationError("invalid request body", err)
	}
	return nil
}

func statusFor(t errors.ErrorType) int {
	switch t {
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeConflict, errors.ErrorTypeIntegrityViolation:
		return http.StatusConflict
	case errors.ErrorTypeResourceExhausted, errors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *errors.Error
	if !errors.As(err, &apiErr) {
		apiErr = errors.NewInternalError("internal error", err)
	}
	apiErr.WithRequestID(middleware.GetRequestID(r.Context()))

	code := statusFor(apiErr.Type)
	if apiErr.Type == errors.ErrorTypeResourceExhausted {
		w.Header().Set("Retry-After", "1")
	}
	if code >= http.StatusInternalServerError {
		nuts.L.Errorf("[API] %s %s: %s", r.Method, r.URL.Path, apiErr.Error())
	} else {
		nuts.L.Debugf("[API] %s %s: %s", r.Method, r.URL.Path, apiErr.Error())
	}
	respondWithJSON(w, code, apiErr)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
