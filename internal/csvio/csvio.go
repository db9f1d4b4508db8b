// Package csvio maps readings and sensors to and from CSV.
package csvio

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

// TimeLayout is used for the formatted_time column and accepted on import
const TimeLayout = "2006-01-02 15:04:05"

// ReadingHeader is the column order of exported readings
var ReadingHeader = []string{"reading_id", "timestamp", "formatted_time", "sensor_id", "value", "state", "change_type"}

// SensorHeader is the column order of exported sensors
var SensorHeader = []string{"id", "name", "type", "location", "unit", "threshold_min", "threshold_max", "calibration_date", "notes", "created_at", "updated_at"}

// WriteReadings writes a header row followed by one row per reading
func WriteReadings(w io.Writer, readings []models.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReadingHeader); err != nil {
		return errors.NewInternalError("failed to write csv header", err)
	}
	for i := range readings {
		r := &readings[i]
		row := []string{
			strconv.FormatInt(r.ID, 10),
			strconv.FormatInt(r.Timestamp, 10),
			time.Unix(r.Timestamp, 0).UTC().Format(TimeLayout),
			strconv.FormatInt(r.SensorID, 10),
			optFloat(r.Value),
			optInt(r.State),
			optString(r.ChangeType),
		}
		if err := cw.Write(row); err != nil {
			return errors.NewInternalError("failed to write csv row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.NewInternalError("failed to flush csv", err)
	}
	return nil
}

// WriteSensors writes a header row followed by one row per sensor
func WriteSensors(w io.Writer, sensors []*models.Sensor) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SensorHeader); err != nil {
		return errors.NewInternalError("failed to write csv header", err)
	}
	for _, s := range sensors {
		row := []string{
			strconv.FormatInt(s.ID, 10),
			s.Name,
			s.Type,
			optString(s.Location),
			optString(s.Unit),
			optFloat(s.ThresholdMin),
			optFloat(s.ThresholdMax),
			optInt(s.CalibrationDate),
			optString(s.Notes),
			strconv.FormatInt(s.CreatedAt, 10),
			strconv.FormatInt(s.UpdatedAt, 10),
		}
		if err := cw.Write(row); err != nil {
			return errors.NewInternalError("failed to write csv row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.NewInternalError("failed to flush csv", err)
	}
	return nil
}

// ReadReadings parses readings from CSV with a header row. Columns are matched
// by name, case-insensitively; sensor_id is required, timestamp defaults to
// now, and each row must carry a value or a state. Unknown columns are ignored.
func ReadReadings(r io.Reader, now int64) ([]models.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if stderrors.Is(err, io.EOF) {
		return nil, errors.NewValidationError("csv is empty", nil)
	}
	if err != nil {
		return nil, errors.NewValidationError("failed to read csv header", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := cols["sensor_id"]; !ok {
		return nil, errors.NewValidationError("csv header must contain a sensor_id column", nil)
	}

	var readings []models.Reading
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("line %d: malformed csv", line), err)
		}
		if blank(rec) {
			continue
		}
		reading, err := parseReading(rec, cols, now)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("line %d: %v", line, err), err).
				WithDetails(map[string]int{"line": line})
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func parseReading(rec []string, cols map[string]int, now int64) (models.Reading, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var r models.Reading
	sid, err := strconv.ParseInt(field("sensor_id"), 10, 64)
	if err != nil || sid <= 0 {
		return r, fmt.Errorf("invalid sensor_id %q", field("sensor_id"))
	}
	r.SensorID = sid

	r.Timestamp = now
	if ts := field("timestamp"); ts != "" {
		if r.Timestamp, err = parseTimestamp(ts); err != nil {
			return r, err
		}
	}

	if v := field("value"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return r, fmt.Errorf("invalid value %q", v)
		}
		r.Value = &f
	}
	if s := field("state"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return r, fmt.Errorf("invalid state %q", s)
		}
		r.State = &n
	}
	if r.Value == nil && r.State == nil {
		return r, fmt.Errorf("either value or state is required")
	}
	if ct := field("change_type"); ct != "" {
		r.ChangeType = &ct
	}
	return r, nil
}

// parseTimestamp accepts unix seconds, TimeLayout (UTC) or RFC3339
func parseTimestamp(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if t, err := time.ParseInLocation(TimeLayout, s, time.UTC); err == nil {
		return t.Unix(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	return 0, fmt.Errorf("invalid timestamp %q", s)
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
