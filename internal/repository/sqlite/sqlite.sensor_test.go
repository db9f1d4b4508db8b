package sqlite

import (
	"context"
	"fmt"
	"testing"

	nuts "github.com/vaudience/go-nuts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

func TestSensorCreateAndGet(t *testing.T) {
	pool := newTestPool(t)
	repo := NewSensorRepository(pool)
	repo.now = fixedClock(1_700_000_000)
	ctx := context.Background()

	in := &models.Sensor{
		Name:         "supply line",
		Type:         models.Temperature,
		Location:     ptr("boiler room"),
		Unit:         ptr("°C"),
		ThresholdMin: ptr(5.0),
		ThresholdMax: ptr(80.0),
	}
	id, err := repo.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id <= 0 || in.ID != id {
		t.Fatalf("Create returned id %d, sensor.ID %d", id, in.ID)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "supply line" || got.Type != models.Temperature {
		t.Errorf("got %+v", got)
	}
	if got.Location == nil || *got.Location != "boiler room" {
		t.Errorf("Location = %v", got.Location)
	}
	if got.Notes != nil || got.CalibrationDate != nil {
		t.Errorf("unset optional fields should be nil: %+v", got)
	}
	if got.CreatedAt != 1_700_000_000 || got.UpdatedAt != got.CreatedAt {
		t.Errorf("timestamps = %d/%d", got.CreatedAt, got.UpdatedAt)
	}
}

func TestSensorCreateValidation(t *testing.T) {
	repo := NewSensorRepository(newTestPool(t))
	tests := []struct {
		name   string
		sensor models.Sensor
	}{
		{"empty name", models.Sensor{Type: models.Humidity}},
		{"empty type", models.Sensor{Name: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Create(context.Background(), &tt.sensor); !errors.IsValidation(err) {
				t.Fatalf("Create = %v, want validation error", err)
			}
		})
	}
}

func TestSensorGetMissing(t *testing.T) {
	repo := NewSensorRepository(newTestPool(t))
	if _, err := repo.Get(context.Background(), 404); !errors.IsNotFound(err) {
		t.Fatalf("Get = %v, want not found", err)
	}
}

func TestSensorGetAllFilters(t *testing.T) {
	repo := NewSensorRepository(newTestPool(t))
	ctx := context.Background()
	fixtures := []models.Sensor{
		{Name: "c", Type: models.Temperature, Location: ptr("kitchen")},
		{Name: "a", Type: models.Humidity, Location: ptr("kitchen")},
		{Name: "b", Type: models.Temperature, Location: ptr("cellar")},
		{Name: "d", Type: models.Temperature},
	}
	for i := range fixtures {
		if _, err := repo.Create(ctx, &fixtures[i]); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tests := []struct {
		name    string
		filters models.SensorFilters
		want    []string
	}{
		{"all in insertion order", models.SensorFilters{}, []string{"c", "a", "b", "d"}},
		{"by type", models.SensorFilters{Type: models.Temperature}, []string{"c", "b", "d"}},
		{"by location", models.SensorFilters{Location: "kitchen"}, []string{"c", "a"}},
		{"conjunctive", models.SensorFilters{Type: models.Temperature, Location: "kitchen"}, []string{"c"}},
		{"no match", models.SensorFilters{Type: models.Pressure}, []string{}},
		{"sorted by name", models.SensorFilters{Sort: "name"}, []string{"a", "b", "c", "d"}},
		{"sorted by name desc", models.SensorFilters{Sort: "-name"}, []string{"d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetAll(ctx, tt.filters)
			if err != nil {
				t.Fatalf("GetAll: %v", err)
			}
			names := make([]string, 0, len(got))
			for _, s := range got {
				names = append(names, s.Name)
			}
			if len(names) != len(tt.want) {
				t.Fatalf("names = %v, want %v", names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Fatalf("names = %v, want %v", names, tt.want)
				}
			}
		})
	}

	if _, err := repo.GetAll(ctx, models.SensorFilters{Sort: "notes; DROP TABLE sensors"}); !errors.IsValidation(err) {
		t.Fatalf("GetAll with bad sort = %v, want validation error", err)
	}
}

func TestSensorUpdateOverwritesAndAdvancesUpdatedAt(t *testing.T) {
	repo := NewSensorRepository(newTestPool(t))
	repo.now = fixedClock(1000)
	ctx := context.Background()

	id, err := repo.Create(ctx, &models.Sensor{Name: "old", Type: "flow", Notes: ptr("to be cleared"), Unit: ptr("l/min")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// same second as the create
	if err := repo.Update(ctx, id, &models.Sensor{Name: "new", Type: "flow"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "new" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Notes != nil || got.Unit != nil {
		t.Errorf("update should overwrite omitted fields with null, got notes=%v unit=%v", got.Notes, got.Unit)
	}
	if got.CreatedAt != 1000 {
		t.Errorf("CreatedAt changed to %d", got.CreatedAt)
	}
	if got.UpdatedAt <= 1000 {
		t.Errorf("UpdatedAt = %d, want > 1000", got.UpdatedAt)
	}

	prev := got.UpdatedAt
	if err := repo.Update(ctx, id, &models.Sensor{Name: "newer", Type: "flow"}); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	got, _ = repo.Get(ctx, id)
	if got.UpdatedAt <= prev {
		t.Errorf("UpdatedAt = %d, want > %d", got.UpdatedAt, prev)
	}

	repo.now = fixedClock(5000)
	if err := repo.Update(ctx, id, &models.Sensor{Name: "later", Type: "flow"}); err != nil {
		t.Fatalf("third Update: %v", err)
	}
	got, _ = repo.Get(ctx, id)
	if got.UpdatedAt != 5000 {
		t.Errorf("UpdatedAt = %d, want 5000", got.UpdatedAt)
	}
}

func TestSensorUpdateErrors(t *testing.T) {
	repo := NewSensorRepository(newTestPool(t))
	ctx := context.Background()
	if err := repo.Update(ctx, 77, &models.Sensor{Name: "x", Type: "y"}); !errors.IsNotFound(err) {
		t.Errorf("Update missing = %v, want not found", err)
	}
	id := mustCreateSensor(t, repo, "x", "y")
	if err := repo.Update(ctx, id, &models.Sensor{Name: "", Type: "y"}); !errors.IsValidation(err) {
		t.Errorf("Update empty name = %v, want validation error", err)
	}
}

func TestSensorDeleteCascades(t *testing.T) {
	pool := newTestPool(t)
	sensors := NewSensorRepository(pool)
	readings := NewReadingRepository(pool)
	sessions := NewSessionRepository(pool, false)
	ctx := context.Background()

	doomed := mustCreateSensor(t, sensors, "doomed", "temperature")
	kept := mustCreateSensor(t, sensors, "kept", "temperature")

	for _, id := range []int64{doomed, kept} {
		if _, err := readings.BulkInsert(ctx, []models.Reading{
			{Timestamp: 10, SensorID: id, Value: ptr(1.0)},
			{Timestamp: 20, SensorID: id, Value: ptr(2.0)},
		}); err != nil {
			t.Fatalf("BulkInsert: %v", err)
		}
		if _, err := sessions.Start(ctx, models.SessionStart{SensorID: id}); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	if err := sensors.Delete(ctx, doomed); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := sensors.Get(ctx, doomed); !errors.IsNotFound(err) {
		t.Errorf("Get deleted = %v, want not found", err)
	}
	if rs, err := readings.Range(ctx, doomed, 0, 100); err != nil || len(rs) != 0 {
		t.Errorf("readings of deleted sensor = %d (err %v), want 0", len(rs), err)
	}
	if ss, err := sessions.ListBySensor(ctx, doomed); err != nil || len(ss) != 0 {
		t.Errorf("sessions of deleted sensor = %d (err %v), want 0", len(ss), err)
	}

	if rs, _ := readings.Range(ctx, kept, 0, 100); len(rs) != 2 {
		t.Errorf("readings of kept sensor = %d, want 2", len(rs))
	}
	if ss, _ := sessions.ActiveFor(ctx, kept); len(ss) != 1 {
		t.Errorf("active sessions of kept sensor = %d, want 1", len(ss))
	}

	if err := sensors.Delete(ctx, doomed); !errors.IsNotFound(err) {
		t.Errorf("second Delete = %v, want not found", err)
	}
}

func TestSensorDeleteLogsClosedSessions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := nuts.L
	nuts.L = zap.New(core).Sugar()
	t.Cleanup(func() { nuts.L = prev })

	pool := newTestPool(t)
	sensors := NewSensorRepository(pool)
	readings := NewReadingRepository(pool)
	sessions := NewSessionRepository(pool, false)
	ctx := context.Background()

	id := mustCreateSensor(t, sensors, "logged", "temperature")
	if _, err := readings.BulkInsert(ctx, []models.Reading{{Timestamp: 10, SensorID: id, Value: ptr(1.0)}}); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if _, err := sessions.Start(ctx, models.SessionStart{SensorID: id}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sensors.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := fmt.Sprintf("[SensorRepo] Deleted sensor %d (closed 1 active sessions)", id)
	if n := logs.FilterMessage(want).Len(); n != 1 {
		t.Fatalf("delete log entries matching %q = %d, got %v", want, n, logs.All())
	}
}
