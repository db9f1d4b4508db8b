package service

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/cache"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database/migrate"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/repository"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/repository/sqlite"
	"github.com/redis/go-redis/v9"
)

type memCache struct {
	mu          sync.Mutex
	entries     map[int64]*models.Reading
	gens        map[int64]int64
	hits        int
	invalidated []int64
}

func newMemCache() *memCache {
	return &memCache{entries: map[int64]*models.Reading{}, gens: map[int64]int64{}}
}

func (c *memCache) Get(_ context.Context, id int64) (*models.Reading, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return r, ok, nil
}

func (c *memCache) Generation(_ context.Context, id int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id], nil
}

func (c *memCache) Set(_ context.Context, r *models.Reading, gen int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[r.SensorID] != gen {
		return false, nil
	}
	c.entries[r.SensorID] = r
	return true, nil
}

func (c *memCache) Invalidate(_ context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
		c.gens[id]++
	}
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

func (c *memCache) Close() error { return nil }

type fixture struct {
	svc     *Service
	cache   *memCache
	metrics *monitoring.Service
}

// stalledReadings pauses the first Latest after its store read until
// release is closed, once stall is set.
type stalledReadings struct {
	repository.ReadingRepository
	stall   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (s *stalledReadings) Latest(ctx context.Context, id int64) (*models.Reading, error) {
	r, err := s.ReadingRepository.Latest(ctx, id)
	if s.stall.CompareAndSwap(true, false) {
		s.read <- struct{}{}
		<-s.release
	}
	return r, err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := newMemCache()
	f := newFixtureWith(t, c, nil)
	f.cache = c
	return f
}

func newFixtureWith(t *testing.T, latest cache.LatestCache, wrap func(repository.ReadingRepository) repository.ReadingRepository) *fixture {
	t.Helper()
	ctx := context.Background()
	pool, err := database.Open(ctx, config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "sensorlog.db"),
		PoolSize:       4,
		AcquireTimeout: 2 * time.Second,
		BusyTimeout:    2 * time.Second,
		Synchronous:    "NORMAL",
	})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := migrate.New(pool).Up(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var readings repository.ReadingRepository = sqlite.NewReadingRepository(pool)
	if wrap != nil {
		readings = wrap(readings)
	}
	m := monitoring.NewService(monitoring.Config{})
	svc := New(Repositories{
		Sensors:     sqlite.NewSensorRepository(pool),
		Readings:    readings,
		Sessions:    sqlite.NewSessionRepository(pool, false),
		Maintenance: sqlite.NewMaintenanceRepository(pool),
	}, latest, m, pool.Size())
	if err := svc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return &fixture{svc: svc, metrics: m}
}

func (f *fixture) sensor(t *testing.T, s models.Sensor) *models.Sensor {
	t.Helper()
	created, err := f.svc.CreateSensor(context.Background(), &s)
	if err != nil {
		t.Fatalf("CreateSensor: %v", err)
	}
	return created
}

func (f *fixture) reading(t *testing.T, sensorID, ts int64, v float64) {
	t.Helper()
	if _, err := f.svc.RecordReading(context.Background(), &models.Reading{SensorID: sensorID, Timestamp: ts, Value: &v}); err != nil {
		t.Fatalf("RecordReading: %v", err)
	}
}

func ptr[T any](v T) *T { return &v }

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestValidateReportsMissingRepository(t *testing.T) {
	if err := New(Repositories{}, nil, nil, 1).Validate(); err == nil {
		t.Fatalf("Validate accepted an empty service")
	}
}

func TestLatestReadingUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.sensor(t, models.Sensor{Name: "hive-temp", Type: models.Temperature})
	f.reading(t, s.ID, 100, 20)
	f.reading(t, s.ID, 200, 21)

	for i := 0; i < 2; i++ {
		r, err := f.svc.LatestReading(ctx, s.ID)
		if err != nil {
			t.Fatalf("LatestReading: %v", err)
		}
		if r.Timestamp != 200 || *r.Value != 21 {
			t.Fatalf("LatestReading = %+v", r)
		}
	}
	if f.cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", f.cache.hits)
	}

	f.reading(t, s.ID, 300, 22)
	r, err := f.svc.LatestReading(ctx, s.ID)
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if r.Timestamp != 300 {
		t.Errorf("stale cached reading returned after insert: %+v", r)
	}
}

func TestLatestReadingNotFound(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, models.Sensor{Name: "empty", Type: models.Humidity})
	if _, err := f.svc.LatestReading(context.Background(), s.ID); !errors.IsNotFound(err) {
		t.Fatalf("LatestReading = %v, want not found", err)
	}
}

func TestDeleteSensorInvalidatesAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.sensor(t, models.Sensor{Name: "doomed", Type: models.Level})
	f.reading(t, s.ID, 10, 1)
	if _, err := f.svc.LatestReading(ctx, s.ID); err != nil {
		t.Fatalf("LatestReading: %v", err)
	}

	if err := f.svc.DeleteSensor(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSensor: %v", err)
	}
	if _, ok, _ := f.cache.Get(ctx, s.ID); ok {
		t.Errorf("cache still holds the deleted sensor's reading")
	}
	if _, err := f.svc.GetSensor(ctx, s.ID); !errors.IsNotFound(err) {
		t.Errorf("GetSensor after delete = %v", err)
	}
	eventually(t, func() bool { return f.metrics.EventCount("sensor.deleted") == 1 })
}

func TestLatestReadingSkipsFillAfterConcurrentWrite(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture, sensorID int64)
		check  func(t *testing.T, r *models.Reading, err error)
	}{
		{
			name: "sensor deleted",
			mutate: func(t *testing.T, f *fixture, sensorID int64) {
				if err := f.svc.DeleteSensor(context.Background(), sensorID); err != nil {
					t.Fatalf("DeleteSensor: %v", err)
				}
			},
			check: func(t *testing.T, r *models.Reading, err error) {
				if !errors.IsNotFound(err) {
					t.Fatalf("LatestReading after delete = %+v, %v, want not found", r, err)
				}
			},
		},
		{
			name: "newer reading",
			mutate: func(t *testing.T, f *fixture, sensorID int64) {
				f.reading(t, sensorID, 20, 2)
			},
			check: func(t *testing.T, r *models.Reading, err error) {
				if err != nil {
					t.Fatalf("LatestReading: %v", err)
				}
				if r.Timestamp != 20 {
					t.Fatalf("LatestReading = %+v, want the reading at 20", r)
				}
			},
		},
	}

	caches := map[string]func(t *testing.T) cache.LatestCache{
		"memory": func(*testing.T) cache.LatestCache { return newMemCache() },
		"redis": func(t *testing.T) cache.LatestCache {
			mr := miniredis.RunT(t)
			c := cache.NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
			t.Cleanup(func() { c.Close() })
			return c
		},
	}

	for cacheName, newCache := range caches {
		for _, tt := range tests {
			t.Run(cacheName+"/"+tt.name, func(t *testing.T) {
				ctx := context.Background()
				stalled := &stalledReadings{read: make(chan struct{}), release: make(chan struct{})}
				f := newFixtureWith(t, newCache(t), func(inner repository.ReadingRepository) repository.ReadingRepository {
					stalled.ReadingRepository = inner
					return stalled
				})
				s := f.sensor(t, models.Sensor{Name: "raced", Type: models.Temperature})
				f.reading(t, s.ID, 10, 1)

				stalled.stall.Store(true)
				done := make(chan error, 1)
				go func() {
					_, err := f.svc.LatestReading(ctx, s.ID)
					done <- err
				}()
				<-stalled.read
				tt.mutate(t, f, s.ID)
				close(stalled.release)
				if err := <-done; err != nil {
					t.Fatalf("stalled LatestReading: %v", err)
				}

				r, err := f.svc.LatestReading(ctx, s.ID)
				tt.check(t, r, err)
			})
		}
	}
}

func TestSensorHealth(t *testing.T) {
	f := newFixture(t)
	ok := f.sensor(t, models.Sensor{Name: "ok", Type: models.Temperature, ThresholdMin: ptr(10.0), ThresholdMax: ptr(30.0)})
	low := f.sensor(t, models.Sensor{Name: "low", Type: models.Temperature, ThresholdMin: ptr(10.0)})
	high := f.sensor(t, models.Sensor{Name: "high", Type: models.Temperature, ThresholdMax: ptr(30.0)})
	f.sensor(t, models.Sensor{Name: "silent", Type: models.Temperature})

	f.reading(t, ok.ID, 1, 20)
	f.reading(t, low.ID, 1, 50)
	f.reading(t, low.ID, 2, 5)
	f.reading(t, high.ID, 1, 31)

	report, err := f.svc.SensorHealth(context.Background())
	if err != nil {
		t.Fatalf("SensorHealth: %v", err)
	}
	if report.Total != 4 || report.Healthy != 1 || report.Warning != 2 || report.NoData != 1 {
		t.Fatalf("report counts = %+v", report)
	}
	want := map[string]string{"ok": models.StatusOK, "low": models.StatusBelowMin, "high": models.StatusAboveMax, "silent": models.StatusNoData}
	for _, st := range report.Sensors {
		if st.Status != want[st.Sensor.Name] {
			t.Errorf("%s status = %s, want %s", st.Sensor.Name, st.Status, want[st.Sensor.Name])
		}
	}
}

func TestAggregateMultiWithMovingAverage(t *testing.T) {
	f := newFixture(t)
	a := f.sensor(t, models.Sensor{Name: "a", Type: models.Temperature, Unit: ptr("C")})
	b := f.sensor(t, models.Sensor{Name: "b", Type: models.Temperature})
	f.reading(t, a.ID, 0, 10)
	f.reading(t, a.ID, 3600, 20)
	f.reading(t, b.ID, 3600, 5)

	data, err := f.svc.AggregateMulti(context.Background(), []int64{a.ID, b.ID}, models.TimeRange{Start: 0, End: 7199}, "1hour", 2)
	if err != nil {
		t.Fatalf("AggregateMulti: %v", err)
	}
	if len(data.Labels) != 2 || len(data.Datasets) != 2 {
		t.Fatalf("labels=%v datasets=%d", data.Labels, len(data.Datasets))
	}
	ma := data.Datasets[0].MovingAverage
	if ma == nil || *ma[1] != 15 {
		t.Errorf("moving average = %v", ma)
	}
	if data.Datasets[1].Data[0] != nil {
		t.Errorf("sensor b should have no value in the first bucket")
	}

	if _, err := f.svc.AggregateMulti(context.Background(), []int64{a.ID}, models.TimeRange{End: 10}, "", -1); !errors.IsValidation(err) {
		t.Errorf("negative window = %v, want validation error", err)
	}
}

func TestAggregateRejectsUnknownInterval(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, models.Sensor{Name: "a", Type: models.Flow})
	if _, err := f.svc.Aggregate(context.Background(), s.ID, models.TimeRange{End: 100}, "fortnight"); !errors.IsValidation(err) {
		t.Fatalf("Aggregate = %v, want validation error", err)
	}
}

func TestImportExportReadingsCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.now = func() time.Time { return time.Unix(5000, 0) }
	s := f.sensor(t, models.Sensor{Name: "flow", Type: models.Flow})

	in := "sensor_id,timestamp,value\n" +
		strconv.FormatInt(s.ID, 10) + ",100,1.5\n" +
		strconv.FormatInt(s.ID, 10) + ",,2.5\n"
	n, err := f.svc.ImportReadingsCSV(ctx, strings.NewReader(in))
	if err != nil {
		t.Fatalf("ImportReadingsCSV: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported %d, want 2", n)
	}
	if f.metrics.EventCount(EventReadingsImported) != 1 {
		t.Errorf("import event not recorded")
	}

	var buf bytes.Buffer
	if err := f.svc.ExportReadingsCSV(ctx, &buf, s.ID, models.TimeRange{Start: 0, End: 10000}); err != nil {
		t.Fatalf("ExportReadingsCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("export lines = %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[2], ",5000,1970-01-01 01:23:20,"+strconv.FormatInt(s.ID, 10)+",2.5,,") {
		t.Errorf("defaulted timestamp row = %q", lines[2])
	}
}

func TestImportReadingsCSVIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.sensor(t, models.Sensor{Name: "flow", Type: models.Flow})

	in := "sensor_id,timestamp,value\n" + strconv.FormatInt(s.ID, 10) + ",1,1\n999,2,2\n"
	if _, err := f.svc.ImportReadingsCSV(ctx, strings.NewReader(in)); !errors.IsValidation(err) {
		t.Fatalf("ImportReadingsCSV = %v, want validation error for unknown sensor", err)
	}
	got, err := f.svc.ReadingsInRange(ctx, s.ID, models.TimeRange{Start: 0, End: 10})
	if err != nil {
		t.Fatalf("ReadingsInRange: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("partial import stored %d readings", len(got))
	}

	if _, err := f.svc.ImportReadingsCSV(ctx, strings.NewReader("sensor_id,value\n")); !errors.IsValidation(err) {
		t.Errorf("empty import = %v, want validation error", err)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.sensor(t, models.Sensor{Name: "door", Type: models.Digital})

	sess, err := f.svc.StartSession(ctx, models.SessionStart{SensorID: s.ID, SampleRate: ptr(int64(60))})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !sess.Active() {
		t.Fatalf("new session is not active: %+v", sess)
	}
	if _, err := f.svc.StartSession(ctx, models.SessionStart{SensorID: s.ID}); !errors.IsConflict(err) {
		t.Fatalf("second StartSession = %v, want conflict", err)
	}

	active, err := f.svc.AllActiveSessions(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("AllActiveSessions = %v, %v", active, err)
	}

	stopped, err := f.svc.StopSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if stopped.Active() {
		t.Fatalf("stopped session still active")
	}
	if _, err := f.svc.StopSession(ctx, sess.ID); !errors.IsConflict(err) {
		t.Errorf("second StopSession = %v, want conflict", err)
	}
	if _, err := f.svc.StopSensorSessions(ctx, s.ID); !errors.IsNotFound(err) {
		t.Errorf("StopSensorSessions without active = %v, want not found", err)
	}
	if f.metrics.EventCount(EventSessionStarted) != 1 || f.metrics.EventCount(EventSessionStopped) != 1 {
		t.Errorf("session events not recorded")
	}
}

func TestRunMaintenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.sensor(t, models.Sensor{Name: "a", Type: models.Power})
	f.reading(t, s.ID, 1, 1)

	results, err := f.svc.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}
	if len(results) != len(DefaultMaintenanceTasks) {
		t.Fatalf("results = %d", len(results))
	}
	for i, r := range results {
		if r.Task != DefaultMaintenanceTasks[i] || !r.Success {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if results[1].Checkpoint == nil || results[2].Integrity == nil || !results[2].Integrity.OK {
		t.Errorf("task payloads missing: %+v", results)
	}

	vac, err := f.svc.RunMaintenance(ctx, models.TaskVacuum)
	if err != nil || len(vac) != 1 || !vac[0].Success {
		t.Fatalf("vacuum = %+v, %v", vac, err)
	}

	if _, err := f.svc.RunMaintenance(ctx, models.TaskAnalyze, "defrag"); !errors.IsValidation(err) {
		t.Fatalf("unknown task = %v, want validation error", err)
	}
}

func TestDatabaseHealth(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, models.Sensor{Name: "a", Type: models.Power})
	f.reading(t, s.ID, 1000, 1)
	f.reading(t, s.ID, 2000, 2)

	h, err := f.svc.DatabaseHealth(context.Background())
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if h.ReadingsCount != 2 || h.SensorsCount != 1 {
		t.Errorf("health = %+v", h)
	}
}

func TestExportSensorsCSV(t *testing.T) {
	f := newFixture(t)
	f.sensor(t, models.Sensor{Name: "a", Type: models.Power})
	f.sensor(t, models.Sensor{Name: "b", Type: models.Flow})

	var buf bytes.Buffer
	if err := f.svc.ExportSensorsCSV(context.Background(), &buf); err != nil {
		t.Fatalf("ExportSensorsCSV: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Errorf("sensor csv has %d lines, want 3", n)
	}
}
