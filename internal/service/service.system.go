package service

import (
	"context"
	"fmt"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

// DefaultMaintenanceTasks run when no task is named. Vacuum rewrites the
// whole file and only runs on request.
var DefaultMaintenanceTasks = []string{models.TaskAnalyze, models.TaskCheckpoint, models.TaskIntegrity}

func (s *Service) DatabaseHealth(ctx context.Context) (*models.DatabaseHealth, error) {
	return s.maintenance.Health(ctx)
}

func (s *Service) IntegrityCheck(ctx context.Context) *models.IntegrityReport {
	return s.maintenance.IntegrityCheck(ctx)
}

// RunMaintenance runs the named tasks in order. A failing task is reported in
// its result and does not stop the tasks after it; only unknown task names
// fail the call.
func (s *Service) RunMaintenance(ctx context.Context, tasks ...string) ([]models.MaintenanceResult, error) {
	if len(tasks) == 0 {
		tasks = DefaultMaintenanceTasks
	}
	for _, t := range tasks {
		switch t {
		case models.TaskAnalyze, models.TaskCheckpoint, models.TaskVacuum, models.TaskIntegrity:
		default:
			return nil, errors.NewValidationError(fmt.Sprintf("unknown maintenance task %q", t), nil)
		}
	}

	results := make([]models.MaintenanceResult, 0, len(tasks))
	for _, t := range tasks {
		res := models.MaintenanceResult{Task: t}
		start := time.Now()
		var err error
		switch t {
		case models.TaskAnalyze:
			err = s.maintenance.RefreshStatistics(ctx)
		case models.TaskCheckpoint:
			res.Checkpoint, err = s.maintenance.Checkpoint(ctx)
		case models.TaskVacuum:
			err = s.maintenance.Vacuum(ctx)
		case models.TaskIntegrity:
			res.Integrity = s.maintenance.IntegrityCheck(ctx)
			if !res.Integrity.OK {
				err = fmt.Errorf("integrity check reported %d problems", len(res.Integrity.Messages))
			}
		}
		res.DurationMS = time.Since(start).Milliseconds()
		res.Success = err == nil
		if err != nil {
			res.Error = err.Error()
			nuts.L.Warnf("[Service] Maintenance task %s failed: %v", t, err)
		} else {
			nuts.L.Infof("[Service] Maintenance task %s completed in %dms", t, res.DurationMS)
		}
		s.record(EventMaintenanceRun, map[string]string{"task": t, "success": fmt.Sprint(res.Success)})
		results = append(results, res)
	}
	return results, nil
}
