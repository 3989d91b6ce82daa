package jobs

import (
	"context"
	"fmt"
	"time"

	"equipment-scheduler/internal/config"
	"equipment-scheduler/internal/logger"
	"equipment-scheduler/internal/service"
)

// jobTimeout bounds a single sweep so a stuck store cannot pile up runs.
const jobTimeout = 10 * time.Minute

// Job names accepted by Run.
const (
	JobSweepOverdueLoans      = "sweep-overdue-loans"
	JobSweepReturnReminders   = "sweep-return-reminders"
	JobSweepMaintenanceAlerts = "sweep-maintenance-alerts"
	JobAll                    = "all"
)

// JobRunner coordinates the periodic sweeps
type JobRunner struct {
	scheduler service.SchedulerService
	config    *config.Config
}

// NewJobRunner creates a new job runner over the scheduler facade
func NewJobRunner(scheduler service.SchedulerService, cfg *config.Config) *JobRunner {
	return &JobRunner{
		scheduler: scheduler,
		config:    cfg,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("Starting job", "job", jobName)
	jobFunc(ctx)
	logger.Info("Job completed", "job", jobName, "duration_ms", time.Since(start).Milliseconds())
}

// SweepOverdueLoans emits an overdue event for every loan past its expected return
func (jr *JobRunner) SweepOverdueLoans() {
	jr.runWithRecovery("SweepOverdueLoans", func(ctx context.Context) {
		loans, err := jr.scheduler.SweepOverdueLoans(ctx)
		if err != nil {
			logger.Error("Failed to sweep overdue loans", "error", err)
			return
		}
		logger.Info("Swept overdue loans", "count", len(loans))
	})
}

// SweepReturnReminders sends the one-time due-soon reminder for open loans
func (jr *JobRunner) SweepReturnReminders() {
	jr.runWithRecovery("SweepReturnReminders", func(ctx context.Context) {
		reminded, err := jr.scheduler.SweepReturnReminders(ctx)
		if err != nil {
			logger.Error("Return reminder sweep had failures", "error", err, "reminded", len(reminded))
			return
		}
		logger.Info("Swept return reminders", "reminded", len(reminded))
	})
}

// SweepMaintenanceAlerts raises the one-time alert for equipment nearing maintenance
func (jr *JobRunner) SweepMaintenanceAlerts() {
	jr.runWithRecovery("SweepMaintenanceAlerts", func(ctx context.Context) {
		alerted, err := jr.scheduler.SweepMaintenanceAlerts(ctx)
		if err != nil {
			// Partial failures still alert the rest.
			logger.Error("Maintenance alert sweep had failures", "error", err, "alerted", len(alerted))
			return
		}
		logger.Info("Swept maintenance alerts", "alerted", len(alerted))
	})
}

// RunAll runs every sweep once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.SweepOverdueLoans()
	jr.SweepReturnReminders()
	jr.SweepMaintenanceAlerts()
}

// Run executes a job by its command-line name.
func (jr *JobRunner) Run(name string) error {
	switch name {
	case JobSweepOverdueLoans:
		jr.SweepOverdueLoans()
	case JobSweepReturnReminders:
		jr.SweepReturnReminders()
	case JobSweepMaintenanceAlerts:
		jr.SweepMaintenanceAlerts()
	case JobAll:
		jr.RunAll()
	default:
		return fmt.Errorf("unknown job %q (available: %s, %s, %s, %s)", name,
			JobSweepOverdueLoans, JobSweepReturnReminders, JobSweepMaintenanceAlerts, JobAll)
	}
	return nil
}
