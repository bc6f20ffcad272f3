package background

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"stockroom/internal/config"
	"stockroom/internal/jobs"
	"stockroom/internal/metrics"
	"stockroom/internal/models"
	"stockroom/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const (
	JobSummaryReconcile = "summary-reconcile"
	JobOverdueLoans     = "overdue-loans"
	JobLowStockAlerts   = "low-stock-alerts"

	schedulerActor = "scheduler"
)

// JobScheduler runs the periodic maintenance jobs
type JobScheduler struct {
	scheduler    gocron.Scheduler
	availability services.AvailabilityService
	tags         services.TagService
	alerts       *jobs.InventoryAlertService
	audit        services.AuditRecorder
	metrics      *metrics.Metrics
	cfg          config.JobsConfig
	now          func() time.Time

	jobJobs map[string]gocron.Job
	// overdue loans already reported by this process
	reported map[uuid.UUID]bool
	mu       sync.RWMutex
}

// NewJobScheduler creates a scheduler with every job registered. audit and m may be nil.
func NewJobScheduler(cfg config.JobsConfig, availability services.AvailabilityService, tags services.TagService,
	alerts *jobs.InventoryAlertService, audit services.AuditRecorder, m *metrics.Metrics) (*JobScheduler, error) {

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler:    scheduler,
		availability: availability,
		tags:         tags,
		alerts:       alerts,
		audit:        audit,
		metrics:      m,
		cfg:          cfg,
		now:          time.Now,
		jobJobs:      make(map[string]gocron.Job),
		reported:     make(map[uuid.UUID]bool),
	}

	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}

	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	defs := []struct {
		name     string
		interval time.Duration
		task     func(context.Context) error
	}{
		{JobSummaryReconcile, js.cfg.ReconcileInterval, js.ReconcileSummaries},
		{JobOverdueLoans, js.cfg.OverdueInterval, js.ReportOverdueLoans},
		{JobLowStockAlerts, js.cfg.LowStockInterval, js.CheckLowStock},
	}

	for _, def := range defs {
		job, err := js.scheduler.NewJob(
			gocron.DurationJob(def.interval),
			gocron.NewTask(js.run, def.name, def.task),
			gocron.WithName(def.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s job: %w", def.name, err)
		}
		js.jobJobs[def.name] = job
	}

	log.Printf("Registered %d background jobs", len(js.jobJobs))
	return nil
}

// run executes one job with its own context and records the outcome
func (js *JobScheduler) run(name string, task func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	err := task(ctx)
	if err != nil {
		log.Printf("Job %s failed: %v", name, err)
	}
	js.metrics.JobRun(name, err)
}

// ReconcileSummaries rebuilds every cached inventory summary from instance state
func (js *JobScheduler) ReconcileSummaries(ctx context.Context) error {
	n, err := js.availability.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	log.Printf("Reconciled %d inventory summaries", n)
	return nil
}

// ReportOverdueLoans records one warning audit event per overdue loan
func (js *JobScheduler) ReportOverdueLoans(ctx context.Context) error {
	asOf := js.now().UTC()
	loans, err := js.tags.ListOverdueLoans(ctx, asOf)
	if err != nil {
		return fmt.Errorf("failed to list overdue loans: %w", err)
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	reported := 0
	for _, loan := range loans {
		if js.reported[loan.ID] {
			continue
		}
		log.Printf("ALERT: loan %s to %s was due %s with %d units outstanding",
			loan.ID, loan.Counterparty, loan.DueDate.Format(time.RFC3339), loan.TotalRemaining())

		if js.audit != nil {
			event := models.AuditEvent{
				EventType:   models.EventLoanOverdue,
				EntityType:  models.EntityTag,
				EntityID:    loan.ID,
				Actor:       schedulerActor,
				Description: fmt.Sprintf("Loan to %s is overdue", loan.Counterparty),
				Severity:    models.SeverityWarning,
				Metadata: models.JSONB{
					"due_date":  loan.DueDate.Format(time.RFC3339),
					"remaining": loan.TotalRemaining(),
				},
			}
			if err := js.audit.Record(ctx, event); err != nil {
				log.Printf("Failed to record overdue loan %s: %v", loan.ID, err)
				continue
			}
		}
		js.reported[loan.ID] = true
		reported++
	}

	log.Printf("Overdue loan check found %d loans, %d newly reported", len(loans), reported)
	return nil
}

func (js *JobScheduler) CheckLowStock(ctx context.Context) error {
	_, err := js.alerts.ScheduledLowStockCheck(ctx, js.cfg.LowStockThreshold)
	return err
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobNames := make([]string, 0, len(js.jobJobs))
	for name := range js.jobJobs {
		jobNames = append(jobNames, name)
	}

	return map[string]interface{}{
		"total_jobs": len(js.jobJobs),
		"jobs":       jobNames,
	}
}
