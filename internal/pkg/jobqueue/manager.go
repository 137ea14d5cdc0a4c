package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/payment"
)

const (
	defaultSweepSchedule = "0 */5 * * * *"
	defaultSweepBatch    = 200
	defaultLeaseTTL      = 4 * time.Minute
	sweepLeaseKey        = "coursefox:lease:reconcile-sweep"
)

// Sweeper repairs completed payments that never got their enrollment.
type Sweeper interface {
	RepairCompletedWithoutEnrollment(ctx context.Context, limit int) (*payment.SweepReport, error)
}

// LeaseFunc takes a cluster-wide lease. It returns cache.ErrLeaseHeld when
// another instance holds it.
type LeaseFunc func(ctx context.Context, key string, ttl time.Duration) (release func(), err error)

// RedisLease backs LeaseFunc with a Redis SETNX lease.
func RedisLease(rdb *redis.Client) LeaseFunc {
	return func(ctx context.Context, key string, ttl time.Duration) (func(), error) {
		lease, err := cache.AcquireLease(ctx, rdb, key, uuid.NewString(), ttl)
		if err != nil {
			return nil, err
		}
		return func() {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lease.Release(rctx); err != nil {
				log.Warnf("[JobQueue Manager] lease release failed: %v", err)
			}
		}, nil
	}
}

type Config struct {
	// Schedule is a six-field cron expression (seconds first) or a descriptor.
	Schedule  string
	BatchSize int
	LeaseTTL  time.Duration
	// RunOnStart triggers one sweep right after Start.
	RunOnStart bool
}

func ConfigFromEnv() Config {
	return Config{
		Schedule:   env.GetEnv("RECONCILE_SWEEP_SCHEDULE", defaultSweepSchedule),
		BatchSize:  env.GetInt("RECONCILE_SWEEP_BATCH", defaultSweepBatch),
		LeaseTTL:   env.GetDuration("RECONCILE_SWEEP_LEASE_TTL", defaultLeaseTTL),
		RunOnStart: true,
	}
}

// Manager schedules the reconciliation sweep.
type Manager struct {
	cron    *cron.Cron
	sweeper Sweeper
	lease   LeaseFunc
	cfg     Config

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a manager. A nil lease runs every sweep unguarded.
func NewManager(sweeper Sweeper, lease LeaseFunc, cfg Config) *Manager {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSweepSchedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	return &Manager{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		sweeper: sweeper,
		lease:   lease,
		cfg:     cfg,
	}
}

// Start registers the sweep and starts the scheduler.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	id, err := m.cron.AddFunc(m.cfg.Schedule, m.runScheduled)
	if err != nil {
		m.cancel()
		return err
	}
	m.entryID = id

	log.Infof("[JobQueue Manager] Starting reconciliation sweep (%s)", m.cfg.Schedule)
	m.cron.Start()
	m.running = true

	if m.cfg.RunOnStart {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runScheduled()
		}()
	}
	return nil
}

// Stop cancels an in-flight sweep and waits for running jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cron.Remove(m.entryID)
	m.mu.Unlock()

	log.Info("[JobQueue Manager] Stopping reconciliation sweep...")
	cancel()
	<-m.cron.Stop().Done()
	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) runScheduled() {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := m.RunSweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("[JobQueue Manager] reconciliation sweep failed: %v", err)
	}
}

// RunSweep runs one pass under the lease. It returns a nil report without
// error when another instance holds the lease.
func (m *Manager) RunSweep(ctx context.Context) (*payment.SweepReport, error) {
	if m.lease != nil {
		release, err := m.lease(ctx, sweepLeaseKey, m.cfg.LeaseTTL)
		if errors.Is(err, cache.ErrLeaseHeld) {
			log.Debug("[JobQueue Manager] sweep lease held elsewhere, skipping")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer release()
	}

	report, err := m.sweeper.RepairCompletedWithoutEnrollment(ctx, m.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	if report.Scanned > 0 {
		log.Infof("[JobQueue Manager] sweep scanned=%d repaired=%d failed=%d took=%s",
			report.Scanned, report.Repaired, report.Failed, report.Took)
	}
	return report, nil
}
