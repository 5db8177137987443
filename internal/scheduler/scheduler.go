package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptostats-backend/internal/logging"
)

const defaultRunTimeout = 90 * time.Second

// Job is one unit of scheduled work.
type Job interface {
	Run(ctx context.Context) error
}

type Config struct {
	// Schedule is a standard five-field cron expression, e.g. "0 */2 * * *".
	Schedule   string
	RunTimeout time.Duration
	RunOnStart bool
}

// Scheduler runs a Job on a cron schedule between Start and Stop. Runs are
// not serialized: FetchNow may overlap a scheduled run.
type Scheduler struct {
	job      Job
	cfg      Config
	schedule cron.Schedule

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	startup sync.WaitGroup
}

func NewScheduler(job Job, cfg Config) (*Scheduler, error) {
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Scheduler{job: job, cfg: cfg, schedule: sched}, nil
}

func (s *Scheduler) Start() {
	log := logging.For("scheduler")

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn("already running")
		return
	}
	s.running = true
	s.cron = cron.New()
	id := s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce("scheduled") }))
	s.cron.Start()
	next := s.cron.Entry(id).Next
	if s.cfg.RunOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.runOnce("startup")
		}()
	}
	s.mu.Unlock()

	log.WithField("schedule", s.cfg.Schedule).Infof("started, next run at %s", next.Format(time.RFC3339))
}

// Stop halts the schedule and waits for in-flight scheduled and startup runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	s.startup.Wait()
	logging.For("scheduler").Info("stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FetchNow manually triggers a run outside the normal schedule and returns
// its error.
func (s *Scheduler) FetchNow(ctx context.Context) error {
	logging.For("scheduler").Info("manual run triggered")
	return s.job.Run(ctx)
}

func (s *Scheduler) runOnce(trigger string) {
	log := logging.For("scheduler").WithFields(logrus.Fields{
		"run":     uuid.NewString(),
		"trigger": trigger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	log.Info("fetching cryptocurrency data")
	if err := s.job.Run(ctx); err != nil {
		log.WithError(err).Error("run failed")
		return
	}
	log.WithField("took", time.Since(start).Round(time.Millisecond)).Info("run complete")
}
