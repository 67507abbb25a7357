// Package scheduler runs time triggers on their cron schedules and resumes wait nodes whose time
// has come.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/events"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepInterval = 15 * time.Second
	DefaultSyncInterval  = time.Minute
)

// Runner executes scheduled work against conversations.
type Runner interface {
	RunTimeTrigger(ctx context.Context, scenarioID, triggerID string) (int, error)
	ResumeExpiredWaits(ctx context.Context) (int, error)
}

type job struct {
	spec  string
	entry cron.EntryID
}

type Scheduler struct {
	logger    *slog.Logger
	scenarios persistence.ScenarioRepository
	runner    Runner
	parser    cron.Parser
	location  *time.Location
	sweep     time.Duration
	sync      time.Duration

	cron   *cron.Cron
	jobs   map[string]job
	mutex  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Scheduler)

func WithSweepInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.sweep = interval
	}
}

// WithSyncInterval sets how often published time triggers are re-read.
func WithSyncInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.sync = interval
	}
}

// WithLocation sets the time zone cron expressions are evaluated in. The default is UTC.
func WithLocation(location *time.Location) Option {
	return func(s *Scheduler) {
		s.location = location
	}
}

func New(logger *slog.Logger, scenarios persistence.ScenarioRepository, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:    logger.With("module", "scheduler"),
		scenarios: scenarios,
		runner:    runner,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		location:  time.UTC,
		sweep:     DefaultSweepInterval,
		sync:      DefaultSyncInterval,
		jobs:      make(map[string]job),
		ctx:       context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.location),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		),
	)

	return s
}

// Start loads the published time triggers and starts the cron loop. Jobs run until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler", "sweep_interval", s.sweep, "sync_interval", s.sync)

	s.ctx, s.cancel = context.WithCancel(ctx)

	err := s.Sync(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to load time triggers: %w", err)
	}

	s.cron.Schedule(cron.Every(s.sweep), cron.FuncJob(s.resumeWaits))
	s.cron.Schedule(cron.Every(s.sync), cron.FuncJob(func() {
		err := s.Sync(s.ctx)
		if err != nil {
			s.logger.ErrorContext(s.ctx, "Failed to sync time triggers", "error", err)
		}
	}))

	s.cron.Start()

	s.logger.InfoContext(ctx, "Scheduler started", "jobs", len(s.Jobs()))

	return nil
}

// Register re-syncs as soon as a scenario is published instead of waiting for the next sync tick.
// The caller subscribes the bus once every handler is registered.
func (s *Scheduler) Register(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.ScenarioPublishedEvent, s.handleScenarioPublished)
}

func (s *Scheduler) handleScenarioPublished(ctx context.Context, event any) error {
	published, ok := event.(*events.ScenarioPublished)
	if !ok {
		s.logger.ErrorContext(ctx, "Invalid event type for ScenarioPublished")

		return nil
	}

	s.logger.InfoContext(ctx, "Scenario published, syncing time triggers",
		"scenario_id", published.ScenarioID,
		"version", published.Version)

	return s.Sync(ctx)
}

// Sync registers a cron job for every active time trigger of an active published scenario and removes
// the jobs of triggers that are gone or changed.
func (s *Scheduler) Sync(ctx context.Context) error {
	scenarios, err := s.scenarios.PublishedForPage(ctx, "")
	if err != nil {
		return err
	}

	wanted := make(map[string]string)

	for _, scenario := range scenarios {
		for _, trigger := range scenario.Triggers {
			if trigger.Type != models.TriggerTypeTime || !trigger.IsActive {
				continue
			}

			wanted[jobKey(scenario.ID, trigger.ID)] = strings.TrimSpace(trigger.Value)
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key, existing := range s.jobs {
		if spec, ok := wanted[key]; ok && spec == existing.spec {
			continue
		}

		s.cron.Remove(existing.entry)
		delete(s.jobs, key)

		s.logger.InfoContext(ctx, "Removed time trigger job", "job", key)
	}

	for key, spec := range wanted {
		if _, ok := s.jobs[key]; ok {
			continue
		}

		schedule, err := s.parser.Parse(spec)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping time trigger with invalid cron expression", "job", key, "cron", spec, "error", err)

			continue
		}

		scenarioID, triggerID, _ := strings.Cut(key, "/")

		entry := s.cron.Schedule(schedule, cron.FuncJob(func() {
			s.runTrigger(scenarioID, triggerID)
		}))

		s.jobs[key] = job{spec: spec, entry: entry}

		s.logger.InfoContext(ctx, "Added time trigger job", "job", key, "cron", spec, "entry_id", entry)
	}

	return nil
}

// Jobs returns the registered time trigger jobs as scenario/trigger to cron expression.
func (s *Scheduler) Jobs() map[string]string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make(map[string]string, len(s.jobs))
	for key, registered := range s.jobs {
		out[key] = registered.spec
	}

	return out
}

func (s *Scheduler) runTrigger(scenarioID, triggerID string) {
	logger := s.logger.With("scenario_id", scenarioID, "trigger_id", triggerID)

	started, err := s.runner.RunTimeTrigger(s.ctx, scenarioID, triggerID)
	if err != nil {
		logger.ErrorContext(s.ctx, "Time trigger failed", "started", started, "error", err)

		return
	}

	logger.DebugContext(s.ctx, "Time trigger ran", "started", started)
}

func (s *Scheduler) resumeWaits() {
	resumed, err := s.runner.ResumeExpiredWaits(s.ctx)
	if err != nil {
		s.logger.ErrorContext(s.ctx, "Failed to resume waiting conversations", "resumed", resumed, "error", err)

		return
	}

	if resumed > 0 {
		s.logger.InfoContext(s.ctx, "Resumed waiting conversations", "resumed", resumed)
	}
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	done := s.cron.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.mutex.Lock()
	s.jobs = make(map[string]job)
	s.mutex.Unlock()

	return nil
}

func jobKey(scenarioID, triggerID string) string {
	return scenarioID + "/" + triggerID
}
