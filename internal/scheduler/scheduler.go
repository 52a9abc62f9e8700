// Package scheduler provides cron-based recurring task scheduling for
// zapengine, used for periodic maintenance work that does not belong on
// the overseer's sub-5-second polling tickers (e.g. database backups,
// stale segment-directory cleanup).
package scheduler

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// NormalizeCronExpression normalizes a cron expression to 6-field format.
// It accepts both 6-field (default) and 7-field (legacy with year) formats.
//
// Supported formats:
//   - 6 fields: sec min hour dom month dow (passed through as-is)
//   - 7 fields: sec min hour dom month dow year (year stripped after validation)
//
// The year field (if present) must be "*" or a valid year/range (e.g., "2024", "2024-2030", "*").
func NormalizeCronExpression(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty cron expression")
	}

	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 6:
		return expr, nil
	case 7:
		yearField := fields[6]
		if !isValidYearField(yearField) {
			return "", fmt.Errorf("invalid year field %q: must be * or a valid year/range", yearField)
		}
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("invalid cron expression: expected 6 or 7 fields, got %d", len(fields))
	}
}

func isValidYearField(field string) bool {
	if field == "*" {
		return true
	}
	for _, r := range field {
		if !((r >= '0' && r <= '9') || r == ',' || r == '-' || r == '/' || r == '*') {
			return false
		}
	}
	return len(field) > 0
}

// Task is a named recurring function registered against a cron schedule.
type Task struct {
	Name string
	Cron string
	Fn   func()
}

// Scheduler runs a fixed set of named cron tasks using robfig/cron as the
// timing engine.
type Scheduler struct {
	mu sync.Mutex

	logger        *slog.Logger
	parser        cron.Parser
	cronScheduler *cron.Cron
	entryMap      map[string]cron.EntryID
	started       bool
}

// NewScheduler creates a new task scheduler.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronScheduler := cron.New(cron.WithParser(parser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))

	return &Scheduler{
		logger:        slog.Default(),
		parser:        parser,
		cronScheduler: cronScheduler,
		entryMap:      make(map[string]cron.EntryID),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Register adds a task to the scheduler. It must be called before Start.
func (s *Scheduler) Register(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expr, err := NormalizeCronExpression(task.Cron)
	if err != nil {
		return fmt.Errorf("task %q: %w", task.Name, err)
	}

	id, err := s.cronScheduler.AddFunc(expr, func() {
		s.logger.Debug("running scheduled task", slog.String("task", task.Name))
		task.Fn()
	})
	if err != nil {
		return fmt.Errorf("task %q: scheduling: %w", task.Name, err)
	}
	s.entryMap[task.Name] = id
	return nil
}

// Start begins running registered tasks on their schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cronScheduler.Start()
}

// Stop halts the scheduler, waiting for any in-flight task to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cronScheduler.Stop().Done()
	s.started = false
}
