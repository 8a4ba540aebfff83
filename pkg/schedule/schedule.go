// Package schedule runs recurring tasks.
//
// Usage:
//
//	s := schedule.New()
//	s.Interval(config.SyncInterval()).Name("sync").WithoutOverlapping().Run(syncer.Tick)
//	s.Hourly().Name("ledger-check").Run(check)
//	s.Cron("0 * * * *").Run(hourly)
//
//	s.Start(ctx) // returns immediately; stops when ctx is done
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shashiranjanraj/ventas/pkg/logger"
)

// Task receives the scheduler's context.
type Task func(ctx context.Context)

type entry struct {
	id        string
	interval  time.Duration
	cronExpr  string
	task      Task
	lastRun   time.Time
	running   bool
	noOverlap bool
	mu        sync.Mutex
}

// Scheduler owns a set of entries and the loop that dispatches them.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	tick    time.Duration
}

func New() *Scheduler { return &Scheduler{tick: time.Second} }

// Schedule is a fluent builder for a single entry before it is registered.
type Schedule struct {
	s *Scheduler
	e *entry
}

// ─── Frequencies ──────────────────────────────────────────────────────────────

func (s *Scheduler) Interval(d time.Duration) *Schedule {
	return &Schedule{s: s, e: &entry{interval: d}}
}

func (s *Scheduler) Every(n int) *FreqBuilder { return &FreqBuilder{s: s, n: n} }
func (s *Scheduler) Hourly() *Schedule       { return s.Every(1).Hours() }

// Cron schedules using a 5-field expression (min hour dom mon dow).
func (s *Scheduler) Cron(expr string) *Schedule {
	return &Schedule{s: s, e: &entry{cronExpr: expr}}
}

type FreqBuilder struct {
	s *Scheduler
	n int
}

func (f *FreqBuilder) Minutes() *Schedule { return f.s.Interval(time.Duration(f.n) * time.Minute) }
func (f *FreqBuilder) Hours() *Schedule   { return f.s.Interval(time.Duration(f.n) * time.Hour) }

// ─── Options ──────────────────────────────────────────────────────────────────

// WithoutOverlapping skips a run while the previous one is still executing.
func (s *Schedule) WithoutOverlapping() *Schedule {
	s.e.noOverlap = true
	return s
}

func (s *Schedule) Name(id string) *Schedule {
	s.e.id = id
	return s
}

// Run registers the task. Nothing runs until Start.
func (s *Schedule) Run(fn Task) {
	s.e.task = fn
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	if s.e.id == "" {
		s.e.id = fmt.Sprintf("task-%d", len(s.s.entries)+1)
	}
	s.s.entries = append(s.s.entries, s.e)
}

// ─── Loop ─────────────────────────────────────────────────────────────────────

// Start dispatches due tasks in the background until ctx is done. Interval
// entries run once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
	logger.Info("schedule: scheduler started", "entries", len(s.snapshot()))
}

func (s *Scheduler) snapshot() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entry(nil), s.entries...)
}

func (s *Scheduler) run(ctx context.Context) {
	s.dispatchDue(ctx, time.Now())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("schedule: scheduler stopped")
			return
		case now := <-ticker.C:
			s.dispatchDue(ctx, now)
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	for _, e := range s.snapshot() {
		if isDue(e, now) {
			dispatch(ctx, e, now)
		}
	}
}

func isDue(e *entry, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cronExpr != "" {
		// Once per matching minute.
		return matchCron(e.cronExpr, now) && now.Truncate(time.Minute).After(e.lastRun)
	}
	if e.lastRun.IsZero() {
		return true
	}
	return now.Sub(e.lastRun) >= e.interval
}

func dispatch(ctx context.Context, e *entry, now time.Time) {
	e.mu.Lock()
	if e.noOverlap && e.running {
		e.mu.Unlock()
		logger.Debug("schedule: skipping overlapping task", "id", e.id)
		return
	}
	e.running = true
	e.lastRun = now
	e.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("schedule: task panicked", "id", e.id, "panic", r)
			}
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
		}()

		e.task(ctx)
	}()
}

// ─── Cron ─────────────────────────────────────────────────────────────────────
// Each field: * | number | */step | number-number

func matchCron(expr string, t time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	vals := []int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, f := range fields {
		if !matchField(f, vals[i]) {
			return false
		}
	}
	return true
}

func matchField(field string, val int) bool {
	if field == "*" {
		return true
	}
	if strings.HasPrefix(field, "*/") {
		var step int
		fmt.Sscanf(field[2:], "%d", &step)
		return step > 0 && val%step == 0
	}
	if strings.Contains(field, "-") {
		var lo, hi int
		fmt.Sscanf(field, "%d-%d", &lo, &hi)
		return val >= lo && val <= hi
	}
	var n int
	fmt.Sscanf(field, "%d", &n)
	return n == val
}

// List describes the registered entries for the CLI.
func (s *Scheduler) List() []string {
	entries := s.snapshot()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		freq := e.cronExpr
		if freq == "" {
			freq = e.interval.String()
		}
		out = append(out, fmt.Sprintf("%s  [%s]", e.id, freq))
	}
	return out
}
