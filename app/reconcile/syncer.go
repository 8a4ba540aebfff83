// Package reconcile drains the offline queue into the server.
//
// One cycle at a time per device: the Syncer holds the store-level sync
// lock while it submits pending drafts oldest first. A draft leaves the
// queue only after the server confirms it; a transient failure pauses the
// cycle with the draft still at the head, and a permanent one is flagged
// and reported while the drain moves on.
//
//	s := reconcile.New(queue, locker, committer, probe, sink, reconcile.Options{})
//	report, err := s.RunCycle(ctx)
//	out, err := s.Checkout(ctx, draft) // commit now, or queue when offline
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/event"
	"github.com/shashiranjanraj/ventas/pkg/logger"
	"github.com/shashiranjanraj/ventas/pkg/metrics"
	"github.com/shashiranjanraj/ventas/pkg/schedule"
)

var ErrCycleInProgress = errors.New("reconcile: a sync cycle is already running")

type State int32

const (
	Idle State = iota
	Locked
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locked:
		return "locked"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options tune a Syncer. Zero values pick defaults.
type Options struct {
	// Owner prefixes lock owner ids, usually the device id.
	Owner string
	// Interval between scheduled cycles.
	Interval time.Duration
	// ProbeEvery is how often Start asks the probe whether the server is
	// back, so a reconnect drains the queue without waiting for Interval.
	ProbeEvery time.Duration
}

// Synced is one draft the server confirmed during a cycle.
type Synced struct {
	LocalID  string `json:"local_id"`
	Code     string `json:"code"`
	Replayed bool   `json:"replayed"`
}

// Rejected is one draft that failed permanently during a cycle.
type Rejected struct {
	LocalID string `json:"local_id"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// Report summarises one cycle.
type Report struct {
	Offline       bool       `json:"offline"`
	LockRecovered bool       `json:"lock_recovered"`
	Synced        []Synced   `json:"synced"`
	Failed        []Rejected `json:"failed"`
	Reported      int        `json:"reported"`
	Paused        bool       `json:"paused"`
	PauseReason   string     `json:"pause_reason,omitempty"`
	Remaining     int        `json:"remaining"`
	Duration      string     `json:"duration"`
}

// Outcome is what Checkout did with a draft: committed it (Sale) or kept
// it on the device (Pending).
type Outcome struct {
	Sale    *models.Sale              `json:"sale,omitempty"`
	Pending *offline.PendingLocalSale `json:"pending,omitempty"`
}

type Syncer struct {
	queue     *offline.Queue
	locker    *offline.Locker
	committer Committer
	probe     Probe
	sink      FailureSink
	opts      Options

	state   atomic.Int32
	trigger chan struct{}
}

func New(queue *offline.Queue, locker *offline.Locker, committer Committer, probe Probe, sink FailureSink, opts Options) *Syncer {
	if opts.Owner == "" {
		opts.Owner = "device"
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ProbeEvery <= 0 {
		opts.ProbeEvery = 5 * time.Second
	}
	if sink == nil {
		sink = EventSink{}
	}
	return &Syncer{
		queue:     queue,
		locker:    locker,
		committer: committer,
		probe:     probe,
		sink:      sink,
		opts:      opts,
		trigger:   make(chan struct{}, 1),
	}
}

func (s *Syncer) State() State { return State(s.state.Load()) }

// ─── Cycle ────────────────────────────────────────────────────────────────────

// RunCycle drains the queue once. It returns ErrCycleInProgress without
// touching the queue when another cycle holds the lock.
func (s *Syncer) RunCycle(ctx context.Context) (report Report, err error) {
	start := time.Now()
	log := logger.WithCtx(ctx)
	defer func() { report.Duration = time.Since(start).Round(time.Millisecond).String() }()

	if !s.probe.IsOnline(ctx) {
		metrics.SyncCycles.WithLabelValues("offline").Inc()
		report.Offline = true
		report.Remaining = s.remaining(ctx)
		return report, nil
	}

	if !s.state.CompareAndSwap(int32(Idle), int32(Locked)) {
		metrics.SyncCycles.WithLabelValues("busy").Inc()
		return report, ErrCycleInProgress
	}
	defer s.state.Store(int32(Idle))

	owner := s.opts.Owner + ":" + uuid.NewString()
	recovered, err := s.locker.Acquire(ctx, owner)
	if errors.Is(err, offline.ErrLockHeld) {
		metrics.SyncCycles.WithLabelValues("busy").Inc()
		log.Info("reconcile: cycle skipped, lock held", "error", err)
		return report, ErrCycleInProgress
	}
	if err != nil {
		metrics.SyncCycles.WithLabelValues("error").Inc()
		return report, fmt.Errorf("reconcile: acquire lock: %w", err)
	}
	defer func() {
		if rerr := s.locker.Release(context.WithoutCancel(ctx), owner); rerr != nil {
			log.Warn("reconcile: release lock", "error", rerr)
		}
	}()
	if recovered {
		report.LockRecovered = true
		metrics.SyncLockRecovered.Inc()
		log.Warn("reconcile: took over an expired sync lock", "ttl", s.locker.TTL())
	}

	s.state.Store(int32(Draining))
	report.Reported = s.reportOutstanding(ctx)

	err = s.drain(ctx, owner, &report)
	report.Remaining = s.remaining(ctx)

	outcome := "drained"
	switch {
	case err != nil:
		outcome = "error"
	case report.Paused:
		outcome = "paused"
	}
	metrics.SyncCycles.WithLabelValues(outcome).Inc()
	log.Info("reconcile: cycle finished",
		"outcome", outcome,
		"synced", len(report.Synced),
		"failed", len(report.Failed),
		"remaining", report.Remaining,
		"duration", time.Since(start))
	return report, err
}

func (s *Syncer) drain(ctx context.Context, owner string, report *Report) error {
	log := logger.WithCtx(ctx)

	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list pending: %w", err)
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			report.Paused = true
			report.PauseReason = err.Error()
			return nil
		}
		if err := s.locker.Refresh(ctx, owner); err != nil {
			return fmt.Errorf("reconcile: refresh lock: %w", err)
		}
		if err := s.queue.RecordAttempt(ctx, p.LocalID); err != nil {
			return fmt.Errorf("reconcile: record attempt: %w", err)
		}

		draft := p.Draft.WithIdempotencyKey(p.LocalID)
		sale, err := s.committer.CommitSale(ctx, draft)

		switch {
		case err == nil:
			if err := s.queue.MarkSynced(ctx, p.LocalID); err != nil {
				// The sale is committed; the next cycle replays it by key
				// and removes the draft then.
				return fmt.Errorf("reconcile: mark %s synced: %w", p.LocalID, err)
			}
			metrics.SyncDrafts.WithLabelValues("synced").Inc()
			report.Synced = append(report.Synced, Synced{LocalID: p.LocalID, Code: sale.Code, Replayed: sale.Replayed})
			log.Info("reconcile: draft synced", "local_id", p.LocalID, "sale_code", sale.Code, "replayed", sale.Replayed)

		case services.IsTransient(err):
			report.Paused = true
			report.PauseReason = err.Error()
			log.Warn("reconcile: cycle paused", "local_id", p.LocalID, "error", err)
			return nil

		default:
			code := services.Code(err)
			if err := s.queue.MarkFailed(ctx, p.LocalID, code, err.Error()); err != nil {
				return fmt.Errorf("reconcile: mark %s failed: %w", p.LocalID, err)
			}
			metrics.SyncDrafts.WithLabelValues("failed").Inc()
			report.Failed = append(report.Failed, Rejected{LocalID: p.LocalID, Code: code, Reason: err.Error()})
			log.Error("reconcile: draft rejected", "local_id", p.LocalID, "code", code, "error", err)

			if s.report(ctx, p.LocalID) {
				report.Reported++
			}
		}
	}
	return nil
}

// reportOutstanding re-sends failures whose earlier report did not go
// through.
func (s *Syncer) reportOutstanding(ctx context.Context) int {
	failed, err := s.queue.Failed(ctx)
	if err != nil {
		logger.WithCtx(ctx).Warn("reconcile: list failed drafts", "error", err)
		return 0
	}
	n := 0
	for _, p := range failed {
		if !p.Reported && s.report(ctx, p.LocalID) {
			n++
		}
	}
	return n
}

func (s *Syncer) report(ctx context.Context, localID string) bool {
	log := logger.WithCtx(ctx)

	p, err := s.queue.Get(ctx, localID)
	if err != nil {
		log.Warn("reconcile: load failed draft", "local_id", localID, "error", err)
		return false
	}
	if err := s.sink.Report(ctx, p); err != nil {
		log.Warn("reconcile: report failed draft", "local_id", localID, "error", err)
		return false
	}
	if err := s.queue.MarkReported(ctx, localID); err != nil {
		log.Warn("reconcile: mark reported", "local_id", localID, "error", err)
		return false
	}
	metrics.SyncDrafts.WithLabelValues("reported").Inc()
	return true
}

func (s *Syncer) remaining(ctx context.Context) int {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return -1
	}
	return len(pending)
}

// ─── Checkout ─────────────────────────────────────────────────────────────────

// Checkout is the till's entry point. Online, it commits right away.
// Offline, or when the attempt fails transiently, the draft is queued under
// the same local id it was sent with, so a commit that did land is
// replayed rather than repeated. Permanent errors go back to the caller.
func (s *Syncer) Checkout(ctx context.Context, draft models.SaleDraft) (Outcome, error) {
	id := draft.IdempotencyKey
	if !offline.IsLocalID(id) {
		id = offline.NewLocalID()
	}
	draft = draft.WithIdempotencyKey(id)

	if s.probe.IsOnline(ctx) {
		sale, err := s.committer.CommitSale(ctx, draft)
		if err == nil {
			return Outcome{Sale: sale}, nil
		}
		if !services.IsTransient(err) {
			return Outcome{}, err
		}
		logger.WithCtx(ctx).Warn("reconcile: commit failed, queueing draft", "local_id", id, "error", err)
	}

	p, err := s.queue.EnqueueAs(context.WithoutCancel(ctx), id, draft)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: queue draft: %w", err)
	}
	return Outcome{Pending: &p}, nil
}

// ─── Triggers ─────────────────────────────────────────────────────────────────

// Trigger asks for a cycle as soon as possible, e.g. on reconnect. Calls
// while one is already requested are folded together.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start runs cycles on sched every Options.Interval and on Trigger until ctx
// is done. event.DeviceOnline, fired by the probes when the server comes
// back, also triggers a cycle; the probe is polled every Options.ProbeEvery.
func (s *Syncer) Start(ctx context.Context, sched *schedule.Scheduler) {
	sched.Interval(s.opts.Interval).
		Name("reconcile").
		WithoutOverlapping().
		Run(s.tick)

	sched.Interval(s.opts.ProbeEvery).
		Name("reconcile-probe").
		WithoutOverlapping().
		Run(func(ctx context.Context) { s.probe.IsOnline(ctx) })

	event.Listen(event.DeviceOnline, func(any) { s.Trigger() })

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.trigger:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Syncer) tick(ctx context.Context) {
	_, err := s.RunCycle(ctx)
	if err != nil && !errors.Is(err, ErrCycleInProgress) {
		logger.WithCtx(ctx).Error("reconcile: cycle failed", "error", err)
	}
}
