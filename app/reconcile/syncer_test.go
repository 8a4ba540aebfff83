package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/app/reconcile"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/event"
	"github.com/shashiranjanraj/ventas/pkg/schedule"
	"github.com/shashiranjanraj/ventas/pkg/testkit"
)

type rig struct {
	db     *gorm.DB
	svc    *services.SaleService
	store  *offline.MemoryStore
	queue  *offline.Queue
	locker *offline.Locker
	probe  *reconcile.StaticProbe
	sink   *recordingSink
}

func newRig(t *testing.T) *rig {
	t.Helper()
	db := testkit.NewDB(t)
	store := offline.NewMemoryStore()
	t.Cleanup(event.Flush)
	return &rig{
		db: db,
		svc: services.NewSaleService(db, ledger.New(db), services.SaleOptions{
			TaxRate:        decimal.RequireFromString("0.16"),
			PaymentMethods: []string{"cash", "card"},
			CommitTimeout:  5 * time.Second,
		}),
		store:  store,
		queue:  offline.NewQueue(store),
		locker: offline.NewLocker(store, 30*time.Second),
		probe:  reconcile.NewStaticProbe(true),
		sink:   &recordingSink{},
	}
}

func (r *rig) syncer(c reconcile.Committer) *reconcile.Syncer {
	if c == nil {
		c = r.svc
	}
	return reconcile.New(r.queue, r.locker, c, r.probe, r.sink, reconcile.Options{Owner: "till-1"})
}

func units(product string, qty int64) models.SaleDraft {
	return models.SaleDraft{
		Lines:         []models.CartLine{{ProductID: product, Quantity: decimal.NewFromInt(qty), UnitPrice: decimal.NewFromInt(10)}},
		OperatorID:    "op-1",
		PaymentMethod: "cash",
	}
}

type recordingSink struct {
	mu       sync.Mutex
	reported []string
	fail     bool
}

func (s *recordingSink) Report(_ context.Context, p offline.PendingLocalSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.reported = append(s.reported, p.LocalID)
	return nil
}

// scriptedCommitter answers from script before delegating. A nil entry
// delegates; lostReply delegates and then pretends the reply never came.
type scriptedCommitter struct {
	mu     sync.Mutex
	next   reconcile.Committer
	script []error
	calls  int
}

var lostReply = errors.New("lost reply")

func (c *scriptedCommitter) CommitSale(ctx context.Context, d models.SaleDraft) (*models.Sale, error) {
	c.mu.Lock()
	var step error
	if c.calls < len(c.script) {
		step = c.script[c.calls]
	}
	c.calls++
	c.mu.Unlock()

	switch {
	case step == nil:
		return c.next.CommitSale(ctx, d)
	case errors.Is(step, lostReply):
		if _, err := c.next.CommitSale(ctx, d); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: connection reset", services.ErrTransient)
	default:
		return nil, step
	}
}

// ─── Drain ────────────────────────────────────────────────────────────────────

func TestOfflineDraftsDrainOnReconnect(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 5)
	ctx := context.Background()

	r.probe.Set(false)
	s := r.syncer(nil)
	a, err := s.Checkout(ctx, units("P", 2))
	require.NoError(t, err)
	require.NotNil(t, a.Pending)
	b, err := s.Checkout(ctx, units("P", 1))
	require.NoError(t, err)
	require.NotNil(t, b.Pending)

	report, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Offline)
	assert.Equal(t, 2, report.Remaining)
	assert.True(t, testkit.OnHand(t, r.db, "P").Equal(decimal.NewFromInt(5)))

	r.probe.Set(true)
	report, err = s.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Synced, 2)
	assert.Equal(t, a.Pending.LocalID, report.Synced[0].LocalID)
	assert.Equal(t, "VEN000001", report.Synced[0].Code)
	assert.Equal(t, b.Pending.LocalID, report.Synced[1].LocalID)
	assert.Equal(t, 0, report.Remaining)

	assert.True(t, testkit.OnHand(t, r.db, "P").Equal(decimal.NewFromInt(2)))
	assert.Equal(t, reconcile.Idle, s.State())
}

func TestConflictingOfflineSalesOneWinsOneFails(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 3)
	ctx := context.Background()

	first, _ := r.queue.Enqueue(ctx, units("P", 2))
	second, _ := r.queue.Enqueue(ctx, units("P", 2))
	third, _ := r.queue.Enqueue(ctx, units("P", 1))

	report, err := r.syncer(nil).RunCycle(ctx)
	require.NoError(t, err)

	require.Len(t, report.Synced, 2)
	assert.Equal(t, first.LocalID, report.Synced[0].LocalID)
	assert.Equal(t, third.LocalID, report.Synced[1].LocalID, "a rejected draft does not block the ones behind it")

	require.Len(t, report.Failed, 1)
	assert.Equal(t, second.LocalID, report.Failed[0].LocalID)
	assert.Equal(t, services.CodeInsufficientStock, report.Failed[0].Code)
	assert.Equal(t, []string{second.LocalID}, r.sink.reported)

	assert.True(t, testkit.OnHand(t, r.db, "P").IsZero())

	failed, err := r.queue.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1, "the rejected draft stays on the device for an operator")
	assert.True(t, failed[0].Reported)
}

func TestTransientFailurePausesWithDraftAtHead(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 10)
	ctx := context.Background()

	a, _ := r.queue.Enqueue(ctx, units("P", 1))
	_, _ = r.queue.Enqueue(ctx, units("P", 1))

	c := &scriptedCommitter{next: r.svc, script: []error{fmt.Errorf("%w: db busy", services.ErrTransient)}}
	s := r.syncer(c)

	report, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Paused)
	assert.Empty(t, report.Synced)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 2, report.Remaining)

	pending, _ := r.queue.ListPending(ctx)
	assert.Equal(t, a.LocalID, pending[0].LocalID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, int64(0), testkit.Count(t, r.db, &models.Sale{}))

	report, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Synced, 2)
	assert.Equal(t, 0, report.Remaining)
}

func TestLostReplyIsReplayedNotRecommitted(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 10)
	ctx := context.Background()

	a, _ := r.queue.Enqueue(ctx, units("P", 3))

	c := &scriptedCommitter{next: r.svc, script: []error{lostReply}}
	s := r.syncer(c)

	report, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Paused)

	report, err = s.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Synced, 1)
	assert.Equal(t, a.LocalID, report.Synced[0].LocalID)
	assert.True(t, report.Synced[0].Replayed)

	assert.Equal(t, int64(1), testkit.Count(t, r.db, &models.Sale{}))
	assert.True(t, testkit.OnHand(t, r.db, "P").Equal(decimal.NewFromInt(7)))
}

func TestUnreportedFailureIsReportedNextCycle(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 1)
	ctx := context.Background()

	a, _ := r.queue.Enqueue(ctx, units("P", 5))
	r.sink.fail = true

	s := r.syncer(nil)
	report, err := s.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 0, report.Reported)

	got, _ := r.queue.Get(ctx, a.LocalID)
	assert.False(t, got.Reported)

	r.sink.fail = false
	report, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reported)
	assert.Empty(t, report.Failed, "a failed draft is not resubmitted")
	assert.Equal(t, []string{a.LocalID}, r.sink.reported)
}

// ─── Lock ─────────────────────────────────────────────────────────────────────

type blockingCommitter struct {
	next    reconcile.Committer
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingCommitter) CommitSale(ctx context.Context, d models.SaleDraft) (*models.Sale, error) {
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	return c.next.CommitSale(ctx, d)
}

func TestConcurrentCyclesCommitEachDraftOnce(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.queue.Enqueue(ctx, units("P", 1))
		require.NoError(t, err)
	}

	bc := &blockingCommitter{next: r.svc, entered: make(chan struct{}), release: make(chan struct{})}
	first := r.syncer(bc)
	second := r.syncer(r.svc) // another process sharing the device store

	done := make(chan reconcile.Report, 1)
	go func() {
		rep, err := first.RunCycle(ctx)
		assert.NoError(t, err)
		done <- rep
	}()

	<-bc.entered
	assert.Equal(t, reconcile.Draining, first.State())

	_, err := second.RunCycle(ctx)
	assert.ErrorIs(t, err, reconcile.ErrCycleInProgress)

	_, err = first.RunCycle(ctx)
	assert.ErrorIs(t, err, reconcile.ErrCycleInProgress)

	close(bc.release)
	rep := <-done
	assert.Len(t, rep.Synced, 3)

	assert.Equal(t, int64(3), testkit.Count(t, r.db, &models.Sale{}))
	assert.True(t, testkit.OnHand(t, r.db, "P").Equal(decimal.NewFromInt(7)))

	held, err := r.locker.Inspect(ctx)
	require.NoError(t, err)
	assert.Nil(t, held, "lock released after the cycle")
}

func TestExpiredLockIsTakenOver(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 10)
	ctx := context.Background()
	_, _ = r.queue.Enqueue(ctx, units("P", 1))

	stale := fmt.Sprintf(`{"owner":"crashed","acquired_at":%q}`, time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano))
	require.NoError(t, r.store.Update(ctx, offline.LockKey, func([]byte) ([]byte, error) {
		return []byte(stale), nil
	}))

	report, err := r.syncer(nil).RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.LockRecovered)
	assert.Len(t, report.Synced, 1)
}

func TestFreshForeignLockSkipsCycle(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	_, _ = r.queue.Enqueue(ctx, units("P", 1))

	_, err := r.locker.Acquire(ctx, "other-process")
	require.NoError(t, err)

	_, err = r.syncer(nil).RunCycle(ctx)
	assert.ErrorIs(t, err, reconcile.ErrCycleInProgress)

	pending, _ := r.queue.ListPending(ctx)
	assert.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].Attempts, "nothing was submitted")
}

// ─── Checkout ─────────────────────────────────────────────────────────────────

func TestCheckoutOnlineCommitsDirectly(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 2)

	out, err := r.syncer(nil).Checkout(context.Background(), units("P", 2))
	require.NoError(t, err)
	require.NotNil(t, out.Sale)
	assert.Nil(t, out.Pending)
	assert.Equal(t, "VEN000001", out.Sale.Code)
}

func TestCheckoutReturnsPermanentErrors(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 1)

	_, err := r.syncer(nil).Checkout(context.Background(), units("P", 2))
	assert.ErrorIs(t, err, services.ErrInsufficientStock)

	all, _ := r.queue.All(context.Background())
	assert.Empty(t, all)
}

func TestCheckoutQueuesAfterUnknownOutcome(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 5)
	ctx := context.Background()

	c := &scriptedCommitter{next: r.svc, script: []error{lostReply}}
	s := r.syncer(c)

	out, err := s.Checkout(ctx, units("P", 2))
	require.NoError(t, err)
	require.NotNil(t, out.Pending)

	report, err := s.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Synced, 1)
	assert.True(t, report.Synced[0].Replayed, "the queued draft reuses the key of the first attempt")
	assert.Equal(t, int64(1), testkit.Count(t, r.db, &models.Sale{}))
	assert.True(t, testkit.OnHand(t, r.db, "P").Equal(decimal.NewFromInt(3)))
}

func TestTriggerRunsCycle(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = r.queue.Enqueue(ctx, units("P", 1))

	s := reconcile.New(r.queue, r.locker, r.svc, r.probe, r.sink, reconcile.Options{Interval: time.Hour})
	s.Start(ctx, schedule.New())
	event.Fire(event.DeviceOnline, nil)

	assert.Eventually(t, func() bool {
		pending, _ := r.queue.ListPending(ctx)
		return len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectDrainsQueue(t *testing.T) {
	r := newRig(t)
	testkit.SeedUnits(t, r.db, "P", 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.probe.Set(false)
	s := reconcile.New(r.queue, r.locker, r.svc, r.probe, r.sink, reconcile.Options{Interval: time.Hour})
	out, err := s.Checkout(ctx, units("P", 2))
	require.NoError(t, err)
	require.NotNil(t, out.Pending)

	s.Start(ctx, schedule.New())
	r.probe.Set(true)

	assert.Eventually(t, func() bool {
		pending, _ := r.queue.ListPending(ctx)
		return len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, testkit.OnHand(t, r.db, "P").Equal(decimal.NewFromInt(3)))
}
