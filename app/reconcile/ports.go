package reconcile

import (
	"context"
	"sync/atomic"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/pkg/event"
)

// Committer commits a draft on the server. services.SaleService satisfies
// it in-process; HTTPCommitter does over the API.
//
// Errors must classify with services.IsTransient: transient ones pause the
// drain, anything else fails the draft for good.
type Committer interface {
	CommitSale(ctx context.Context, draft models.SaleDraft) (*models.Sale, error)
}

// Probe tells whether the server is reachable.
type Probe interface {
	IsOnline(ctx context.Context) bool
}

// FailureSink puts a permanently failed draft in front of an operator.
type FailureSink interface {
	Report(ctx context.Context, p offline.PendingLocalSale) error
}

const (
	reachUnknown int32 = iota
	reachOffline
	reachOnline
)

// reachability remembers a probe's last answer and fires
// event.DeviceOnline when it flips from offline to online.
type reachability struct {
	last atomic.Int32
}

func (r *reachability) observe(online bool, source string) bool {
	next := reachOffline
	if online {
		next = reachOnline
	}
	if r.last.Swap(next) == reachOffline && online {
		event.Fire(event.DeviceOnline, source)
	}
	return online
}

// StaticProbe is a Probe whose answer is set by hand.
type StaticProbe struct {
	online atomic.Bool
	reach  reachability
}

func NewStaticProbe(online bool) *StaticProbe {
	p := &StaticProbe{}
	p.Set(online)
	return p
}

func (p *StaticProbe) Set(online bool) {
	p.online.Store(online)
	p.reach.observe(online, "static")
}

func (p *StaticProbe) IsOnline(context.Context) bool { return p.online.Load() }

// EventSink fires event.SyncDraftFailed with the failed draft. The alert
// hub relays it to connected operators.
type EventSink struct{}

func (EventSink) Report(_ context.Context, p offline.PendingLocalSale) error {
	event.Fire(event.SyncDraftFailed, p)
	return nil
}

// Sinks reports to each sink in turn and stops at the first error.
type Sinks []FailureSink

func (s Sinks) Report(ctx context.Context, p offline.PendingLocalSale) error {
	for _, sink := range s {
		if err := sink.Report(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
