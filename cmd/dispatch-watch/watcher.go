// README: Poll loop state: authoritative snapshot of offers plus optimistic claims.
package main

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"petmarket/internal/clock"
	"petmarket/internal/modules/dispatch"
	"petmarket/internal/reconcile"
	"petmarket/internal/types"
)

type requestAPI interface {
	Pending(ctx context.Context, driverID types.ID) ([]dispatch.DeliveryRequest, error)
	Act(ctx context.Context, requestID types.ID, action dispatch.Action) (*dispatch.DeliveryRequest, error)
}

type watcher struct {
	api      requestAPI
	driverID types.ID
	accept   bool
	view     *reconcile.View[types.ID, dispatch.DeliveryRequest]
	seen     map[types.ID]bool
	log      *slog.Logger
}

func newWatcher(api requestAPI, driverID types.ID, accept bool, log *slog.Logger) *watcher {
	return &watcher{
		api:      api,
		driverID: driverID,
		accept:   accept,
		view:     reconcile.NewView[types.ID, dispatch.DeliveryRequest](),
		seen:     map[types.ID]bool{},
		log:      log,
	}
}

func (w *watcher) poller(every time.Duration, c clock.Clock) *reconcile.Poller {
	return reconcile.NewPoller(every, w.fetch, c, w.log)
}

// fetch replaces the view with the server's list and, when auto-accept is on,
// claims the oldest offer.
func (w *watcher) fetch(ctx context.Context) error {
	list, err := w.api.Pending(ctx, w.driverID)
	if err != nil {
		return err
	}
	snapshot := make(map[types.ID]dispatch.DeliveryRequest, len(list))
	for _, r := range list {
		snapshot[r.ID] = r
	}
	w.view.Replace(snapshot)

	for id, r := range snapshot {
		if !w.seen[id] {
			w.log.Info("offer_received", "request_id", id, "order_id", r.OrderID, "broadcast", r.Broadcast(), "expires_at", r.ExpiresAt)
		}
	}
	for id := range w.seen {
		if _, ok := snapshot[id]; !ok {
			w.log.Info("offer_gone", "request_id", id)
		}
	}
	w.seen = make(map[types.ID]bool, len(snapshot))
	for id := range snapshot {
		w.seen[id] = true
	}

	if w.accept && len(list) > 0 {
		sort.Slice(list, func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.Before(list[j].CreatedAt)
			}
			return list[i].ID < list[j].ID
		})
		w.claim(ctx, list[0])
	}
	return nil
}

// claim shows the request as accepted right away and rolls the edit back when
// the server refuses; a refused claim is not a poll failure.
func (w *watcher) claim(ctx context.Context, r dispatch.DeliveryRequest) {
	tentative := r
	tentative.Status = dispatch.StatusAccepted
	tentative.ResolvedBy = w.driverID.Ptr()
	w.view.Apply(r.ID, tentative)

	got, err := w.api.Act(ctx, r.ID, dispatch.ActionAccept)
	if err != nil {
		w.view.Rollback(r.ID)
		var se *statusError
		if errors.As(err, &se) {
			w.log.Warn("claim_refused", "request_id", r.ID, "status", se.Code, "error", se.Message)
			return
		}
		w.log.Error("claim_failed", "request_id", r.ID, "error", err)
		return
	}
	w.view.Apply(r.ID, *got)
	w.log.Info("claimed", "request_id", r.ID, "order_id", r.OrderID)
}
