package view

import (
	"context"

	"go.uber.org/zap"

	"gigmarket/internal/feed"
)

// Model is a read model the reconciler keeps live: Refetch loads the whole
// state from the store, Apply folds one event into it.
type Model interface {
	Refetch(ctx context.Context) error
	Apply(ctx context.Context, ev feed.Event) error
}

// Reconciler bridges one read model onto one table feed. The model is
// refetched once on start, then folded event by event; any resync or fold
// failure falls back to a full refetch, never to guessing at the gap.
type Reconciler struct {
	mux    *feed.Multiplexer
	table  string
	filter feed.Filter
	model  Model
	logger *zap.Logger

	unsubscribe func()
}

func NewReconciler(mux *feed.Multiplexer, table string, filter feed.Filter, model Model, logger *zap.Logger) *Reconciler {
	return &Reconciler{mux: mux, table: table, filter: filter, model: model, logger: logger}
}

// Start fetches the initial state and then subscribes, in that order: any
// event racing the fetch re-applies changes the fetch already saw, which the
// keyed fold absorbs.
func (r *Reconciler) Start(ctx context.Context) error {
	if err := r.model.Refetch(ctx); err != nil {
		return err
	}
	r.unsubscribe = r.mux.Subscribe(ctx, r.table, r.filter, r)
	return nil
}

func (r *Reconciler) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

func (r *Reconciler) OnEvent(ctx context.Context, ev feed.Event) {
	if err := r.model.Apply(ctx, ev); err != nil {
		r.logger.Warn("Event fold failed, refetching model",
			zap.String("table", r.table),
			zap.Int64("seq", ev.Seq),
			zap.Error(err),
		)
		if err := r.model.Refetch(ctx); err != nil {
			r.logger.Error("Model refetch failed, leaving stale state",
				zap.String("table", r.table),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) OnResync(ctx context.Context) {
	if err := r.model.Refetch(ctx); err != nil {
		r.logger.Error("Model refetch failed after resync",
			zap.String("table", r.table),
			zap.Error(err),
		)
	}
}
