package usecase

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// LoadReport summarizes one Registrar pass.
type LoadReport struct {
	Sources  []string
	Failed   map[string]error
	Duration time.Duration
}

// OK reports whether every source in the pass succeeded.
func (r LoadReport) OK() bool { return len(r.Failed) == 0 }

// Registrar (re)loads dictionary sources into the store. It holds no state
// between passes.
type Registrar struct {
	store   repository.Store
	sources []repository.Source
	logger  logrus.FieldLogger
}

func NewRegistrar(store repository.Store, sources []repository.Source, logger *logrus.Logger) *Registrar {
	return &Registrar{
		store:   repository.Uncached(store),
		sources: sources,
		logger:  logger.WithField("component", "registrar"),
	}
}

// Sources returns the names of the registered sources in pass order.
func (r *Registrar) Sources() []string {
	names := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		names = append(names, src.Name())
	}
	return names
}

// Load runs a full pass over every source.
func (r *Registrar) Load(ctx context.Context) LoadReport {
	return r.Refresh(ctx, nil)
}

// Refresh runs a pass over the sources that support names; an empty names
// slice selects every source. A failing source is logged and skipped.
func (r *Registrar) Refresh(ctx context.Context, names []string) LoadReport {
	start := time.Now()
	report := LoadReport{Failed: map[string]error{}}
	for _, src := range r.sources {
		if !src.SupportsRefresh(names) {
			continue
		}
		report.Sources = append(report.Sources, src.Name())
		if err := r.runSource(ctx, src); err != nil {
			report.Failed[src.Name()] = err
			r.logger.WithError(err).WithField("source", src.Name()).Error("dictionary source failed")
		}
	}
	report.Duration = time.Since(start)
	r.logger.WithFields(logrus.Fields{
		"sources":  report.Sources,
		"failed":   len(report.Failed),
		"duration": report.Duration,
	}).Info("dictionary pass finished")
	return report
}

func (r *Registrar) runSource(ctx context.Context, src repository.Source) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), p)
		}
	}()

	switch s := src.(type) {
	case repository.TypeSource:
		return r.storeTypes(ctx, s)
	case repository.ValueSource:
		values, srcErr := collectErr(s.Values(ctx))
		if err := r.store.StoreBatch(ctx, values); err != nil {
			return fmt.Errorf("store values: %w", err)
		}
		return *srcErr
	default:
		return fmt.Errorf("%w: %s provides neither types nor values", entity.ErrUnknownSource, src.Name())
	}
}

// storeTypes writes each full type; StoreType also replaces the type's values.
func (r *Registrar) storeTypes(ctx context.Context, src repository.TypeSource) error {
	store := r.store.StoreType
	if repository.IsSystem(src) {
		store = r.store.StoreSystemType
	}
	for t, err := range src.Types(ctx) {
		if err != nil {
			return err
		}
		if t == nil {
			continue
		}
		if err := store(ctx, t.Normalize()); err != nil {
			return fmt.Errorf("store type %s: %w", t.Type, err)
		}
	}
	return nil
}

// collectErr turns a fallible stream into a plain one that stops at the
// first error; the error is available through the returned pointer once the
// stream has been consumed.
func collectErr[V any](seq iter.Seq2[V, error]) (iter.Seq[V], *error) {
	var srcErr error
	return func(yield func(V) bool) {
		for v, err := range seq {
			if err != nil {
				srcErr = err
				return
			}
			if !yield(v) {
				return
			}
		}
	}, &srcErr
}
