package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

const (
	publishTimeout = 5 * time.Second

	listenRetryMin = 500 * time.Millisecond
	listenRetryMax = 30 * time.Second
)

// RefreshOptions tunes the refresh protocol.
type RefreshOptions struct {
	// InstanceID is stamped on outbound notices and compared on inbound ones.
	InstanceID string
	// MinInterval is the minimum time between two locally triggered full
	// refresh passes. Passes requested by inbound notices always run.
	MinInterval time.Duration
}

// RefreshService applies refresh events to the store and relays them to
// other instances.
type RefreshService struct {
	bus         *RefreshBus
	registrar   *Registrar
	store       repository.Store
	broadcaster repository.Broadcaster
	opts        RefreshOptions
	logger      logrus.FieldLogger

	now      func() time.Time
	mu       sync.Mutex
	lastFull time.Time

	retryMin time.Duration
	retryMax time.Duration
}

// NewRefreshService subscribes the protocol handlers to bus. broadcaster may
// be nil, in which case notices are never sent or received. The protocol
// reads and writes the store behind any read cache.
func NewRefreshService(
	bus *RefreshBus,
	registrar *Registrar,
	store repository.Store,
	broadcaster repository.Broadcaster,
	opts RefreshOptions,
	logger *logrus.Logger,
) *RefreshService {
	s := &RefreshService{
		bus:         bus,
		registrar:   registrar,
		store:       repository.Uncached(store),
		broadcaster: broadcaster,
		opts:        opts,
		logger:      logger.WithField("component", "refresh"),
		now:         time.Now,
		retryMin:    listenRetryMin,
		retryMax:    listenRetryMax,
	}
	bus.Subscribe(KindFullRefresh, s.onFullRefresh)
	bus.Subscribe(KindTypeRefresh, s.onTypeRefresh)
	bus.Subscribe(KindValueRefresh, s.onValueRefresh)
	return s
}

// InstanceID returns the identity used for anti-echo.
func (s *RefreshService) InstanceID() string { return s.opts.InstanceID }

// Listen consumes inbound notices until ctx is done. A lost subscription is
// logged and re-established with exponential backoff; Listen only returns
// once ctx is done.
func (s *RefreshService) Listen(ctx context.Context) error {
	if s.broadcaster == nil {
		<-ctx.Done()
		return nil
	}

	delay := s.retryMin
	for {
		started := time.Now()
		err := s.broadcaster.Subscribe(ctx, s.HandleNotice)
		if ctx.Err() != nil {
			return nil
		}
		// a subscription that stayed up for a while starts the backoff over
		if time.Since(started) > s.retryMax {
			delay = s.retryMin
		}
		s.logger.WithError(err).Warnf("notice subscription lost, retrying in %s", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, s.retryMax)
	}
}

// HandleNotice applies an inbound notice. Notices sent by this instance id
// without NotifyOwnReplicas are dropped.
func (s *RefreshService) HandleNotice(ctx context.Context, n *entity.Notice) {
	log := s.logger.WithFields(logrus.Fields{
		"from":    n.OriginatingInstance,
		"message": n.Message,
	})
	if n.IsEcho(s.opts.InstanceID) {
		log.Debug("ignore own notice")
		return
	}

	var ev Event
	switch {
	case len(n.Types) > 0:
		ev = TypeRefresh{Types: n.Types, remote: true}
	case len(n.Values) > 0:
		ev = ValueRefresh{
			Values:           n.Values,
			MaintainType:     n.MaintainType,
			DeleteOrphanType: n.DeleteOrphanType,
			remote:           true,
		}
	default:
		ev = FullRefresh{Reason: n.Message, Sources: n.SourceNameFilter, remote: true}
	}
	log.Infof("notice received, applying %s refresh", ev.Kind())
	if err := s.bus.Dispatch(ctx, ev); err != nil {
		log.WithError(err).Error("apply notice")
	}
}

func (s *RefreshService) onFullRefresh(ctx context.Context, ev Event) error {
	full := ev.(FullRefresh)
	if !full.remote && !s.allowFull() {
		s.logger.WithField("reason", full.Reason).Warnf("full refresh suppressed, last pass less than %s ago", s.opts.MinInterval)
		return nil
	}

	report := s.registrar.Refresh(ctx, full.Sources)
	if full.NotifyOthers && !full.remote {
		s.publish(ctx, &entity.Notice{
			Message:           full.Reason,
			NotifyOwnReplicas: full.NotifyOwnReplicas,
			SourceNameFilter:  full.Sources,
		})
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d sources failed", len(report.Failed), len(report.Sources))
	}
	return nil
}

func (s *RefreshService) onTypeRefresh(ctx context.Context, ev Event) error {
	refresh := ev.(TypeRefresh)
	refresh.Types = lo.Filter(refresh.Types, func(t *entity.DictType, _ int) bool { return t.Validate() == nil })
	var errs []error
	for _, t := range refresh.Types {
		if err := s.store.StoreType(ctx, t.Normalize()); err != nil {
			errs = append(errs, err)
		}
	}
	if refresh.NotifyOthers && !refresh.remote {
		s.publish(ctx, &entity.Notice{
			Message:           "type refresh: " + joinCodes(lo.Map(refresh.Types, func(t *entity.DictType, _ int) string { return t.Type })),
			NotifyOwnReplicas: refresh.NotifyOwnReplicas,
			Types:             refresh.Types,
		})
	}
	return errors.Join(errs...)
}

func (s *RefreshService) onValueRefresh(ctx context.Context, ev Event) error {
	refresh := ev.(ValueRefresh)
	refresh.Values = lo.Filter(refresh.Values, func(v *entity.DictValue, _ int) bool { return v.Validate() == nil })
	if err := s.store.StoreValues(ctx, slices.Values(refresh.Values)); err != nil {
		return err
	}

	var errs []error
	if refresh.MaintainType {
		for code, values := range lo.GroupBy(refresh.Values, func(v *entity.DictValue) string { return v.DictType }) {
			if err := s.maintainType(ctx, code, values, refresh.DeleteOrphanType); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if refresh.NotifyOthers && !refresh.remote {
		s.publish(ctx, &entity.Notice{
			Message:           "value refresh: " + joinCodes(lo.Uniq(lo.Map(refresh.Values, func(v *entity.DictValue, _ int) string { return v.DictType }))),
			NotifyOwnReplicas: refresh.NotifyOwnReplicas,
			Values:            refresh.Values,
			MaintainType:      refresh.MaintainType,
			DeleteOrphanType:  refresh.DeleteOrphanType,
		})
	}
	return errors.Join(errs...)
}

// maintainType patches the stored full type so type-level reads agree with
// the values just written.
func (s *RefreshService) maintainType(ctx context.Context, code string, values []*entity.DictValue, deleteOrphan bool) error {
	t, err := s.store.GetType(ctx, code)
	if err != nil {
		return fmt.Errorf("load type %s: %w", code, err)
	}
	if t == nil {
		return nil
	}
	if t.Children == nil {
		t.Children = []*entity.DictValue{}
	}

	for _, v := range values {
		existing, idx := t.Child(v.Value)
		switch {
		case v.IsTombstone() && idx >= 0:
			t.Children = slices.Delete(t.Children, idx, idx+1)
		case v.IsTombstone():
		case existing != nil:
			t.Children[idx] = v.Clone()
		default:
			t.Children = append(t.Children, v.Clone())
		}
	}

	if len(t.Children) == 0 && deleteOrphan {
		s.logger.WithField("type", code).Info("remove orphaned type")
		return s.store.RemoveType(ctx, code)
	}
	return s.store.StoreType(ctx, t)
}

func (s *RefreshService) allowFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.opts.MinInterval > 0 && !s.lastFull.IsZero() && now.Sub(s.lastFull) < s.opts.MinInterval {
		return false
	}
	s.lastFull = now
	return true
}

// publish sends n and only logs failures; the local change is already applied.
func (s *RefreshService) publish(ctx context.Context, n *entity.Notice) {
	if s.broadcaster == nil {
		return
	}
	n.OriginatingInstance = s.opts.InstanceID
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.broadcaster.Publish(ctx, n); err != nil {
		s.logger.WithError(err).WithField("message", n.Message).Error("publish refresh notice")
	}
}

func joinCodes(codes []string) string {
	if len(codes) > 5 {
		return fmt.Sprintf("%v and %d more", codes[:5], len(codes)-5)
	}
	return fmt.Sprint(codes)
}
