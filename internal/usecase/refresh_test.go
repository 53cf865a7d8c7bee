package usecase

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/dictsync/internal/adapter/store"
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type typeSource struct {
	repository.SourceName
	types  []*entity.DictType
	err    error
	panics bool
	system bool

	mu    sync.Mutex
	calls int
}

func (s *typeSource) Types(context.Context) iter.Seq2[*entity.DictType, error] {
	return func(yield func(*entity.DictType, error) bool) {
		s.mu.Lock()
		s.calls++
		s.mu.Unlock()
		if s.panics {
			panic("source exploded")
		}
		for _, t := range s.types {
			if !yield(t.Clone(), nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

func (s *typeSource) System() bool { return s.system }

func (s *typeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type valueSource struct {
	repository.SourceName
	values []*entity.DictValue
}

func (s *valueSource) Values(context.Context) iter.Seq2[*entity.DictValue, error] {
	return func(yield func(*entity.DictValue, error) bool) {
		for _, v := range s.values {
			if !yield(v, nil) {
				return
			}
		}
	}
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	published []*entity.Notice
	err       error
}

func (b *recordingBroadcaster) Publish(_ context.Context, n *entity.Notice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, n)
	return b.err
}

func (b *recordingBroadcaster) Subscribe(ctx context.Context, _ repository.NoticeHandler) error {
	<-ctx.Done()
	return nil
}

func (b *recordingBroadcaster) Close() error { return nil }

func (b *recordingBroadcaster) Published() []*entity.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*entity.Notice(nil), b.published...)
}

func colorType() *entity.DictType {
	return &entity.DictType{
		Title: "Color",
		Type:  "Color",
		Children: []*entity.DictValue{
			entity.NewDictValue("Color", 1, "Red"),
			entity.NewDictValue("Color", 2, "Green"),
		},
	}
}

type harness struct {
	store       repository.Store
	bus         *RefreshBus
	broadcaster *recordingBroadcaster
	service     *RefreshService
}

func newHarness(t *testing.T, opts RefreshOptions, sources ...repository.Source) *harness {
	t.Helper()
	logger := testLogger()
	st := store.NewMemoryStore(nil, logger)
	bus := NewRefreshBus(8, logger)
	b := &recordingBroadcaster{}
	registrar := NewRegistrar(st, sources, logger)
	return &harness{
		store:       st,
		bus:         bus,
		broadcaster: b,
		service:     NewRefreshService(bus, registrar, st, b, opts, logger),
	}
}

func text(t *testing.T, s repository.Store, code, value string) (string, bool) {
	t.Helper()
	title, ok, err := s.GetText(context.Background(), code, value)
	require.NoError(t, err)
	return title, ok
}

func TestRegistrarIsolatesFailingSources(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil, testLogger())
	failing := &typeSource{
		SourceName: "failing",
		types:      []*entity.DictType{{Type: "Half", Children: []*entity.DictValue{}}},
		err:        errors.New("connection reset"),
	}
	panicking := &typeSource{SourceName: "panicking", panics: true}
	good := &typeSource{SourceName: "good", types: []*entity.DictType{colorType()}}

	report := NewRegistrar(st, []repository.Source{failing, panicking, good}, testLogger()).Load(ctx)

	assert.False(t, report.OK())
	assert.Equal(t, []string{"failing", "panicking", "good"}, report.Sources)
	assert.Contains(t, report.Failed, "failing")
	assert.Contains(t, report.Failed, "panicking")
	assert.NotContains(t, report.Failed, "good")

	title, ok := text(t, st, "Color", "1")
	assert.True(t, ok)
	assert.Equal(t, "Red", title)

	// writes made before the failure are kept
	half, err := st.GetType(ctx, "Half")
	require.NoError(t, err)
	assert.NotNil(t, half)
}

func TestRegistrarScopedRefresh(t *testing.T) {
	ctx := context.Background()
	a := &typeSource{SourceName: "a", types: []*entity.DictType{{Type: "A", Children: []*entity.DictValue{}}}}
	b := &typeSource{SourceName: "b", types: []*entity.DictType{{Type: "B", Children: []*entity.DictValue{}}}}
	r := NewRegistrar(store.NewMemoryStore(nil, testLogger()), []repository.Source{a, b}, testLogger())

	report := r.Refresh(ctx, []string{"b"})

	assert.True(t, report.OK())
	assert.Equal(t, []string{"b"}, report.Sources)
	assert.Equal(t, 0, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, []string{"a", "b"}, r.Sources())
}

func TestRegistrarValueSourceSkipsFullTypes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil, testLogger())
	src := &valueSource{SourceName: "feed", values: []*entity.DictValue{
		entity.NewDictValue("City", "sh", "Shanghai"),
		entity.NewDictValue("City", "bj", "Beijing"),
	}}

	report := NewRegistrar(st, []repository.Source{src}, testLogger()).Load(ctx)
	require.True(t, report.OK())

	title, ok := text(t, st, "City", "bj")
	assert.True(t, ok)
	assert.Equal(t, "Beijing", title)

	got, err := st.GetType(ctx, "City")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRegistrarSystemSourceIsMirrored(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil, testLogger())
	src := &typeSource{SourceName: "static", system: true, types: []*entity.DictType{colorType()}}

	NewRegistrar(st, []repository.Source{src}, testLogger()).Load(ctx)

	keys, err := st.SystemTypeKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Color"}, keys)
}

func TestFullRefreshIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := &typeSource{SourceName: "db", types: []*entity.DictType{colorType(), {Type: "Size", Children: []*entity.DictValue{
		entity.NewDictValue("Size", "s", "Small"),
	}}}}
	h := newHarness(t, RefreshOptions{InstanceID: "svc"}, src)

	require.NoError(t, h.bus.Dispatch(ctx, FullRefresh{Reason: "first"}))
	keys, err := h.store.TypeKeys(ctx)
	require.NoError(t, err)
	color, err := h.store.GetType(ctx, "Color")
	require.NoError(t, err)

	require.NoError(t, h.bus.Dispatch(ctx, FullRefresh{Reason: "second"}))
	keysAgain, err := h.store.TypeKeys(ctx)
	require.NoError(t, err)
	colorAgain, err := h.store.GetType(ctx, "Color")
	require.NoError(t, err)

	assert.Equal(t, 2, src.Calls())
	assert.Equal(t, keys, keysAgain)
	assert.Equal(t, color, colorAgain)
}

func TestHandleNoticeAntiEcho(t *testing.T) {
	ctx := context.Background()
	src := &typeSource{SourceName: "db", types: []*entity.DictType{colorType()}}
	h := newHarness(t, RefreshOptions{InstanceID: "svc"}, src)

	h.service.HandleNotice(ctx, &entity.Notice{Message: "own", OriginatingInstance: "svc"})
	assert.Equal(t, 0, src.Calls(), "own notice must be ignored")

	h.service.HandleNotice(ctx, &entity.Notice{Message: "other", OriginatingInstance: "billing"})
	assert.Equal(t, 1, src.Calls())

	h.service.HandleNotice(ctx, &entity.Notice{Message: "replicas", OriginatingInstance: "svc", NotifyOwnReplicas: true})
	assert.Equal(t, 2, src.Calls())

	assert.Empty(t, h.broadcaster.Published(), "inbound notices are never relayed")
}

func TestHandleNoticeScopesBySourceFilter(t *testing.T) {
	ctx := context.Background()
	a := &typeSource{SourceName: "a", types: []*entity.DictType{{Type: "A", Children: []*entity.DictValue{}}}}
	b := &typeSource{SourceName: "b", types: []*entity.DictType{{Type: "B", Children: []*entity.DictValue{}}}}
	h := newHarness(t, RefreshOptions{InstanceID: "svc"}, a, b)

	h.service.HandleNotice(ctx, &entity.Notice{OriginatingInstance: "other", SourceNameFilter: []string{"a"}})

	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 0, b.Calls())
}

func TestHandleNoticeAppliesCarriedTypes(t *testing.T) {
	ctx := context.Background()
	src := &typeSource{SourceName: "db"}
	h := newHarness(t, RefreshOptions{InstanceID: "svc"}, src)

	h.service.HandleNotice(ctx, &entity.Notice{OriginatingInstance: "other", Types: []*entity.DictType{colorType()}})

	title, ok := text(t, h.store, "Color", "2")
	assert.True(t, ok)
	assert.Equal(t, "Green", title)
	assert.Equal(t, 0, src.Calls(), "carried types bypass the sources")
}

func TestFullRefreshMinInterval(t *testing.T) {
	ctx := context.Background()
	src := &typeSource{SourceName: "db", types: []*entity.DictType{colorType()}}
	h := newHarness(t, RefreshOptions{InstanceID: "svc", MinInterval: 10 * time.Second}, src)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.service.now = func() time.Time { return now }

	ev := FullRefresh{Reason: "deploy", NotifyOthers: true}
	require.NoError(t, h.bus.Dispatch(ctx, ev))
	require.NoError(t, h.bus.Dispatch(ctx, ev))
	assert.Equal(t, 1, src.Calls())
	assert.Len(t, h.broadcaster.Published(), 1)

	now = now.Add(11 * time.Second)
	require.NoError(t, h.bus.Dispatch(ctx, ev))
	assert.Equal(t, 2, src.Calls())
	assert.Len(t, h.broadcaster.Published(), 2)

	// targeted refreshes are never debounced
	for range 3 {
		require.NoError(t, h.bus.Dispatch(ctx, TypeRefresh{Types: []*entity.DictType{colorType()}}))
	}
}

func TestFullRefreshMinIntervalSkipsRemotePasses(t *testing.T) {
	ctx := context.Background()
	src := &typeSource{SourceName: "db", types: []*entity.DictType{colorType()}}
	h := newHarness(t, RefreshOptions{InstanceID: "svc", MinInterval: 10 * time.Second}, src)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.service.now = func() time.Time { return now }

	require.NoError(t, h.bus.Dispatch(ctx, FullRefresh{Reason: "deploy"}))
	require.Equal(t, 1, src.Calls())

	crimson := colorType()
	crimson.Children[0] = entity.NewDictValue("Color", 1, "Crimson")
	src.types = []*entity.DictType{crimson}
	now = now.Add(time.Second)

	h.service.HandleNotice(ctx, &entity.Notice{Message: "table changed", OriginatingInstance: "billing"})
	assert.Equal(t, 2, src.Calls())
	title, _ := text(t, h.store, "Color", "1")
	assert.Equal(t, "Crimson", title)

	// local passes stay debounced
	require.NoError(t, h.bus.Dispatch(ctx, FullRefresh{Reason: "deploy"}))
	assert.Equal(t, 2, src.Calls())
}

func TestOwnReplicaNoticeRerunsSources(t *testing.T) {
	ctx := context.Background()
	src := &typeSource{SourceName: "db", types: []*entity.DictType{colorType()}}
	h := newHarness(t, RefreshOptions{InstanceID: "svc", MinInterval: 10 * time.Second}, src)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.service.now = func() time.Time { return now }

	require.NoError(t, h.bus.Dispatch(ctx, FullRefresh{
		Reason:            "table changed",
		NotifyOthers:      true,
		NotifyOwnReplicas: true,
	}))
	published := h.broadcaster.Published()
	require.Len(t, published, 1)
	require.Equal(t, 1, src.Calls())

	// a replica sharing the instance id receives the same notice
	now = now.Add(time.Second)
	h.service.HandleNotice(ctx, published[0])
	assert.Equal(t, 2, src.Calls())
	assert.Len(t, h.broadcaster.Published(), 1, "remote passes are not re-announced")

	// without the flag the same notice is an echo
	h.service.HandleNotice(ctx, &entity.Notice{Message: "table changed", OriginatingInstance: "svc"})
	assert.Equal(t, 2, src.Calls())
}

func TestFullRefreshNotice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, RefreshOptions{InstanceID: "svc"}, &typeSource{SourceName: "db"})

	require.NoError(t, h.bus.Dispatch(ctx, FullRefresh{
		Reason:            "table changed",
		Sources:           []string{"db"},
		NotifyOthers:      true,
		NotifyOwnReplicas: true,
	}))

	published := h.broadcaster.Published()
	require.Len(t, published, 1)
	assert.Equal(t, &entity.Notice{
		Message:             "table changed",
		OriginatingInstance: "svc",
		NotifyOwnReplicas:   true,
		SourceNameFilter:    []string{"db"},
	}, published[0])
}

func TestPublishFailureDoesNotFailRefresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, RefreshOptions{InstanceID: "svc"})
	h.broadcaster.err = errors.New("broker down")

	err := h.bus.Dispatch(ctx, TypeRefresh{Types: []*entity.DictType{colorType()}, NotifyOthers: true})
	require.NoError(t, err)

	title, ok := text(t, h.store, "Color", "1")
	assert.True(t, ok)
	assert.Equal(t, "Red", title)
}

func TestColorValueRefreshScenario(t *testing.T) {
	ctx := context.Background()
	src := &typeSource{SourceName: "db", types: []*entity.DictType{colorType()}}
	h := newHarness(t, RefreshOptions{InstanceID: "svc"}, src)
	require.NoError(t, h.bus.Dispatch(ctx, FullRefresh{Reason: "startup"}))

	title, ok := text(t, h.store, "Color", "1")
	require.True(t, ok)
	require.Equal(t, "Red", title)

	require.NoError(t, h.bus.Dispatch(ctx, ValueRefresh{
		Values:       []*entity.DictValue{entity.NewDictValue("Color", 2, "Lime")},
		MaintainType: true,
		NotifyOthers: true,
	}))
	title, ok = text(t, h.store, "Color", "2")
	assert.True(t, ok)
	assert.Equal(t, "Lime", title)
	color, err := h.store.GetType(ctx, "Color")
	require.NoError(t, err)
	lime, _ := color.Child("2")
	require.NotNil(t, lime)
	assert.Equal(t, "Lime", lime.Text())

	require.NoError(t, h.bus.Dispatch(ctx, ValueRefresh{
		Values:           []*entity.DictValue{{DictType: "Color", Value: "1"}},
		MaintainType:     true,
		DeleteOrphanType: true,
	}))
	_, ok = text(t, h.store, "Color", "1")
	assert.False(t, ok)
	color, err = h.store.GetType(ctx, "Color")
	require.NoError(t, err)
	require.NotNil(t, color, "type still has a value")
	assert.Equal(t, []string{"2"}, lo.Map(color.Children, func(v *entity.DictValue, _ int) string { return v.Value }))

	require.NoError(t, h.bus.Dispatch(ctx, ValueRefresh{
		Values:           []*entity.DictValue{{DictType: "Color", Value: "2"}},
		MaintainType:     true,
		DeleteOrphanType: true,
	}))
	color, err = h.store.GetType(ctx, "Color")
	require.NoError(t, err)
	assert.Nil(t, color)
	keys, err := h.store.TypeKeys(ctx)
	require.NoError(t, err)
	assert.NotContains(t, keys, "Color")

	published := h.broadcaster.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "svc", published[0].OriginatingInstance)
	assert.True(t, published[0].MaintainType)
	require.Len(t, published[0].Values, 1)
	assert.Equal(t, "Lime", published[0].Values[0].Text())
}

func TestColorValueRefreshThroughReadCache(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()
	backend := store.NewMemoryStore(nil, logger)
	cached := store.NewCachedStore(backend, 16, time.Minute, 0)
	bus := NewRefreshBus(8, logger)
	src := &typeSource{SourceName: "db", types: []*entity.DictType{colorType()}}
	NewRefreshService(bus, NewRegistrar(cached, []repository.Source{src}, logger), cached, nil, RefreshOptions{InstanceID: "svc"}, logger)

	require.NoError(t, bus.Dispatch(ctx, FullRefresh{Reason: "startup"}))
	// request-path reads fill the cache with the original type
	color, err := cached.GetType(ctx, "Color")
	require.NoError(t, err)
	require.Len(t, color.Children, 2)

	require.NoError(t, bus.Dispatch(ctx, ValueRefresh{
		Values:       []*entity.DictValue{entity.NewDictValue("Color", 2, "Lime")},
		MaintainType: true,
	}))
	require.NoError(t, bus.Dispatch(ctx, ValueRefresh{
		Values:           []*entity.DictValue{{DictType: "Color", Value: "1"}},
		MaintainType:     true,
		DeleteOrphanType: true,
	}))

	color, err = backend.GetType(ctx, "Color")
	require.NoError(t, err)
	require.NotNil(t, color)
	require.Len(t, color.Children, 1)
	assert.Equal(t, "2", color.Children[0].Value)
	assert.Equal(t, "Lime", color.Children[0].Text())
	title, _ := text(t, backend, "Color", "2")
	assert.Equal(t, "Lime", title)
	_, ok := text(t, backend, "Color", "1")
	assert.False(t, ok)
}

func TestValueRefreshWithoutMaintainLeavesType(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, RefreshOptions{InstanceID: "svc"})
	require.NoError(t, h.store.StoreType(ctx, colorType()))

	require.NoError(t, h.bus.Dispatch(ctx, ValueRefresh{
		Values: []*entity.DictValue{entity.NewDictValue("Color", 2, "Lime")},
	}))

	title, _ := text(t, h.store, "Color", "2")
	assert.Equal(t, "Lime", title)
	color, err := h.store.GetType(ctx, "Color")
	require.NoError(t, err)
	green, _ := color.Child("2")
	require.NotNil(t, green)
	assert.Equal(t, "Green", green.Text())
}

func TestRefreshBusRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, RefreshOptions{InstanceID: "svc"})

	done := make(chan error, 1)
	go func() { done <- h.bus.Run(ctx) }()

	require.NoError(t, h.bus.Publish(ctx, TypeRefresh{Types: []*entity.DictType{colorType()}}))
	require.Eventually(t, func() bool {
		_, ok := text(t, h.store, "Color", "1")
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bus did not stop")
	}
	assert.ErrorIs(t, h.bus.Publish(context.Background(), FullRefresh{}), ErrBusClosed)
}

func TestListenWithoutBroadcasterBlocksUntilDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	logger := testLogger()
	st := store.NewMemoryStore(nil, logger)
	bus := NewRefreshBus(1, logger)
	svc := NewRefreshService(bus, NewRegistrar(st, nil, logger), st, nil, RefreshOptions{InstanceID: "svc"}, logger)

	assert.NoError(t, svc.Listen(ctx))
	assert.Equal(t, "svc", svc.InstanceID())
}

type flakyBroadcaster struct {
	recordingBroadcaster
	failures int

	mu       sync.Mutex
	attempts int
}

func (b *flakyBroadcaster) Subscribe(ctx context.Context, handle repository.NoticeHandler) error {
	b.mu.Lock()
	b.attempts++
	attempt := b.attempts
	b.mu.Unlock()
	if attempt <= b.failures {
		return errors.New("connection reset")
	}
	handle(ctx, &entity.Notice{OriginatingInstance: "billing", Types: []*entity.DictType{colorType()}})
	<-ctx.Done()
	return nil
}

func (b *flakyBroadcaster) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func TestListenResubscribesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := testLogger()
	st := store.NewMemoryStore(nil, logger)
	bus := NewRefreshBus(1, logger)
	b := &flakyBroadcaster{failures: 3}
	svc := NewRefreshService(bus, NewRegistrar(st, nil, logger), st, b, RefreshOptions{InstanceID: "svc"}, logger)
	svc.retryMin = time.Millisecond
	svc.retryMax = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- svc.Listen(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := text(t, st, "Color", "1")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, b.Attempts())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listen did not stop")
	}
}
