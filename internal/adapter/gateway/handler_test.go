package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/dictsync/internal/adapter/store"
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/usecase"
)

type fixture struct {
	srv    *httptest.Server
	store  *store.MemoryStore
	mu     sync.Mutex
	events []usecase.Event
}

func (f *fixture) record(_ context.Context, ev usecase.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fixture) received() []usecase.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecase.Event(nil), f.events...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{store: store.NewMemoryStore(nil, logger)}
	bus := usecase.NewRefreshBus(8, logger)
	for _, kind := range []usecase.EventKind{usecase.KindFullRefresh, usecase.KindTypeRefresh, usecase.KindValueRefresh} {
		bus.Subscribe(kind, f.record)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bus.Run(ctx) }()
	t.Cleanup(cancel)

	dict := usecase.NewDictUsecase(f.store, usecase.NewTreeResolver(f.store, 8), bus)
	mux, err := NewServeMux(NewHandler(dict, logger))
	require.NoError(t, err)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	sh := entity.NewDictValue("Region", "sh", "Shanghai")
	sh.ParentValue = "cn"
	require.NoError(t, f.store.StoreType(ctx, &entity.DictType{Type: "Region", Title: "Region", Children: []*entity.DictValue{
		entity.NewDictValue("Region", "cn", "China"), sh,
	}}))
	require.NoError(t, f.store.StoreSystemType(ctx, &entity.DictType{Type: "Gender", Children: []*entity.DictValue{
		entity.NewDictValue("Gender", "f", "Female"),
	}}))
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestListTypes(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/v1/types", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["types"], 2)

	code, body = f.do(t, http.MethodGet, "/v1/types?system=true", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["types"], 1)
	assert.Equal(t, "Gender", body["types"].([]any)[0].(map[string]any)["type"])

	code, body = f.do(t, http.MethodGet, "/v1/types?filter=size%20%3E%201&children=true", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["types"], 1)
	region := body["types"].([]any)[0].(map[string]any)
	assert.Equal(t, "Region", region["type"])
	assert.Len(t, region["children"], 2)

	code, body = f.do(t, http.MethodGet, "/v1/types?filter=size%20%3E", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidArgument", body["code"])
}

func TestGetTypeAndLookup(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/v1/types/Region", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Region", body["type"])

	code, body = f.do(t, http.MethodGet, "/v1/types/Region/values/sh", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Shanghai", body["title"])
	assert.Equal(t, []any{"cn"}, body["parents"])

	code, body = f.do(t, http.MethodGet, "/v1/types/Planet", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NotFound", body["code"])

	code, _ = f.do(t, http.MethodGet, "/v1/types/Region/values/mars", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTriggersQueueEvents(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/v1/refresh", `{"sources":["table"],"notifyOthers":true}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "queued", body["status"])

	code, _ = f.do(t, http.MethodPost, "/v1/types", `{"types":[{"type":"Color","children":[{"value":"1","title":"Red"}]}]}`)
	require.Equal(t, http.StatusAccepted, code)

	code, _ = f.do(t, http.MethodPost, "/v1/values", `{"values":[{"dictType":"Color","value":"1","title":null}],"maintainType":true}`)
	require.Equal(t, http.StatusAccepted, code)

	code, _ = f.do(t, http.MethodPost, "/v1/refresh", "")
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool { return len(f.received()) == 4 }, time.Second, 5*time.Millisecond)
	events := f.received()

	full := events[0].(usecase.FullRefresh)
	assert.Equal(t, []string{"table"}, full.Sources)
	assert.True(t, full.NotifyOthers)
	assert.Equal(t, "manual refresh", full.Reason)

	types := events[1].(usecase.TypeRefresh)
	require.Len(t, types.Types, 1)
	assert.Equal(t, "Color", types.Types[0].Type)

	values := events[2].(usecase.ValueRefresh)
	require.Len(t, values.Values, 1)
	assert.True(t, values.Values[0].IsTombstone())
	assert.True(t, values.MaintainType)

	assert.Equal(t, "manual refresh", events[3].(usecase.FullRefresh).Reason)
}

func TestTriggersRejectBadInput(t *testing.T) {
	f := newFixture(t)

	for name, tc := range map[string]struct{ path, body string }{
		"broken json":     {"/v1/refresh", `{"sources":`},
		"no types":        {"/v1/types", `{"types":[]}`},
		"type without id": {"/v1/types", `{"types":[{"title":"x","children":[]}]}`},
		"no values":       {"/v1/values", `{}`},
		"value no type":   {"/v1/values", `{"values":[{"value":"1","title":"x"}]}`},
	} {
		t.Run(name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "InvalidArgument", body["code"])
		})
	}
	assert.Empty(t, f.received())
}
