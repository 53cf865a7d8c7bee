package gateway

import (
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/status"

	"github.com/eslsoft/dictsync/internal/adapter/mapping"
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/usecase"
)

// Handler serves the dictionary management API on a gateway mux.
type Handler struct {
	dict      usecase.DictUsecase
	marshaler runtime.Marshaler
	logger    logrus.FieldLogger
}

func NewHandler(dict usecase.DictUsecase, logger *logrus.Logger) *Handler {
	return &Handler{
		dict:      dict,
		marshaler: &runtime.JSONBuiltin{},
		logger:    logger.WithField("component", "gateway"),
	}
}

// NewServeMux builds a gateway mux with every management route registered.
func NewServeMux(h *Handler) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	if err := h.Register(mux); err != nil {
		return nil, err
	}
	return mux, nil
}

func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, pattern string
		handle          runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/types", h.listTypes},
		{http.MethodGet, "/v1/types/{type}", h.getType},
		{http.MethodGet, "/v1/types/{type}/values/{value}", h.lookupValue},
		{http.MethodPost, "/v1/refresh", h.refresh},
		{http.MethodPost, "/v1/types", h.putTypes},
		{http.MethodPost, "/v1/values", h.putValues},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handle); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	systemOnly, _ := strconv.ParseBool(q.Get("system"))
	withChildren, _ := strconv.ParseBool(q.Get("children"))

	types, err := h.dict.ListTypes(r.Context(), usecase.ListTypesQuery{
		Filter:     q.Get("filter"),
		SystemOnly: systemOnly,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if withChildren {
		h.write(w, http.StatusOK, map[string]any{"types": types})
		return
	}
	h.write(w, http.StatusOK, map[string]any{"types": lo.Map(types, func(t *entity.DictType, _ int) mapping.TypeSummary {
		return mapping.ToTypeSummary(t)
	})})
}

func (h *Handler) getType(w http.ResponseWriter, r *http.Request, params map[string]string) {
	t, err := h.dict.GetType(r.Context(), params["type"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, http.StatusOK, t)
}

func (h *Handler) lookupValue(w http.ResponseWriter, r *http.Request, params map[string]string) {
	v, err := h.dict.LookupValue(r.Context(), params["type"], params["value"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, http.StatusOK, v)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req mapping.RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.accepted(w, r, h.dict.Refresh(r.Context(), req.ToEvent()))
}

func (h *Handler) putTypes(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req mapping.PutTypesRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.accepted(w, r, h.dict.PutTypes(r.Context(), req.ToEvent()))
}

func (h *Handler) putValues(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req mapping.PutValuesRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.accepted(w, r, h.dict.PutValues(r.Context(), req.ToEvent()))
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := h.marshaler.NewDecoder(r.Body).Decode(dst); err != nil {
		h.write(w, http.StatusBadRequest, errorBody{Code: "InvalidArgument", Message: "decode request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) accepted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, http.StatusAccepted, mapping.Accepted{Status: "queued"})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := status.Convert(mapping.ToStatus(err))
	code := runtime.HTTPStatusFromCode(st.Code())
	if code >= http.StatusInternalServerError {
		h.logger.WithError(err).Errorf("%s %s failed", r.Method, r.URL.Path)
	}
	h.write(w, code, errorBody{Code: st.Code().String(), Message: st.Message()})
}

func (h *Handler) write(w http.ResponseWriter, code int, body any) {
	data, err := h.marshaler.Marshal(body)
	if err != nil {
		h.logger.WithError(err).Error("marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", h.marshaler.ContentType(body))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
