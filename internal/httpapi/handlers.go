package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"neosweat/internal/core"
	"neosweat/pkg/domain"
)

type handler struct {
	svc RecordService
	log core.Logger
}

type createRecordRequest struct {
	ID int `json:"id"`
}

type noteRequest struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

type prickRequest struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
}

type calibrationRequest struct {
	Gradient  *float64 `json:"gradient"`
	Intercept *float64 `json:"intercept"`
}

type delayRequest struct {
	Minutes *int64 `json:"minutes"`
}

type listResponse struct {
	Records []RecordView `json:"records"`
	Count   int          `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": h.svc.CountRecords(r.Context())})
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	records := h.svc.ListRecords(r.Context())
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, NewRecordView(rec))
	}
	writeJSON(w, http.StatusOK, listResponse{Records: views, Count: len(views)})
}

func (h *handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.AddRecord(r.Context(), domain.NewRecord(req.ID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewRecordView(rec))
}

func (h *handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.GetRecord(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRecordView(rec))
}

func (h *handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteRecord(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) addNote(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if !decode(w, r, &req) {
		return
	}
	h.respondRecord(w, func() (domain.Record, error) {
		return h.svc.AddNote(r.Context(), id, req.Timestamp, req.Text)
	})
}

func (h *handler) addPrickReading(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req prickRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "value is required"})
		return
	}
	h.respondRecord(w, func() (domain.Record, error) {
		return h.svc.AddPrickReading(r.Context(), id, req.Timestamp, *req.Value)
	})
}

func (h *handler) addCalibration(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req calibrationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Gradient == nil || req.Intercept == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "gradient and intercept are required"})
		return
	}
	h.respondRecord(w, func() (domain.Record, error) {
		return h.svc.AddCalibration(r.Context(), id, *req.Gradient, *req.Intercept)
	})
}

func (h *handler) addDelay(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req delayRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Minutes == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "minutes is required"})
		return
	}
	h.respondRecord(w, func() (domain.Record, error) {
		return h.svc.AddDelay(r.Context(), id, *req.Minutes)
	})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RefreshSweatReadings(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) respondRecord(w http.ResponseWriter, fn func() (domain.Record, error)) {
	rec, err := fn()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRecordView(rec))
}

func recordID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid record id %q", raw)})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	var (
		nf  *domain.NotFoundError
		ae  *domain.AlreadyExistsError
		pe  *domain.ParseError
		ve  *domain.ValidationError
		ret *domain.RetrievalError
		rv  domain.RuleViolationError
	)
	switch {
	case errors.As(err, &ret):
		return http.StatusBadGateway
	case errors.As(err, &rv):
		return http.StatusConflict
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ae):
		return http.StatusConflict
	case errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
