package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/service"
	"github.com/johnagius/eikon-eod/internal/store"
)

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eod_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eod_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// staffHeader carries the session identity of the person driving the UI. The
// session provider is outside this core; the facade just forwards the name.
const staffHeader = "X-Staff-Name"

// Handler is the thin HTTP facade the browser UI drives. It owns no business
// rules; every decision is delegated to the lifecycle and reporting services.
type Handler struct {
	lifecycle *service.Lifecycle
	reporting *service.Reporting
	ledger    *store.AuditLedger
	contacts  *store.ContactStore
	log       *zap.Logger
}

func NewHandler(lc *service.Lifecycle, rep *service.Reporting, ledger *store.AuditLedger, contacts *store.ContactStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{lifecycle: lc, reporting: rep, ledger: ledger, contacts: contacts, log: log}
}

// Register wires all routes onto the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/records/{location}/{date}", h.LoadRecord).Methods("GET")
	r.HandleFunc("/records/{location}/{date}", h.SaveRecord).Methods("PUT")
	r.HandleFunc("/records/{location}/{date}/lock", h.LockRecord).Methods("POST")
	r.HandleFunc("/records/{location}/{date}/unlock", h.UnlockRecord).Methods("POST")
	r.HandleFunc("/records/{location}/{date}/cheques", h.AddChequeLine).Methods("POST")
	r.HandleFunc("/records/{location}/{date}/paidouts", h.AddPaidOutLine).Methods("POST")
	r.HandleFunc("/records/{location}/{date}/print", h.PrintRecord).Methods("GET")
	r.HandleFunc("/reports/{location}/month/{yearMonth}", h.MonthSummary).Methods("GET")
	r.HandleFunc("/reports/{location}/range", h.RangeReport).Methods("GET")
	r.HandleFunc("/audit/{location}/{date}", h.AuditTrail).Methods("GET")
	r.HandleFunc("/contacts", h.ListContacts).Methods("GET")
	r.HandleFunc("/contacts", h.PutContact).Methods("POST")
	r.HandleFunc("/admin/clear", h.AdminClear).Methods("POST")
}

func (h *Handler) LoadRecord(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/records"))
	defer timer.ObserveDuration()

	vars := mux.Vars(r)
	rec, err := h.lifecycle.LoadOrDefault(r.Context(), vars["date"], vars["location"], r.Header.Get(staffHeader))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/records")
		return
	}
	h.respondJSON(w, http.StatusOK, rec, "GET", "/records")
}

func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("PUT", "/records"))
	defer timer.ObserveDuration()

	vars := mux.Vars(r)
	var rec domain.EodRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/records")
		return
	}
	// The path is authoritative for the key, and the session header for the
	// actor; neither is accepted from the payload.
	rec.Date = vars["date"]
	rec.LocationName = vars["location"]
	rec.CreatedBy = r.Header.Get(staffHeader)

	saved, err := h.lifecycle.Save(r.Context(), &rec)
	if err != nil {
		h.respondServiceError(w, err, "PUT", "/records")
		return
	}
	h.respondJSON(w, http.StatusOK, saved, "PUT", "/records")
}

func (h *Handler) LockRecord(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/records/lock"))
	defer timer.ObserveDuration()

	vars := mux.Vars(r)
	rec, err := h.lifecycle.LoadOrDefault(r.Context(), vars["date"], vars["location"], r.Header.Get(staffHeader))
	if err != nil {
		h.respondServiceError(w, err, "POST", "/records/lock")
		return
	}

	locked, err := h.lifecycle.Lock(r.Context(), rec)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/records/lock")
		return
	}
	h.respondJSON(w, http.StatusOK, locked, "POST", "/records/lock")
}

func (h *Handler) UnlockRecord(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/records/unlock"))
	defer timer.ObserveDuration()

	vars := mux.Vars(r)
	var body struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/records/unlock")
		return
	}

	rec, err := h.lifecycle.LoadOrDefault(r.Context(), vars["date"], vars["location"], r.Header.Get(staffHeader))
	if err != nil {
		h.respondServiceError(w, err, "POST", "/records/unlock")
		return
	}

	unlocked, err := h.lifecycle.Unlock(r.Context(), rec, body.Credential)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/records/unlock")
		return
	}
	h.respondJSON(w, http.StatusOK, unlocked, "POST", "/records/unlock")
}

// AddChequeLine returns the record with one more cheque slot. The slot is not
// persisted here; the UI edits its copy and persists through save, which is
// where validation runs.
func (h *Handler) AddChequeLine(w http.ResponseWriter, r *http.Request) {
	h.addLine(w, r, "/records/cheques", h.lifecycle.AddChequeLine)
}

func (h *Handler) AddPaidOutLine(w http.ResponseWriter, r *http.Request) {
	h.addLine(w, r, "/records/paidouts", h.lifecycle.AddPaidOutLine)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request, endpoint string, add func(*domain.EodRecord) error) {
	vars := mux.Vars(r)
	rec, err := h.lifecycle.LoadOrDefault(r.Context(), vars["date"], vars["location"], r.Header.Get(staffHeader))
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	if err := add(rec); err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, rec, "POST", endpoint)
}

func (h *Handler) PrintRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ds, err := h.reporting.PrintDataset(r.Context(), vars["date"], vars["location"], r.Header.Get(staffHeader))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/records/print")
		return
	}
	h.respondJSON(w, http.StatusOK, ds, "GET", "/records/print")
}

func (h *Handler) MonthSummary(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	summary, err := h.reporting.MonthSummary(r.Context(), vars["location"], vars["yearMonth"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/reports/month")
		return
	}
	h.respondJSON(w, http.StatusOK, summary, "GET", "/reports/month")
}

func (h *Handler) RangeReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	rows, err := h.reporting.RangeReport(r.Context(), vars["location"], from, to, r.Header.Get(staffHeader))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/reports/range")
		return
	}
	h.respondJSON(w, http.StatusOK, rows, "GET", "/reports/range")
}

func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entries, err := h.ledger.Query(r.Context(), vars["date"], vars["location"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/audit")
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", "/audit")
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.List(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "GET", "/contacts")
		return
	}
	h.respondJSON(w, http.StatusOK, contacts, "GET", "/contacts")
}

func (h *Handler) PutContact(w http.ResponseWriter, r *http.Request) {
	var c domain.Contact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/contacts")
		return
	}

	saved, err := h.contacts.Put(r.Context(), c)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/contacts")
		return
	}
	h.respondJSON(w, http.StatusCreated, saved, "POST", "/contacts")
}

func (h *Handler) AdminClear(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/admin/clear")
		return
	}

	if err := h.lifecycle.AdminClear(r.Context(), body.Location, r.Header.Get(staffHeader)); err != nil {
		h.respondServiceError(w, err, "POST", "/admin/clear")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, "POST", "/admin/clear")
}

// Helpers

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.respondError(w, http.StatusUnprocessableEntity, vErr.Reason, method, endpoint)
	case errors.Is(err, service.ErrLocked):
		h.respondError(w, http.StatusConflict, "Record is locked", method, endpoint)
	case errors.Is(err, service.ErrAlreadyLocked):
		h.respondError(w, http.StatusConflict, "Record is already locked", method, endpoint)
	case errors.Is(err, service.ErrNotLocked):
		h.respondError(w, http.StatusConflict, "Record is not locked", method, endpoint)
	case errors.Is(err, service.ErrInvalidCredential):
		h.respondError(w, http.StatusForbidden, "Unlock credential rejected", method, endpoint)
	case errors.Is(err, service.ErrInvalidRange):
		h.respondError(w, http.StatusBadRequest, "Range end precedes start", method, endpoint)
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Record not found", method, endpoint)
	case errors.Is(err, store.ErrStaleWrite):
		h.respondError(w, http.StatusConflict, "Record changed since it was loaded", method, endpoint)
	default:
		h.log.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Storage error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
