// internal/infra/httpapi/handlers.go
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"policy_renewal_tracker/internal/app"
	"policy_renewal_tracker/internal/domain/notify"
	idb "policy_renewal_tracker/internal/infra/database"
	"policy_renewal_tracker/internal/infra/scheduler"
)

// Handler holds the dependencies of the renewal HTTP surface.
type Handler struct {
	Renewals  *app.RenewalService
	Scheduler *scheduler.RenewalScheduler
	Logger    *logrus.Entry
}

func NewHandler(renewals *app.RenewalService, sched *scheduler.RenewalScheduler, logger *logrus.Entry) *Handler {
	return &Handler{Renewals: renewals, Scheduler: sched, Logger: logger}
}

// Router builds the chi router for the renewal API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api/renewals", func(r chi.Router) {
		r.Get("/", h.listCategorized)
		r.Get("/due", h.listDue)
		r.Get("/overdue", h.listOverdue)
		r.Get("/stats", h.stats)
		r.Post("/bulk-remind", h.bulkRemind)
		r.Route("/{policyID}", func(r chi.Router) {
			r.Get("/", h.getOne)
			r.Patch("/", h.updateStatus)
			r.Post("/remind", h.sendReminder)
			r.Post("/process", h.processRenewal)
		})
	})

	r.Route("/api/scheduler", func(r chi.Router) {
		r.Get("/status", h.schedulerStatus)
		r.Post("/trigger", h.schedulerTrigger)
		r.Put("/config", h.schedulerConfigure)
	})

	return r
}

func (h *Handler) listDue(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid days parameter")
			return
		}
		days = parsed
	}
	views, err := h.Renewals.DueForRenewal(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, views)
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	views, err := h.Renewals.Overdue(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, views)
}

func (h *Handler) listCategorized(w http.ResponseWriter, r *http.Request) {
	out, err := h.Renewals.AllCategorized(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getOne(w http.ResponseWriter, r *http.Request) {
	view, err := h.Renewals.ByID(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

type updateRenewalRequest struct {
	RenewalStatus *string `json:"renewalStatus"`
	Notes         *string `json:"notes"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateRenewalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.Renewals.UpdateStatus(r.Context(), chi.URLParam(r, "policyID"), app.UpdateRenewalInput{
		Status: req.RenewalStatus,
		Notes:  req.Notes,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

type sendReminderRequest struct {
	Subject     string   `json:"subject"`
	Message     string   `json:"message"`
	Channels    []string `json:"channels"`
	NotifyAdmin *bool    `json:"notifyAdmin"`
}

func (h *Handler) sendReminder(w http.ResponseWriter, r *http.Request) {
	var req sendReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	channels, err := parseChannels(req.Channels)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	notifyAdmin := true
	if req.NotifyAdmin != nil {
		notifyAdmin = *req.NotifyAdmin
	}

	result, err := h.Renewals.SendReminder(
		r.Context(),
		chi.URLParam(r, "policyID"),
		app.ReminderMessage{Subject: req.Subject, Message: req.Message},
		channels,
		notifyAdmin,
	)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

type bulkRemindRequest struct {
	DaysBeforeExpiry int      `json:"daysBeforeExpiry"`
	Channels         []string `json:"channels"`
}

func (h *Handler) bulkRemind(w http.ResponseWriter, r *http.Request) {
	var req bulkRemindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	channels, err := parseChannels(req.Channels)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.Renewals.SendBulkReminders(r.Context(), req.DaysBeforeExpiry, channels)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

type processRenewalRequest struct {
	InsuranceStartDate *string `json:"insuranceStartDate"`
	InsuranceEndDate   *string `json:"insuranceEndDate"`
}

func (h *Handler) processRenewal(w http.ResponseWriter, r *http.Request) {
	var req processRenewalRequest
	// An empty body is fine: both dates are optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var dates app.RenewalDates
	var err error
	if dates.InsuranceStartDate, err = parseOptionalDate(req.InsuranceStartDate); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid insuranceStartDate: %v", err))
		return
	}
	if dates.InsuranceEndDate, err = parseOptionalDate(req.InsuranceEndDate); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid insuranceEndDate: %v", err))
		return
	}

	view, err := h.Renewals.ProcessRenewal(r.Context(), chi.URLParam(r, "policyID"), dates)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Renewals.Stats(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.Scheduler.GetStatus())
}

func (h *Handler) schedulerTrigger(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Scheduler.TriggerNow(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrSweepRunning) {
			h.respondJSON(w, http.StatusConflict, map[string]interface{}{
				"success": false,
				"reason":  app.SweepAlreadyRunningReason,
			})
			return
		}
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

func (h *Handler) schedulerConfigure(w http.ResponseWriter, r *http.Request) {
	var patch scheduler.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := h.Scheduler.UpdateConfig(patch)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, cfg)
}

// --- helpers ---

func parseChannels(raw []string) ([]notify.Channel, error) {
	if len(raw) == 0 {
		return []notify.Channel{notify.ChannelEmail}, nil
	}
	channels := make([]notify.Channel, 0, len(raw))
	for _, c := range raw {
		ch, err := notify.ParseChannel(c)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, *raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", *raw, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, idb.ErrPolicyNotFound):
		h.respondError(w, http.StatusNotFound, "policy not found")
	case errors.Is(err, app.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.WithError(err).Error("Request failed")
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
