package http

import (
	"net/http"
	"strings"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/service"
)

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// recurrenceRequest is the wire form of a rule; weekdays use RFC 5545 codes.
type recurrenceRequest struct {
	Frequency domain.Frequency `json:"frequency"`
	Interval  int              `json:"interval,omitempty"`
	Count     int              `json:"count,omitempty"`
	Until     *time.Time       `json:"until,omitempty"`
	ByWeekday []string         `json:"by_weekday,omitempty"`
}

func (rr *recurrenceRequest) toRule() (*domain.RecurrenceRule, error) {
	rule := &domain.RecurrenceRule{
		Frequency: domain.Frequency(strings.ToUpper(string(rr.Frequency))),
		Interval:  rr.Interval,
		Count:     rr.Count,
		Until:     rr.Until,
	}
	for _, code := range rr.ByWeekday {
		wd, ok := weekdayCodes[strings.ToUpper(code)]
		if !ok {
			return nil, &domain.Error{Kind: domain.KindInvalidRecurrence, Message: "unknown weekday " + code}
		}
		rule.ByWeekday = append(rule.ByWeekday, wd)
	}
	return rule, nil
}

type templateRequest struct {
	StartTime           time.Time          `json:"start_time"`
	EndTime             time.Time          `json:"end_time"`
	Recurrence          *recurrenceRequest `json:"recurrence,omitempty"`
	ExcludedDates       []time.Time        `json:"excluded_dates,omitempty"`
	BufferBeforeMinutes int                `json:"buffer_before_minutes"`
	BufferAfterMinutes  int                `json:"buffer_after_minutes"`
	Visibility          domain.Visibility  `json:"visibility,omitempty"`
	HorizonDays         int                `json:"horizon_days,omitempty"`
	PriceCents          *int64             `json:"price_cents,omitempty"`
}

// updateTemplateRequest mirrors service.TemplateChanges: absent fields keep
// their current value.
type updateTemplateRequest struct {
	StartTime           *time.Time         `json:"start_time,omitempty"`
	EndTime             *time.Time         `json:"end_time,omitempty"`
	Recurrence          *recurrenceRequest `json:"recurrence,omitempty"`
	ClearRecurrence     bool               `json:"clear_recurrence,omitempty"`
	ExcludedDates       []time.Time        `json:"excluded_dates,omitempty"`
	BufferBeforeMinutes *int               `json:"buffer_before_minutes,omitempty"`
	BufferAfterMinutes  *int               `json:"buffer_after_minutes,omitempty"`
	Visibility          *domain.Visibility `json:"visibility,omitempty"`
	HorizonDays         *int               `json:"horizon_days,omitempty"`
	PriceCents          *int64             `json:"price_cents,omitempty"`
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tmpl := &domain.AvailabilityTemplate{
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		ExcludedDates:       req.ExcludedDates,
		BufferBeforeMinutes: req.BufferBeforeMinutes,
		BufferAfterMinutes:  req.BufferAfterMinutes,
		Visibility:          domain.Visibility(strings.ToUpper(string(req.Visibility))),
		HorizonDays:         req.HorizonDays,
		PriceCents:          req.PriceCents,
	}
	if req.Recurrence != nil {
		rule, err := req.Recurrence.toRule()
		if err != nil {
			writeError(w, r, err)
			return
		}
		tmpl.Recurrence = rule
	}
	created, err := h.svc.Availability.CreateTemplate(r.Context(), UserIDFromContext(r.Context()), tmpl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Availability.GetTemplate(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Availability.ListTemplates(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.AvailabilityTemplate]{Items: nonNil(items), Total: int32(len(items))})
}

func (h *Handler) PublishTemplate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Availability.PublishTemplate(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req updateTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	changes := service.TemplateChanges{
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		ClearRecurrence:     req.ClearRecurrence,
		ExcludedDates:       req.ExcludedDates,
		BufferBeforeMinutes: req.BufferBeforeMinutes,
		BufferAfterMinutes:  req.BufferAfterMinutes,
		Visibility:          req.Visibility,
		HorizonDays:         req.HorizonDays,
		PriceCents:          req.PriceCents,
	}
	if req.Recurrence != nil {
		rule, err := req.Recurrence.toRule()
		if err != nil {
			writeError(w, r, err)
			return
		}
		changes.Recurrence = rule
	}
	res, err := h.svc.Availability.UpdateTemplate(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"), changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) PauseTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Availability.PauseTemplate(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ResumeTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Availability.ResumeTemplate(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Availability.DeleteTemplate(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const defaultCalendarDays = 30

func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	from, err := timeQuery(r, "from", now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := timeQuery(r, "to", from.AddDate(0, 0, defaultCalendarDays))
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.svc.Availability.GetCalendar(r.Context(), pathVar(r, "ownerID"), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Occurrence]{Items: nonNil(items), Total: int32(len(items))})
}
