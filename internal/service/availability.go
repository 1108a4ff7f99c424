package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/metrics"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/schedule"
	"mentorbook-backend/internal/utils"
)

const (
	maxSessionLength  = 24 * time.Hour
	maxBufferMinutes  = 24 * 60
	maxHorizonDays    = 365
	maxCalendarRange  = 93 * 24 * time.Hour
	conflictWindowPad = 48 * time.Hour
)

type availabilityService struct {
	tx     repository.TxManager
	repos  *repository.Repositories
	policy config.BookingConfig
	now    Clock
}

func NewAvailabilityService(
	tx repository.TxManager,
	repos *repository.Repositories,
	policy config.BookingConfig,
	clock Clock,
) AvailabilityService {
	if clock == nil {
		clock = systemClock
	}
	return &availabilityService{tx: tx, repos: repos, policy: policy, now: clock}
}

func (s *availabilityService) CreateTemplate(ctx context.Context, ownerID string, tmpl *domain.AvailabilityTemplate) (*domain.AvailabilityTemplate, error) {
	logger.EnterMethod("availabilityService.CreateTemplate", "ownerID", ownerID)
	if ownerID == "" || tmpl == nil {
		return nil, domain.NewValidationError("owner and template are required")
	}

	now := s.now()
	t := *tmpl
	if tmpl.Recurrence != nil {
		rule := *tmpl.Recurrence
		t.Recurrence = &rule
	}
	t.ExcludedDates = append([]time.Time(nil), tmpl.ExcludedDates...)
	t.ID = utils.NewID()
	t.OwnerID = ownerID
	t.Status = domain.TemplateStatusDraft
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.normalize(&t); err != nil {
		logger.ExitMethodWithError("availabilityService.CreateTemplate", err)
		return nil, err
	}

	logger.DatabaseCall("INSERT", "availability_templates", "id", t.ID)
	if err := s.repos.Templates.Create(ctx, &t); err != nil {
		logger.ExitMethodWithError("availabilityService.CreateTemplate", err)
		return nil, err
	}
	logger.ExitMethod("availabilityService.CreateTemplate", "templateID", t.ID)
	return &t, nil
}

// normalize fills defaults and validates the template in place, including a
// trial expansion of its recurrence rule.
func (s *availabilityService) normalize(t *domain.AvailabilityTemplate) error {
	t.StartTime = t.StartTime.UTC()
	t.EndTime = t.EndTime.UTC()
	if t.StartTime.IsZero() || !t.EndTime.After(t.StartTime) {
		return domain.NewValidationError("end time must be after start time")
	}
	if t.EndTime.Sub(t.StartTime) > maxSessionLength {
		return domain.NewValidationError("a session may not exceed 24 hours")
	}
	if t.BufferBeforeMinutes < 0 || t.BufferAfterMinutes < 0 ||
		t.BufferBeforeMinutes > maxBufferMinutes || t.BufferAfterMinutes > maxBufferMinutes {
		return domain.NewValidationError("buffers must be between 0 and 1440 minutes")
	}
	switch t.Visibility {
	case "":
		t.Visibility = domain.VisibilityPublic
	case domain.VisibilityPublic, domain.VisibilityPrivate:
	default:
		return domain.NewValidationError("unknown visibility %q", t.Visibility)
	}
	if t.HorizonDays == 0 {
		t.HorizonDays = s.policy.DefaultHorizonDays
	}
	if t.HorizonDays <= 0 || t.HorizonDays > maxHorizonDays {
		return domain.NewValidationError("horizon must be between 1 and 365 days")
	}
	if t.PriceCents != nil && *t.PriceCents < 0 {
		return domain.NewValidationError("price cannot be negative")
	}
	for i := range t.ExcludedDates {
		t.ExcludedDates[i] = t.ExcludedDates[i].UTC()
	}
	if t.Recurrence != nil && t.Recurrence.Until != nil {
		until := t.Recurrence.Until.UTC()
		t.Recurrence.Until = &until
	}

	_, err := schedule.Expand(t.Base(), t.Recurrence, t.ExcludedDates, t.StartTime.AddDate(0, 0, t.HorizonDays))
	return err
}

func (s *availabilityService) GetTemplate(ctx context.Context, ownerID, templateID string) (*domain.AvailabilityTemplate, error) {
	return loadOwnedTemplate(ctx, s.repos, ownerID, templateID)
}

func (s *availabilityService) ListTemplates(ctx context.Context, ownerID string) ([]domain.AvailabilityTemplate, error) {
	return s.repos.Templates.ListByOwner(ctx, ownerID)
}

func loadOwnedTemplate(ctx context.Context, repos *repository.Repositories, ownerID, templateID string) (*domain.AvailabilityTemplate, error) {
	t, err := repos.Templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return t, nil
}

func (s *availabilityService) PublishTemplate(ctx context.Context, ownerID, templateID string) (*PublishResult, error) {
	logger.EnterMethod("availabilityService.PublishTemplate", "ownerID", ownerID, "templateID", templateID)
	var result *PublishResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		t, err := loadOwnedTemplate(ctx, repos, ownerID, templateID)
		if err != nil {
			return err
		}
		if t.Status != domain.TemplateStatusDraft {
			return domain.NewValidationError("only draft templates can be published, template is %s", t.Status)
		}

		now := s.now()
		result, err = s.materialize(ctx, repos, t, now, nil, domain.OccurrenceStatusOpen)
		if err != nil {
			return err
		}
		t.Status = domain.TemplateStatusPublished
		t.UpdatedAt = now
		return repos.Templates.Update(ctx, t)
	})
	if err != nil {
		logger.ExitMethodWithError("availabilityService.PublishTemplate", err)
		return nil, err
	}
	logger.ExitMethod("availabilityService.PublishTemplate", "created", len(result.Created), "skipped", result.Skipped)
	return result, nil
}

// materialize expands the template from now to its horizon and stores the
// candidates that fit around the owner's other occurrences. Candidates that
// coincide with a kept occurrence are dropped silently.
func (s *availabilityService) materialize(
	ctx context.Context,
	repos *repository.Repositories,
	t *domain.AvailabilityTemplate,
	now time.Time,
	keep []domain.Occurrence,
	status domain.OccurrenceStatus,
) (*PublishResult, error) {
	expanded, err := schedule.Expand(t.Base(), t.Recurrence, t.ExcludedDates, now.AddDate(0, 0, t.HorizonDays))
	if err != nil {
		return nil, err
	}

	kept := make(map[int64]bool, len(keep))
	for _, o := range keep {
		kept[o.StartTime.UnixNano()] = true
	}
	var candidates []domain.Interval
	for _, c := range expanded {
		if c.Start.After(now) && !kept[c.Start.UnixNano()] {
			candidates = append(candidates, c)
		}
	}

	result := &PublishResult{Template: t}
	if len(candidates) == 0 {
		if len(keep) == 0 {
			return nil, domain.NewValidationError("template has no future occurrences to publish")
		}
		return result, nil
	}

	from := candidates[0].Start.Add(-conflictWindowPad)
	to := candidates[len(candidates)-1].End.Add(conflictWindowPad)
	logger.DatabaseCall("SELECT", "occurrences", "ownerID", t.OwnerID, "from", from, "to", to)
	existing, err := repos.Occurrences.ListByOwner(ctx, t.OwnerID, from, to)
	if err != nil {
		return nil, err
	}

	placement, err := schedule.CheckPlacement(candidates, t.Buffer(), existing, t.IsRecurring())
	if err != nil {
		return nil, err
	}

	occs := newOccurrences(t, placement.Accepted, status, now)
	logger.DatabaseCall("INSERT", "occurrences", "count", len(occs))
	if err := repos.Occurrences.CreateBatch(ctx, occs); err != nil {
		return nil, err
	}
	logger.DatabaseResult("INSERT", int64(len(occs)), nil)

	metrics.OccurrencesMaterialized.WithLabelValues("created").Add(float64(len(occs)))
	metrics.OccurrencesMaterialized.WithLabelValues("skipped").Add(float64(placement.Skipped))
	result.Created = occs
	result.Skipped = placement.Skipped
	result.Conflicts = placement.Conflicts
	return result, nil
}

func newOccurrences(t *domain.AvailabilityTemplate, accepted []domain.Interval, status domain.OccurrenceStatus, now time.Time) []domain.Occurrence {
	occs := make([]domain.Occurrence, 0, len(accepted))
	for _, iv := range accepted {
		occs = append(occs, domain.Occurrence{
			ID:                  utils.NewID(),
			TemplateID:          t.ID,
			OwnerID:             t.OwnerID,
			StartTime:           iv.Start,
			EndTime:             iv.End,
			Status:              status,
			Capacity:            1,
			BufferBeforeMinutes: t.BufferBeforeMinutes,
			BufferAfterMinutes:  t.BufferAfterMinutes,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}
	return occs
}

// retireFuture closes the template's future open occurrences and deletes
// the ones no booking ever referenced. Booked occurrences are returned
// untouched.
func retireFuture(ctx context.Context, repos *repository.Repositories, templateID string, now time.Time) ([]domain.Occurrence, error) {
	future, err := repos.Occurrences.ListByTemplate(ctx, templateID, now)
	if err != nil {
		return nil, err
	}
	var booked []domain.Occurrence
	var ids []string
	for _, o := range future {
		switch o.Status {
		case domain.OccurrenceStatusBooked:
			booked = append(booked, o)
			continue
		case domain.OccurrenceStatusOpen:
			if _, err := repos.Occurrences.CompareAndSetStatus(ctx, o.ID, domain.OccurrenceStatusOpen, domain.OccurrenceStatusClosed); err != nil {
				return nil, err
			}
		}
		ids = append(ids, o.ID)
	}
	deleted, err := repos.Occurrences.DeleteUnreferenced(ctx, ids)
	if err != nil {
		return nil, err
	}
	logger.Debug("Retired future occurrences", "templateID", templateID, "deleted", len(deleted), "closed", len(ids)-len(deleted), "booked", len(booked))
	return booked, nil
}

func (s *availabilityService) UpdateTemplate(ctx context.Context, ownerID, templateID string, changes TemplateChanges) (*PublishResult, error) {
	logger.EnterMethod("availabilityService.UpdateTemplate", "ownerID", ownerID, "templateID", templateID)
	var result *PublishResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		t, err := loadOwnedTemplate(ctx, repos, ownerID, templateID)
		if err != nil {
			return err
		}
		if t.Status == domain.TemplateStatusArchived {
			return domain.NewValidationError("archived templates cannot be edited")
		}
		changes.apply(t)
		if err := s.normalize(t); err != nil {
			return err
		}

		now := s.now()
		t.UpdatedAt = now
		result = &PublishResult{Template: t}
		if t.Status != domain.TemplateStatusDraft {
			booked, err := retireFuture(ctx, repos, t.ID, now)
			if err != nil {
				return err
			}
			status := domain.OccurrenceStatusOpen
			if t.Status == domain.TemplateStatusPaused {
				status = domain.OccurrenceStatusClosed
			}
			result, err = s.materialize(ctx, repos, t, now, booked, status)
			if err != nil {
				return err
			}
		}
		return repos.Templates.Update(ctx, t)
	})
	if err != nil {
		logger.ExitMethodWithError("availabilityService.UpdateTemplate", err)
		return nil, err
	}
	logger.ExitMethod("availabilityService.UpdateTemplate", "created", len(result.Created), "skipped", result.Skipped)
	return result, nil
}

func (c TemplateChanges) apply(t *domain.AvailabilityTemplate) {
	if c.StartTime != nil {
		t.StartTime = *c.StartTime
	}
	if c.EndTime != nil {
		t.EndTime = *c.EndTime
	}
	if c.ClearRecurrence {
		t.Recurrence = nil
	} else if c.Recurrence != nil {
		rule := *c.Recurrence
		t.Recurrence = &rule
	}
	if c.ExcludedDates != nil {
		t.ExcludedDates = append([]time.Time(nil), c.ExcludedDates...)
	}
	if c.BufferBeforeMinutes != nil {
		t.BufferBeforeMinutes = *c.BufferBeforeMinutes
	}
	if c.BufferAfterMinutes != nil {
		t.BufferAfterMinutes = *c.BufferAfterMinutes
	}
	if c.Visibility != nil {
		t.Visibility = *c.Visibility
	}
	if c.HorizonDays != nil {
		t.HorizonDays = *c.HorizonDays
	}
	if c.PriceCents != nil {
		price := *c.PriceCents
		t.PriceCents = &price
	}
}

func (s *availabilityService) PauseTemplate(ctx context.Context, ownerID, templateID string) (*domain.AvailabilityTemplate, error) {
	logger.EnterMethod("availabilityService.PauseTemplate", "ownerID", ownerID, "templateID", templateID)
	var tmpl *domain.AvailabilityTemplate
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		t, err := loadOwnedTemplate(ctx, repos, ownerID, templateID)
		if err != nil {
			return err
		}
		if t.Status != domain.TemplateStatusPublished {
			return domain.NewValidationError("only published templates can be paused, template is %s", t.Status)
		}
		now := s.now()
		closed, err := repos.Occurrences.SetStatusByTemplate(ctx, t.ID, now, domain.OccurrenceStatusOpen, domain.OccurrenceStatusClosed)
		if err != nil {
			return err
		}
		logger.DatabaseResult("UPDATE", closed, nil, "table", "occurrences")
		t.Status = domain.TemplateStatusPaused
		t.UpdatedAt = now
		tmpl = t
		return repos.Templates.Update(ctx, t)
	})
	if err != nil {
		logger.ExitMethodWithError("availabilityService.PauseTemplate", err)
		return nil, err
	}
	logger.ExitMethod("availabilityService.PauseTemplate")
	return tmpl, nil
}

// ResumeTemplate reopens the paused template's future occurrences that are
// still part of its expansion and do not collide with anything the owner
// opened meanwhile.
func (s *availabilityService) ResumeTemplate(ctx context.Context, ownerID, templateID string) (*domain.AvailabilityTemplate, error) {
	logger.EnterMethod("availabilityService.ResumeTemplate", "ownerID", ownerID, "templateID", templateID)
	var tmpl *domain.AvailabilityTemplate
	var reopened, skipped int
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		t, err := loadOwnedTemplate(ctx, repos, ownerID, templateID)
		if err != nil {
			return err
		}
		if t.Status != domain.TemplateStatusPaused {
			return domain.NewValidationError("only paused templates can be resumed, template is %s", t.Status)
		}
		now := s.now()

		expanded, err := schedule.Expand(t.Base(), t.Recurrence, t.ExcludedDates, now.AddDate(0, 0, t.HorizonDays))
		if err != nil {
			return err
		}
		current := make(map[int64]bool, len(expanded))
		for _, iv := range expanded {
			current[iv.Start.UnixNano()] = true
		}

		future, err := repos.Occurrences.ListByTemplate(ctx, t.ID, now)
		if err != nil {
			return err
		}
		if len(future) > 0 {
			existing, err := repos.Occurrences.ListByOwner(ctx, t.OwnerID,
				future[0].StartTime.Add(-conflictWindowPad), future[len(future)-1].EndTime.Add(conflictWindowPad))
			if err != nil {
				return err
			}
			index := make(map[string]int, len(existing))
			for i, o := range existing {
				index[o.ID] = i
			}
			for _, o := range future {
				if o.Status != domain.OccurrenceStatusClosed || !current[o.StartTime.UnixNano()] {
					continue
				}
				if hits := schedule.FindConflicts(o.Interval(), o.Buffer(), existing, o.ID); len(hits) > 0 {
					skipped++
					continue
				}
				ok, err := repos.Occurrences.CompareAndSetStatus(ctx, o.ID, domain.OccurrenceStatusClosed, domain.OccurrenceStatusOpen)
				if err != nil {
					return err
				}
				if ok {
					reopened++
					if i, found := index[o.ID]; found {
						existing[i].Status = domain.OccurrenceStatusOpen
					}
				}
			}
		}

		t.Status = domain.TemplateStatusPublished
		t.UpdatedAt = now
		tmpl = t
		return repos.Templates.Update(ctx, t)
	})
	if err != nil {
		logger.ExitMethodWithError("availabilityService.ResumeTemplate", err)
		return nil, err
	}
	logger.ExitMethod("availabilityService.ResumeTemplate", "reopened", reopened, "skipped", skipped)
	return tmpl, nil
}

// DeleteTemplate archives the template and retires its future occurrences.
// It is refused while a future occurrence is booked.
func (s *availabilityService) DeleteTemplate(ctx context.Context, ownerID, templateID string) error {
	logger.EnterMethod("availabilityService.DeleteTemplate", "ownerID", ownerID, "templateID", templateID)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		t, err := loadOwnedTemplate(ctx, repos, ownerID, templateID)
		if err != nil {
			return err
		}
		if t.Status == domain.TemplateStatusArchived {
			return nil
		}
		now := s.now()
		booked, err := retireFuture(ctx, repos, t.ID, now)
		if err != nil {
			return err
		}
		if len(booked) > 0 {
			intervals := make([]domain.Interval, 0, len(booked))
			for _, o := range booked {
				intervals = append(intervals, o.Interval())
			}
			return domain.NewConflictError("template has booked future occurrences", intervals)
		}
		t.Status = domain.TemplateStatusArchived
		t.UpdatedAt = now
		return repos.Templates.Update(ctx, t)
	})
	if err != nil {
		logger.ExitMethodWithError("availabilityService.DeleteTemplate", err)
		return err
	}
	logger.ExitMethod("availabilityService.DeleteTemplate")
	return nil
}

// GetCalendar lists the owner's bookable occurrences in [from, to): open,
// in the future and belonging to a published public template.
func (s *availabilityService) GetCalendar(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Occurrence, error) {
	if ownerID == "" {
		return nil, domain.NewValidationError("owner id is required")
	}
	if !to.After(from) {
		return nil, domain.NewValidationError("calendar range end must be after its start")
	}
	if to.Sub(from) > maxCalendarRange {
		return nil, domain.NewValidationError("calendar range may not exceed 93 days")
	}

	templates, err := s.repos.Templates.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	listed := make(map[string]bool, len(templates))
	for _, t := range templates {
		listed[t.ID] = t.Status == domain.TemplateStatusPublished && t.Visibility == domain.VisibilityPublic
	}

	occs, err := s.repos.Occurrences.ListByOwner(ctx, ownerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.Occurrence, 0, len(occs))
	for _, o := range occs {
		if o.Status == domain.OccurrenceStatusOpen && listed[o.TemplateID] && o.StartTime.After(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *availabilityService) ExtendHorizons(ctx context.Context) (int, error) {
	templates, err := s.repos.Templates.ListByStatus(ctx, domain.TemplateStatusPublished)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for i := range templates {
		if !templates[i].IsRecurring() {
			continue
		}
		n, err := s.extend(ctx, templates[i].ID)
		if err != nil {
			logger.Error("Failed to extend template horizon", "templateID", templates[i].ID, "error", err)
			errs = append(errs, fmt.Errorf("template %s: %w", templates[i].ID, err))
			continue
		}
		created += n
	}
	return created, errors.Join(errs...)
}

// extend materializes the candidates that fall after the template's latest
// occurrence and inside its horizon.
func (s *availabilityService) extend(ctx context.Context, templateID string) (int, error) {
	created := 0
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		t, err := repos.Templates.GetByID(ctx, templateID)
		if err != nil {
			return err
		}
		if t.Status != domain.TemplateStatusPublished {
			return nil
		}
		now := s.now()
		expanded, err := schedule.Expand(t.Base(), t.Recurrence, t.ExcludedDates, now.AddDate(0, 0, t.HorizonDays))
		if err != nil {
			return err
		}
		all, err := repos.Occurrences.ListByTemplate(ctx, t.ID, time.Time{})
		if err != nil {
			return err
		}
		latest := now
		for _, o := range all {
			if o.StartTime.After(latest) {
				latest = o.StartTime
			}
		}

		var candidates []domain.Interval
		for _, iv := range expanded {
			if iv.Start.After(latest) {
				candidates = append(candidates, iv)
			}
		}
		if len(candidates) == 0 {
			return nil
		}

		existing, err := repos.Occurrences.ListByOwner(ctx, t.OwnerID,
			candidates[0].Start.Add(-conflictWindowPad), candidates[len(candidates)-1].End.Add(conflictWindowPad))
		if err != nil {
			return err
		}
		placement := schedule.Partition(candidates, t.Buffer(), existing)
		occs := newOccurrences(t, placement.Accepted, domain.OccurrenceStatusOpen, now)
		if err := repos.Occurrences.CreateBatch(ctx, occs); err != nil {
			return err
		}
		metrics.OccurrencesMaterialized.WithLabelValues("created").Add(float64(len(occs)))
		metrics.OccurrencesMaterialized.WithLabelValues("skipped").Add(float64(placement.Skipped))
		created = len(occs)
		return nil
	})
	return created, err
}
