package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"meunegocio/backend/internal/domain"
	"meunegocio/backend/internal/store"
)

// expectedEventAmount prices an agenda event. An approved quote wins; without
// one the linked services and products are summed at their current prices.
func (s *Service) expectedEventAmount(ctx context.Context, tenantID string, quoteID string, serviceIDs []string, productIDs []string, requireApproved bool) (int64, error) {
	if quoteID != "" {
		quote, err := s.repo.GetQuoteByID(ctx, tenantID, quoteID)
		if err != nil {
			return 0, err
		}
		if requireApproved && quote.Status != domain.QuoteApproved {
			return 0, fmt.Errorf("%w: quote %s is not approved", store.ErrInvalidInput, quoteID)
		}
		return quote.TotalCents, nil
	}

	var total int64
	for _, id := range serviceIDs {
		svc, err := s.repo.GetServiceByID(ctx, tenantID, id)
		if err != nil {
			return 0, err
		}
		total += svc.PriceCents
	}
	for _, id := range productIDs {
		product, err := s.repo.GetProductByID(ctx, tenantID, id)
		if err != nil {
			return 0, err
		}
		total += product.PriceCents
	}
	return total, nil
}

// syncEventForecast keeps the event's single pending income entry in step
// with its expected amount and date. A paid entry means the money already
// arrived and the forecast is left alone.
func (s *Service) syncEventForecast(ctx context.Context, tenantID string, event domain.AgendaEvent) {
	if _, err := s.repo.FindPaidIncomeByEvent(ctx, tenantID, event.ID); err == nil {
		return
	}

	pending, err := s.repo.FindPendingIncomeByEvent(ctx, tenantID, event.ID)
	if event.ExpectedAmountCents <= 0 {
		if err == nil {
			if delErr := s.repo.DeleteTransaction(ctx, tenantID, pending.ID); delErr != nil {
				log.Printf("[service] WARN: failed to drop event forecast event=%s: %v", event.ID, delErr)
			}
		}
		return
	}
	switch {
	case err == nil:
		pending.AmountCents = event.ExpectedAmountCents
		pending.DueDate = event.StartsAt
		pending.Description = fmt.Sprintf("Agendamento: %s", event.Title)
		if _, err := s.repo.UpdateTransaction(ctx, *pending); err != nil {
			log.Printf("[service] WARN: failed to update event forecast event=%s: %v", event.ID, err)
		}
	case errors.Is(err, store.ErrNotFound):
		category, catErr := s.repo.FindOrCreateCategory(ctx, tenantID, domain.CategoryCodeVendas, "Vendas", domain.TxKindIncome)
		if catErr != nil {
			log.Printf("[service] WARN: failed to resolve sales category event=%s: %v", event.ID, catErr)
			return
		}
		accountID := ""
		if account, accErr := s.repo.GetDefaultFinancialAccount(ctx, tenantID); accErr == nil {
			accountID = account.ID
		}
		tx := domain.Transaction{
			TenantID:         tenantID,
			Kind:             domain.TxKindIncome,
			Status:           domain.TxStatusPending,
			Description:      fmt.Sprintf("Agendamento: %s", event.Title),
			AmountCents:      event.ExpectedAmountCents,
			InstallmentTotal: 1,
			CategoryID:       category.ID,
			CustomerID:       event.CustomerID,
			EventID:          event.ID,
			QuoteID:          event.QuoteID,
			AccountID:        accountID,
			Date:             event.StartsAt,
			DueDate:          event.StartsAt,
		}
		if _, err := s.repo.CreateTransaction(ctx, tx); err != nil {
			log.Printf("[service] WARN: failed to create event forecast event=%s: %v", event.ID, err)
		}
	default:
		log.Printf("[service] WARN: failed to look up event forecast event=%s: %v", event.ID, err)
	}
}

func (s *Service) upsertEventNotification(ctx context.Context, tenantID string, event domain.AgendaEvent) {
	due := event.StartsAt
	if _, err := s.repo.UpsertNotification(ctx, domain.Notification{
		TenantID:            tenantID,
		EventID:             event.ID,
		Type:                domain.NotificationTypeAgendaEvent,
		Status:              domain.NotificationPending,
		Title:               event.Title,
		ExpectedAmountCents: event.ExpectedAmountCents,
		DueAt:               &due,
	}); err != nil {
		log.Printf("[service] WARN: failed to upsert event notification event=%s: %v", event.ID, err)
	}
}

func (s *Service) CreateAgendaEvent(ctx context.Context, req domain.AgendaEventCreateRequest) (domain.AgendaEvent, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return domain.AgendaEvent{}, fmt.Errorf("%w: event title is required", store.ErrInvalidInput)
	}
	startsAt, err := parseDate(req.StartsAt, time.Time{})
	if err != nil {
		return domain.AgendaEvent{}, err
	}
	if startsAt.IsZero() {
		return domain.AgendaEvent{}, fmt.Errorf("%w: event start date is required", store.ErrInvalidInput)
	}

	expected, err := s.expectedEventAmount(ctx, actor.TenantID, req.QuoteID, req.ServiceIDs, req.ProductIDs, true)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	event, err := s.repo.CreateAgendaEvent(ctx, domain.AgendaEvent{
		TenantID:            actor.TenantID,
		Title:               req.Title,
		CustomerID:          req.CustomerID,
		QuoteID:             req.QuoteID,
		ServiceIDs:          req.ServiceIDs,
		ProductIDs:          req.ProductIDs,
		ExpectedAmountCents: expected,
		AttendanceStatus:    domain.AttendanceScheduled,
		PaymentStatus:       domain.PaymentStatusPending,
		NotificationStatus:  domain.NotificationPending,
		StartsAt:            startsAt,
	})
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	s.syncEventForecast(ctx, actor.TenantID, *event)
	s.upsertEventNotification(ctx, actor.TenantID, *event)
	s.invalidateViews(ctx, actor.TenantID, "agenda", "financeiro")

	return *event, nil
}

func (s *Service) UpdateAgendaEvent(ctx context.Context, id string, req domain.AgendaEventUpdateRequest) (domain.AgendaEvent, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	existing, err := s.repo.GetAgendaEventByID(ctx, actor.TenantID, id)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	updated := *existing
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return domain.AgendaEvent{}, fmt.Errorf("%w: event title is required", store.ErrInvalidInput)
		}
		updated.Title = title
	}
	if req.QuoteID != nil {
		updated.QuoteID = *req.QuoteID
	}
	if req.ServiceIDs != nil {
		updated.ServiceIDs = *req.ServiceIDs
	}
	if req.ProductIDs != nil {
		updated.ProductIDs = *req.ProductIDs
	}
	if req.StartsAt != nil {
		startsAt, err := parseDate(*req.StartsAt, updated.StartsAt)
		if err != nil {
			return domain.AgendaEvent{}, err
		}
		updated.StartsAt = startsAt
	}
	if req.Attendance != nil {
		switch *req.Attendance {
		case domain.AttendanceScheduled, domain.AttendanceConfirmed, domain.AttendanceCompleted, domain.AttendanceNoShow:
			updated.AttendanceStatus = *req.Attendance
		case domain.AttendanceCancelled:
			return domain.AgendaEvent{}, fmt.Errorf("%w: cancel the event instead of setting the status", store.ErrInvalidInput)
		default:
			return domain.AgendaEvent{}, fmt.Errorf("%w: unknown attendance status %q", store.ErrInvalidInput, *req.Attendance)
		}
	}

	// Updates accept the quote in any status; approval is only gated when
	// the event is first created.
	expected, err := s.expectedEventAmount(ctx, actor.TenantID, updated.QuoteID, updated.ServiceIDs, updated.ProductIDs, false)
	if err != nil {
		return domain.AgendaEvent{}, err
	}
	updated.ExpectedAmountCents = expected

	saved, err := s.repo.UpdateAgendaEvent(ctx, updated)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	s.syncEventForecast(ctx, actor.TenantID, *saved)
	s.upsertEventNotification(ctx, actor.TenantID, *saved)

	if saved.AttendanceStatus == domain.AttendanceCompleted && saved.PaymentStatus == domain.PaymentStatusPending {
		due := saved.StartsAt
		if _, err := s.repo.UpsertNotification(ctx, domain.Notification{
			TenantID:            actor.TenantID,
			EventID:             domain.PayAlertPrefix + saved.ID,
			Type:                domain.NotificationTypePaymentAlert,
			Status:              domain.NotificationPending,
			Title:               fmt.Sprintf("Cobrança pendente: %s", saved.Title),
			ExpectedAmountCents: saved.ExpectedAmountCents,
			DueAt:               &due,
		}); err != nil {
			log.Printf("[service] WARN: failed to raise payment alert event=%s: %v", saved.ID, err)
		}
	}
	s.invalidateViews(ctx, actor.TenantID, "agenda", "financeiro")

	return *saved, nil
}

// ConfirmEventAttendance settles an event outside the point of sale: the
// pending forecast entry flips to paid and every linked status follows.
func (s *Service) ConfirmEventAttendance(ctx context.Context, id string, amountCents int64) (domain.AgendaEvent, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	event, err := s.repo.GetAgendaEventByID(ctx, actor.TenantID, id)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	pending, err := s.repo.FindPendingIncomeByEvent(ctx, actor.TenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AgendaEvent{}, fmt.Errorf("%w: event has no pending receivable", store.ErrInvalidInput)
		}
		return domain.AgendaEvent{}, err
	}

	now := time.Now().UTC()
	if amountCents > 0 {
		pending.AmountCents = amountCents
	}
	pending.Status = domain.TxStatusPaid
	pending.PaidAt = &now
	if _, err := s.repo.UpdateTransaction(ctx, *pending); err != nil {
		return domain.AgendaEvent{}, err
	}

	updated := *event
	if updated.AttendanceStatus == domain.AttendanceScheduled {
		updated.AttendanceStatus = domain.AttendanceConfirmed
	}
	updated.PaymentStatus = domain.PaymentStatusPaid
	updated.NotificationStatus = domain.NotificationConfirmed
	updated.NotificationActedAt = &now
	saved, err := s.repo.UpdateAgendaEvent(ctx, updated)
	if err != nil {
		return domain.AgendaEvent{}, err
	}

	if err := s.repo.UpdateNotificationByEventKey(ctx, actor.TenantID, id, domain.NotificationConfirmed, pending.AmountCents, now, true); err != nil {
		log.Printf("[service] WARN: failed to confirm event notification event=%s: %v", id, err)
	}
	if err := s.repo.UpdateNotificationByEventKey(ctx, actor.TenantID, domain.PayAlertPrefix+id, domain.NotificationConfirmed, pending.AmountCents, now, true); err != nil {
		log.Printf("[service] WARN: failed to confirm payment alert event=%s: %v", id, err)
	}
	s.invalidateViews(ctx, actor.TenantID, "agenda", "financeiro", "dashboard")

	return *saved, nil
}

// CancelAgendaEvent tears the event down. The notification flips first so a
// crash mid-way leaves a cancelled notification rather than a live one
// pointing at a dead event.
func (s *Service) CancelAgendaEvent(ctx context.Context, id string) error {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return err
	}

	if _, err := s.repo.GetAgendaEventByID(ctx, actor.TenantID, id); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateNotificationByEventKey(ctx, actor.TenantID, id, domain.NotificationCancelled, 0, now, true); err != nil {
		log.Printf("[service] WARN: failed to cancel event notification event=%s: %v", id, err)
	}
	if err := s.repo.UpdateNotificationByEventKey(ctx, actor.TenantID, domain.PayAlertPrefix+id, domain.NotificationCancelled, 0, now, true); err != nil {
		log.Printf("[service] WARN: failed to cancel payment alert event=%s: %v", id, err)
	}

	if err := s.repo.DeleteTransactionsByEvent(ctx, actor.TenantID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteAgendaEvent(ctx, actor.TenantID, id); err != nil {
		return err
	}
	s.invalidateViews(ctx, actor.TenantID, "agenda", "financeiro")
	return nil
}

func (s *Service) GetAgendaEvent(ctx context.Context, id string) (domain.AgendaEvent, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.AgendaEvent{}, err
	}
	event, err := s.repo.GetAgendaEventByID(ctx, actor.TenantID, id)
	if err != nil {
		return domain.AgendaEvent{}, err
	}
	return *event, nil
}

func (s *Service) ListAgendaEvents(ctx context.Context, from time.Time, to time.Time) ([]domain.AgendaEvent, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAgendaEvents(ctx, actor.TenantID, from, to)
}
