package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"meunegocio/backend/internal/domain"
	"meunegocio/backend/internal/store"
)

// reconcileRule decides the terminal status for one pending notification, or
// returns resolved=false when nothing changed yet. A zero actedAt means the
// rule has no better timestamp than the sweep time.
type reconcileRule func(ctx context.Context, s *Service, tenantID string, n domain.Notification) (status string, amountCents int64, actedAt time.Time, resolved bool, err error)

var reconcileRules = map[string]reconcileRule{
	domain.NotificationTypeAgendaEvent:   reconcileAgendaEvent,
	domain.NotificationTypePaymentAlert:  reconcilePaymentAlert,
	domain.NotificationTypePricingNeeded: reconcilePricingNeeded,
	domain.NotificationTypePaymentReview: reconcilePaymentReview,
}

// ReconcileNotifications sweeps the pending inbox and resolves every entry
// whose underlying fact already settled elsewhere. Each row is independent;
// one bad row never blocks the sweep.
func (s *Service) ReconcileNotifications(ctx context.Context) (int, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return 0, err
	}

	pending, err := s.repo.ListPendingNotifications(ctx, actor.TenantID)
	if err != nil {
		return 0, err
	}

	resolvedCount := 0
	now := time.Now().UTC()
	for _, n := range pending {
		rule, ok := reconcileRules[n.Type]
		if !ok {
			continue
		}
		status, amount, actedAt, resolved, err := rule(ctx, s, actor.TenantID, n)
		if err != nil {
			log.Printf("[service] WARN: reconcile failed notification=%s type=%s: %v", n.ID, n.Type, err)
			continue
		}
		if !resolved {
			continue
		}
		if actedAt.IsZero() {
			actedAt = now
		}
		if _, err := s.repo.UpdateNotificationStatus(ctx, actor.TenantID, n.ID, status, amount, actedAt); err != nil {
			log.Printf("[service] WARN: reconcile update failed notification=%s: %v", n.ID, err)
			continue
		}
		resolvedCount++
	}

	if resolvedCount > 0 {
		s.invalidateViews(ctx, actor.TenantID, "dashboard", "inbox")
	}
	return resolvedCount, nil
}

// An agenda notification resolves when its event was paid, closed through
// the point of sale, or no longer exists.
func reconcileAgendaEvent(ctx context.Context, s *Service, tenantID string, n domain.Notification) (string, int64, time.Time, bool, error) {
	event, err := s.repo.GetAgendaEventByID(ctx, tenantID, n.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotificationCancelled, 0, time.Time{}, true, nil
	}
	if err != nil {
		return "", 0, time.Time{}, false, err
	}

	if event.AttendanceStatus == domain.AttendanceCompleted && event.PaymentStatus == domain.PaymentStatusPaid {
		amount := event.ExpectedAmountCents
		var actedAt time.Time
		if paid, err := s.repo.FindPaidIncomeByEvent(ctx, tenantID, n.EventID); err == nil {
			amount = paid.AmountCents
			if paid.PaidAt != nil {
				actedAt = *paid.PaidAt
			}
		}
		status := domain.NotificationConfirmed
		if event.NotificationStatus == domain.NotificationActedPDV {
			status = domain.NotificationActedPDV
		}
		return status, amount, actedAt, true, nil
	}

	if paid, err := s.repo.FindPaidIncomeByEvent(ctx, tenantID, n.EventID); err == nil {
		var actedAt time.Time
		if paid.PaidAt != nil {
			actedAt = *paid.PaidAt
		}
		return domain.NotificationConfirmed, paid.AmountCents, actedAt, true, nil
	}
	return "", 0, time.Time{}, false, nil
}

// A payment alert follows its event's payment status; the event id is
// recovered by stripping the alert prefix. A paid event with its ledger
// entry still around settles the alert through the point of sale; a paid
// event whose entries are gone just dismisses it.
func reconcilePaymentAlert(ctx context.Context, s *Service, tenantID string, n domain.Notification) (string, int64, time.Time, bool, error) {
	eventID := strings.TrimPrefix(n.EventID, domain.PayAlertPrefix)

	event, err := s.repo.GetAgendaEventByID(ctx, tenantID, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotificationCancelled, 0, time.Time{}, true, nil
	}
	if err != nil {
		return "", 0, time.Time{}, false, err
	}

	if event.PaymentStatus != domain.PaymentStatusPaid {
		return "", 0, time.Time{}, false, nil
	}
	if paid, err := s.repo.FindPaidIncomeByEvent(ctx, tenantID, eventID); err == nil {
		var actedAt time.Time
		if paid.PaidAt != nil {
			actedAt = *paid.PaidAt
		}
		return domain.NotificationActedPDV, paid.AmountCents, actedAt, true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", 0, time.Time{}, false, err
	}
	return domain.NotificationDismissed, 0, time.Time{}, true, nil
}

// A pricing notification resolves once every resale product on the invoice
// has a selling price again.
func reconcilePricingNeeded(ctx context.Context, s *Service, tenantID string, n domain.Notification) (string, int64, time.Time, bool, error) {
	invoiceID := strings.TrimPrefix(n.EventID, "pricing_")
	invoice, err := s.repo.GetPurchaseInvoiceByID(ctx, tenantID, invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotificationDismissed, 0, time.Time{}, true, nil
	}
	if err != nil {
		return "", 0, time.Time{}, false, err
	}

	for _, item := range invoice.Items {
		product, err := s.repo.GetProductByID(ctx, tenantID, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", 0, time.Time{}, false, err
		}
		if product.ProductType == domain.ProductTypeRevenda && product.PriceCents <= 0 {
			return "", 0, time.Time{}, false, nil
		}
	}
	return domain.NotificationConfirmed, 0, time.Time{}, true, nil
}

// A payment review resolves when a paid expense shows up for the invoice.
func reconcilePaymentReview(ctx context.Context, s *Service, tenantID string, n domain.Notification) (string, int64, time.Time, bool, error) {
	invoiceID := strings.TrimPrefix(n.EventID, "invoice_")
	if _, err := s.repo.GetPurchaseInvoiceByID(ctx, tenantID, invoiceID); errors.Is(err, store.ErrNotFound) {
		return domain.NotificationDismissed, 0, time.Time{}, true, nil
	} else if err != nil {
		return "", 0, time.Time{}, false, err
	}

	expense, err := s.repo.FindPaidExpenseByInvoice(ctx, tenantID, invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		return "", 0, time.Time{}, false, nil
	}
	if err != nil {
		return "", 0, time.Time{}, false, err
	}
	var actedAt time.Time
	if expense.PaidAt != nil {
		actedAt = *expense.PaidAt
	}
	return domain.NotificationConfirmed, expense.AmountCents, actedAt, true, nil
}

// ListNotifications reconciles first so the inbox never shows an alert for
// something that already settled.
func (s *Service) ListNotifications(ctx context.Context, status string, limit int) ([]domain.Notification, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ReconcileNotifications(ctx); err != nil {
		log.Printf("[service] WARN: inbox reconcile failed tenant=%s: %v", actor.TenantID, err)
	}
	return s.repo.ListNotifications(ctx, actor.TenantID, status, limit)
}

func (s *Service) DismissNotification(ctx context.Context, id string) (domain.Notification, error) {
	return s.actOnNotification(ctx, id, domain.NotificationDismissed, 0)
}

func (s *Service) ConfirmNotification(ctx context.Context, id string, amountCents int64) (domain.Notification, error) {
	return s.actOnNotification(ctx, id, domain.NotificationConfirmed, amountCents)
}

func (s *Service) actOnNotification(ctx context.Context, id string, status string, amountCents int64) (domain.Notification, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Notification{}, err
	}
	updated, err := s.repo.UpdateNotificationStatus(ctx, actor.TenantID, id, status, amountCents, time.Now().UTC())
	if err != nil {
		return domain.Notification{}, err
	}
	s.invalidateViews(ctx, actor.TenantID, "dashboard", "inbox")
	return *updated, nil
}

const dueSoonWindowDays = 7

// DueDigest buckets pending entries by urgency: already late, due today,
// and due inside the next week.
func (s *Service) DueDigest(ctx context.Context) (domain.DueDigest, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.DueDigest{}, err
	}

	pending, err := s.repo.ListTransactions(ctx, actor.TenantID, "", domain.TxStatusPending, 0)
	if err != nil {
		return domain.DueDigest{}, err
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	soonCutoff := today.AddDate(0, 0, dueSoonWindowDays)

	digest := domain.DueDigest{
		Overdue:   domain.DueDigestBucket{Label: "Atrasados"},
		DueToday:  domain.DueDigestBucket{Label: "Vencem hoje"},
		DueSoon:   domain.DueDigestBucket{Label: "Próximos 7 dias"},
		Generated: now,
	}
	for _, tx := range pending {
		due := time.Date(tx.DueDate.Year(), tx.DueDate.Month(), tx.DueDate.Day(), 0, 0, 0, 0, time.UTC)
		switch {
		case due.Before(today):
			digest.Overdue.Items = append(digest.Overdue.Items, tx)
			digest.Overdue.TotalCents += tx.AmountCents
		case due.Equal(today):
			digest.DueToday.Items = append(digest.DueToday.Items, tx)
			digest.DueToday.TotalCents += tx.AmountCents
		case !due.After(soonCutoff):
			digest.DueSoon.Items = append(digest.DueSoon.Items, tx)
			digest.DueSoon.TotalCents += tx.AmountCents
		}
	}
	return digest, nil
}

// GetDailySummary reads through the short-lived cache; a cache miss or a
// cache error both fall back to the store.
func (s *Service) GetDailySummary(ctx context.Context, day time.Time) (domain.DailySummary, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if day.IsZero() {
		day = time.Now().UTC()
	}

	key := "mn:summary:" + actor.TenantID + ":" + day.Format("2006-01-02")
	if cached, ok, err := s.summaries.GetSummary(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache read failed tenant=%s: %v", actor.TenantID, err)
	}

	summary, err := s.repo.GetDailySummary(ctx, actor.TenantID, day)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if err := s.summaries.SetSummary(ctx, key, &summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write failed tenant=%s: %v", actor.TenantID, err)
	}
	return summary, nil
}
