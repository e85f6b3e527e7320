package cache

import (
	"context"
	"time"

	"meunegocio/backend/internal/domain"
)

// SummaryCache holds the per-tenant daily summary for a short TTL and
// invalidates dashboard view paths whenever a write changes what those
// views would show.
type SummaryCache interface {
	GetSummary(ctx context.Context, key string) (*domain.DailySummary, bool, error)
	SetSummary(ctx context.Context, key string, value *domain.DailySummary, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID string, paths ...string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) GetSummary(_ context.Context, _ string) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) SetSummary(_ context.Context, _ string, _ *domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ string, _ ...string) error {
	return nil
}
