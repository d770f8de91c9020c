package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReportCache caches generated aging reports. Implementations live in the
// infrastructure layer; a nil cache disables caching entirely.
//
// Get returns (nil, nil) on a miss. Cache failures are soft: callers log
// and fall through to a fresh generation rather than failing the request.
type ReportCache interface {
	GetAgingReport(ctx context.Context, key string) (*AgingReport, error)
	SetAgingReport(ctx context.Context, key string, report *AgingReport, ttl time.Duration) error
	InvalidateOrganization(ctx context.Context, organizationID uuid.UUID) error
}
