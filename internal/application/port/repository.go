package port

import (
	"context"
	"time"

	"perparb/internal/domain/model"
)

type Repository interface {
	// Funding payment operations
	SaveFundingPayment(ctx context.Context, p model.FundingPayment) error
	ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error)

	// Metrics snapshot operations
	SaveMetricsSnapshot(ctx context.Context, ts int64, payload string) error

	// Opportunity operations
	SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error

	// Position group operations
	SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error
	ListOpenGroups(ctx context.Context) ([]*model.DeltaNeutralGroup, error)

	// Connection management
	Close() error
}
