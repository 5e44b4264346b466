package raids

import (
	"context"
	"fmt"

	"example.com/raidsync/internal/domain"
)

// ReportSource fetches post game reports.
type ReportSource interface {
	GetAfterActionReport(ctx context.Context, instanceID string) (domain.AfterActionReport, error)
}

// Augmenter copies after-action report fields onto raid details.
type Augmenter struct {
	reports ReportSource
}

// NewAugmenter constructs an Augmenter.
func NewAugmenter(reports ReportSource) *Augmenter {
	return &Augmenter{reports: reports}
}

// Augment returns detail with FromBeginning set from the report for instanceID.
func (a *Augmenter) Augment(ctx context.Context, detail domain.RaidDetail, instanceID string) (domain.RaidDetail, error) {
	report, err := a.reports.GetAfterActionReport(ctx, instanceID)
	if err != nil {
		augmentFailures.Inc()
		return domain.RaidDetail{}, fmt.Errorf("augment raid %s: %w", instanceID, err)
	}
	detail.FromBeginning = report.FromBeginning
	return detail, nil
}
