package export

import (
	"context"
	"fmt"
	"time"

	"landgov/api/internal/area"
	"landgov/api/internal/store"
)

// DataStore defines the data access the exporter needs
type DataStore interface {
	ListPlots(ctx context.Context, cfg area.Config) ([]store.Plot, error)
	ListLeasesByArea(ctx context.Context, areaID area.ID) ([]store.Lease, error)
	ListViolationsByArea(ctx context.Context, areaID area.ID) ([]store.Violation, error)
}

// Service provides area summary export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an area summary in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	cfg, err := area.Lookup(req.AreaID)
	if err != nil {
		return nil, fmt.Errorf("lookup area: %w", err)
	}

	html, err := s.renderSummaryHTML(ctx, cfg)
	if err != nil {
		return nil, err
	}

	title := cfg.Name + " allocation summary"
	switch req.Format {
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// renderSummaryHTML assembles the registry, lease, and violation tables
// for one area into the summary template.
func (s *Service) renderSummaryHTML(ctx context.Context, cfg area.Config) (string, error) {
	plots, err := s.store.ListPlots(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("list plots: %w", err)
	}

	leases, err := s.store.ListLeasesByArea(ctx, cfg.ID)
	if err != nil {
		return "", fmt.Errorf("list leases: %w", err)
	}

	violations, err := s.store.ListViolationsByArea(ctx, cfg.ID)
	if err != nil {
		return "", fmt.Errorf("list violations: %w", err)
	}

	data := TemplateData{
		AreaName:    cfg.Name,
		GeneratedAt: time.Now(),
	}

	allotted := 0
	for _, plot := range plots {
		if plot.Bought {
			allotted++
		}
		data.Plots = append(data.Plots, TemplatePlot{
			PlotID:        plot.PlotID,
			Bought:        plot.Bought,
			BoughtBy:      plot.BoughtBy,
			LeasePrice:    plot.LeasePrice,
			LeaseDuration: plot.LeaseDuration,
		})
	}
	data.TotalPlots = len(plots)
	data.AllottedPlots = allotted

	for _, lease := range leases {
		data.Leases = append(data.Leases, TemplateLease{
			PlotID:       lease.PlotID,
			OwnerEmail:   lease.UserEmail,
			Status:       lease.Status,
			LeaseEndDate: lease.LeaseEndDate,
			BidPrice:     lease.BidPrice,
		})
	}

	for _, violation := range violations {
		data.Violations = append(data.Violations, TemplateViolation{
			PlotID:     violation.PlotID,
			OwnerEmail: violation.OwnerEmail,
			Flagged:    violation.ViolationStatus,
			Comments:   violation.AdminComments,
		})
	}

	return RenderSummaryHTML(data)
}
