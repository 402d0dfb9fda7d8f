package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"landgov/api/internal/actor"
	"landgov/api/internal/store"
)

type FlagLeaseInput struct {
	LeaseID string `json:"leaseId"`
	PlotID  int    `json:"plotId"`
}

// MyLease returns the caller's lease with lazily recomputed status and
// remaining days.
func (s *Service) MyLease(ctx context.Context, session Session) (map[string]any, error) {
	lease, err := s.store.GetLeaseByOwner(ctx, session.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("no lease for this account")
		}
		return nil, err
	}
	return s.leaseRead(ctx, lease)
}

// LeaseByPlot is the admin-side lease lookup.
func (s *Service) LeaseByPlot(ctx context.Context, session Session, plotID int) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionAdminRead) {
		return nil, errForbidden("admin role required")
	}
	lease, err := s.store.GetLeaseByPlot(ctx, plotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("no lease for this plot")
		}
		return nil, err
	}
	if !actor.InScope(caller.Role, lease.AreaID) {
		return nil, errForbidden("lease is outside your area scope")
	}
	return s.leaseRead(ctx, lease)
}

// FlagLease sets warning_sent unconditionally. An administrative
// override, not a correction of the computed status; flagging twice is a
// no-op with the same result.
func (s *Service) FlagLease(ctx context.Context, session Session, input FlagLeaseInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionFlagLease) {
		return nil, errForbidden("admin role required")
	}

	var (
		lease store.Lease
		err   error
	)
	switch {
	case input.LeaseID != "":
		lease, err = s.store.GetLeaseByID(ctx, input.LeaseID)
	case input.PlotID != 0:
		lease, err = s.store.GetLeaseByPlot(ctx, input.PlotID)
	default:
		return nil, errInvalidArgument("leaseId or plotId is required", nil)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("lease not found")
		}
		return nil, err
	}
	if !actor.InScope(caller.Role, lease.AreaID) {
		return nil, errForbidden("lease is outside your area scope")
	}

	if err := s.store.UpdateLeaseStatus(ctx, lease.ID, store.LeaseWarningSent); err != nil {
		return nil, err
	}
	lease.Status = store.LeaseWarningSent
	return leaseView(lease, remainingDays(lease, time.Now())), nil
}

// leaseRead applies the lazy active -> expired transition. The write
// happens at most once; later reads see expired already persisted.
func (s *Service) leaseRead(ctx context.Context, lease store.Lease) (map[string]any, error) {
	now := time.Now()
	if lease.Status == store.LeaseActive && now.After(lease.LeaseEndDate) {
		if err := s.store.UpdateLeaseStatus(ctx, lease.ID, store.LeaseExpired); err != nil {
			return nil, err
		}
		lease.Status = store.LeaseExpired
	}
	return leaseView(lease, remainingDays(lease, now)), nil
}

func remainingDays(lease store.Lease, now time.Time) int {
	days := int(lease.LeaseEndDate.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
