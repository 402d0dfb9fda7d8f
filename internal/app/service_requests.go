package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"landgov/api/internal/actor"
	"landgov/api/internal/area"
	"landgov/api/internal/search"
	"landgov/api/internal/store"
	"landgov/api/internal/util"
)

type SubmitRequestInput struct {
	AreaID      string  `json:"areaId"`
	PlotID      int     `json:"plotId"`
	Purpose     string  `json:"purpose"`
	QuotedPrice float64 `json:"quotedPrice"`
}

type RequestDecisionInput struct {
	RequestID string `json:"requestId"`
	Decision  string `json:"decision"`
}

// SubmitRequest creates a land request in district_pending. Competing
// requests for the same plot are allowed; the winner is picked at state
// decision time.
func (s *Service) SubmitRequest(ctx context.Context, session Session, input SubmitRequestInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionSubmitRequest) {
		return nil, errForbidden("only citizens submit land requests")
	}
	if input.Purpose == "" {
		return nil, errInvalidArgument("purpose is required", nil)
	}
	if input.QuotedPrice <= 0 {
		return nil, errInvalidArgument("quoted price must be a positive number", nil)
	}
	cfg, err := area.Lookup(area.ID(input.AreaID))
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}

	plot, err := s.store.GetPlot(ctx, cfg, input.PlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("plot not found")
		}
		return nil, err
	}
	if plot.Bought {
		return nil, errInvalidState("plot is already allotted")
	}

	item := store.LandRequest{
		ID:            util.NewID("req"),
		AreaID:        cfg.ID,
		PlotID:        plot.PlotID,
		Points:        plot.Points,
		Purpose:       input.Purpose,
		QuotedPrice:   input.QuotedPrice,
		QuotedBy:      caller.Email,
		WorkflowStage: store.StageDistrictPending,
		SubmittedAt:   time.Now(),
	}
	if err := s.store.InsertLandRequest(ctx, item); err != nil {
		return nil, err
	}
	s.indexRequest(item)
	return requestView(item), nil
}

// MyRequests lists the caller's own requests, newest first.
func (s *Service) MyRequests(ctx context.Context, session Session) ([]map[string]any, error) {
	items, err := s.store.ListRequestsByCitizen(ctx, session.Email)
	if err != nil {
		return nil, err
	}
	return requestViews(items), nil
}

// DistrictQueue lists district_pending requests in submission order,
// limited to the district admin's area scope.
func (s *Service) DistrictQueue(ctx context.Context, session Session) ([]map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionDistrictDecide) {
		return nil, errForbidden("district admin role required")
	}
	items, err := s.store.ListRequestsByStage(ctx, store.StageDistrictPending)
	if err != nil {
		return nil, err
	}
	return requestViews(inScopeRequests(caller.Role, items)), nil
}

// DistrictDecide moves a district_pending request forward or rejects it.
func (s *Service) DistrictDecide(ctx context.Context, session Session, input RequestDecisionInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionDistrictDecide) {
		return nil, errForbidden("district admin role required")
	}
	item, err := s.store.GetLandRequest(ctx, input.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("request not found")
		}
		return nil, err
	}
	if !actor.InScope(caller.Role, item.AreaID) {
		return nil, errForbidden("request is outside your area scope")
	}

	now := time.Now()
	switch input.Decision {
	case "approve":
		ok, err := s.store.AdvanceRequestToState(ctx, item.ID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errInvalidState("request is not awaiting district decision")
		}
		item.WorkflowStage = store.StageStatePending
		item.DistrictApprovedAt = &now
	case "reject":
		ok, err := s.store.RejectRequest(ctx, item.ID, store.StageDistrictPending, "district", now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errInvalidState("request is not awaiting district decision")
		}
		item.WorkflowStage = store.StageRejected
		item.RejectedAt = &now
		item.RejectedBy = "district"
	default:
		return nil, errInvalidArgument("decision must be approve or reject", nil)
	}
	s.indexRequest(item)
	return requestView(item), nil
}

// StateQueue lists state_pending requests ordered by district approval.
func (s *Service) StateQueue(ctx context.Context, session Session) ([]map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionStateDecide) {
		return nil, errForbidden("state admin role required")
	}
	items, err := s.store.ListRequestsByStage(ctx, store.StageStatePending)
	if err != nil {
		return nil, err
	}
	return requestViews(items), nil
}

// StateDecide settles a state_pending request. Accept runs the allocation
// transaction: the plot is marked bought, a lease is created, the request
// becomes allocated and every competing request for the plot is purged.
// A concurrent accept for the same plot loses with Conflict.
func (s *Service) StateDecide(ctx context.Context, session Session, input RequestDecisionInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionStateDecide) {
		return nil, errForbidden("state admin role required")
	}
	item, err := s.store.GetLandRequest(ctx, input.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("request not found")
		}
		return nil, err
	}
	if item.WorkflowStage != store.StageStatePending {
		return nil, errInvalidState("request is not awaiting state decision")
	}

	cfg, err := area.Lookup(item.AreaID)
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}

	now := time.Now()
	switch input.Decision {
	case "accept":
		plot, err := s.store.GetPlot(ctx, cfg, item.PlotID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errNotFound("plot not found")
			}
			return nil, err
		}
		lease := store.Lease{
			ID:            util.NewID("lease"),
			UserEmail:     item.QuotedBy,
			AreaID:        item.AreaID,
			PlotID:        item.PlotID,
			LeaseYears:    plot.LeaseDuration,
			AllotmentDate: now,
			LeaseEndDate:  now.AddDate(plot.LeaseDuration, 0, 0),
			Status:        store.LeaseActive,
			BidPrice:      item.QuotedPrice,
		}
		if owner, err := s.store.GetUserByEmail(ctx, item.QuotedBy); err == nil {
			lease.UserID = owner.ID
		}
		purged, err := s.store.AllocateRequest(ctx, cfg, item, lease)
		if err != nil {
			if errors.Is(err, store.ErrPlotAlreadyAllocated) {
				return nil, errConflict("plot was allocated by a concurrent decision")
			}
			return nil, err
		}
		item.WorkflowStage = store.StageAllocated
		item.StateApprovedAt = &now
		s.dropRequestsFromIndex(purged)
		s.notifyAllocation(item, cfg, true, "")
	case "decline":
		ok, err := s.store.RejectRequest(ctx, item.ID, store.StageStatePending, "state", now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errInvalidState("request is not awaiting state decision")
		}
		item.WorkflowStage = store.StageRejected
		item.RejectedAt = &now
		item.RejectedBy = "state"
		s.notifyAllocation(item, cfg, false, "Your land request was declined at state review.")
	default:
		return nil, errInvalidArgument("decision must be accept or decline", nil)
	}
	s.indexRequest(item)
	return requestView(item), nil
}

// AllRequests is the admin overview across every stage.
func (s *Service) AllRequests(ctx context.Context, session Session) ([]map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionAdminRead) {
		return nil, errForbidden("admin role required")
	}
	items, err := s.store.ListAllRequests(ctx)
	if err != nil {
		return nil, err
	}
	return requestViews(inScopeRequests(caller.Role, items)), nil
}

func inScopeRequests(role actor.Role, items []store.LandRequest) []store.LandRequest {
	scoped := make([]store.LandRequest, 0, len(items))
	for _, item := range items {
		if actor.InScope(role, item.AreaID) {
			scoped = append(scoped, item)
		}
	}
	return scoped
}

func requestViews(items []store.LandRequest) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, requestView(item))
	}
	return views
}

func (s *Service) indexRequest(item store.LandRequest) {
	if s.search == nil {
		return
	}
	s.search.IndexRequest(search.RequestRecord{
		ID:       item.ID,
		Purpose:  item.Purpose,
		QuotedBy: item.QuotedBy,
		AreaID:   string(item.AreaID),
		PlotID:   plotIDString(item.PlotID),
		Stage:    item.WorkflowStage,
	})
}

// dropRequestsFromIndex removes purged competitor bids from the search
// index so admin search stops returning rows the allocation deleted.
func (s *Service) dropRequestsFromIndex(ids []string) {
	if s.search == nil {
		return
	}
	for _, id := range ids {
		s.search.DeleteRequest(id)
	}
}

// notifyAllocation sends the decision mail when SMTP is configured. Mail
// failures never fail the decision.
func (s *Service) notifyAllocation(item store.LandRequest, cfg area.Config, approved bool, remark string) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	userName := item.QuotedBy
	if owner, err := s.store.GetUserByEmail(context.Background(), item.QuotedBy); err == nil && owner.Name != "" {
		userName = owner.Name
	}
	go func() {
		_ = s.mailer.SendAllocationDecision(item.QuotedBy, userName, cfg.Name, item.PlotID, approved, remark)
	}()
}
