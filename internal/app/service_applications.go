package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"landgov/api/internal/actor"
	"landgov/api/internal/store"
	"landgov/api/internal/util"
)

// SubmitApplicationInput carries a free-location proposal. Latitude and
// longitude are pointers so a missing coordinate is distinguishable from
// a zero one.
type SubmitApplicationInput struct {
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	AddressDescription string   `json:"addressDescription"`
	QuotedPrice        float64  `json:"quotedPrice"`
}

type ApplicationDecisionInput struct {
	ApplicationID string `json:"applicationId"`
	Decision      string `json:"decision"`
}

// SubmitApplication files a land proposal for a site outside the plot
// registry. The applicant's identity is snapshotted onto the record.
func (s *Service) SubmitApplication(ctx context.Context, session Session, input SubmitApplicationInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionSubmitApplication) {
		return nil, errForbidden("only citizens submit applications")
	}
	if input.Latitude == nil || input.Longitude == nil {
		return nil, errInvalidArgument("latitude and longitude are required", nil)
	}
	if input.QuotedPrice <= 0 {
		return nil, errInvalidArgument("quoted price must be a positive number", nil)
	}

	contactNumber := ""
	if user, err := s.store.GetUserByID(ctx, caller.ID); err == nil {
		contactNumber = user.ContactNumber
	}

	item := store.SiteApplication{
		ID:                 util.NewID("appl"),
		UserID:             caller.ID,
		UserName:           caller.Name,
		UserEmail:          caller.Email,
		ContactNumber:      contactNumber,
		Latitude:           *input.Latitude,
		Longitude:          *input.Longitude,
		AddressDescription: input.AddressDescription,
		QuotedPrice:        input.QuotedPrice,
		Status:             store.ApplicationPending,
		CreatedAt:          time.Now(),
	}
	item.UpdatedAt = item.CreatedAt
	if err := s.store.InsertSiteApplication(ctx, item); err != nil {
		return nil, err
	}
	return applicationView(item), nil
}

// ListApplications returns the caller's own applications for citizens and
// every application for admins, newest first.
func (s *Service) ListApplications(ctx context.Context, session Session) ([]map[string]any, error) {
	caller := s.actorOf(session)

	var (
		items []store.SiteApplication
		err   error
	)
	if caller.IsAdmin() {
		items, err = s.store.ListSiteApplications(ctx)
	} else {
		items, err = s.store.ListSiteApplicationsByUser(ctx, caller.ID)
	}
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, applicationView(item))
	}
	return views, nil
}

// DecideApplication settles a pending application. Applications are not
// tied to an area, so any admin tier may decide them.
func (s *Service) DecideApplication(ctx context.Context, session Session, input ApplicationDecisionInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionDecideApplication) {
		return nil, errForbidden("admin role required")
	}

	var status string
	switch input.Decision {
	case "approve":
		status = store.ApplicationApproved
	case "reject":
		status = store.ApplicationRejected
	default:
		return nil, errInvalidArgument("decision must be approve or reject", nil)
	}

	item, err := s.store.GetSiteApplication(ctx, input.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("application not found")
		}
		return nil, err
	}

	ok, err := s.store.DecideSiteApplication(ctx, item.ID, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errInvalidState("application is already decided")
	}
	item.Status = status
	return applicationView(item), nil
}

func applicationView(item store.SiteApplication) map[string]any {
	view := map[string]any{
		"id":            item.ID,
		"userName":      item.UserName,
		"userEmail":     item.UserEmail,
		"contactNumber": item.ContactNumber,
		"latitude":      item.Latitude,
		"longitude":     item.Longitude,
		"quotedPrice":   item.QuotedPrice,
		"status":        item.Status,
		"createdAt":     item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.AddressDescription != "" {
		view["addressDescription"] = item.AddressDescription
	}
	return view
}
