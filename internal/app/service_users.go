package app

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"landgov/api/internal/actor"
	"landgov/api/internal/area"
	"landgov/api/internal/store"
)

type AssignPlotInput struct {
	UserID string `json:"userId"`
	AreaID string `json:"areaId"`
	PlotID string `json:"plotId"`
}

// ListCitizens is the admin user directory: every citizen account with
// its current plot binding, newest first.
func (s *Service) ListCitizens(ctx context.Context, session Session) ([]map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionAdminRead) {
		return nil, errForbidden("admin role required")
	}
	users, err := s.store.ListCitizens(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(users))
	for _, user := range users {
		views = append(views, citizenView(user))
	}
	return views, nil
}

// AssignPlot manually binds a citizen to a plot. Used to record holdings
// that predate the request workflow; the plot lookup only validates
// existence, an allotted plot may still be bound to its holder.
func (s *Service) AssignPlot(ctx context.Context, session Session, input AssignPlotInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionAssignPlot) {
		return nil, errForbidden("admin role required")
	}
	if input.UserID == "" || input.AreaID == "" || input.PlotID == "" {
		return nil, errInvalidArgument("userId, areaId and plotId are required", nil)
	}
	cfg, err := area.Lookup(area.ID(input.AreaID))
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}
	if !actor.InScope(caller.Role, cfg.ID) {
		return nil, errForbidden("area is outside your scope")
	}

	user, err := s.store.GetUserByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("user not found")
		}
		return nil, err
	}
	if actor.Normalize(user.Role) != actor.RoleCitizen {
		return nil, errInvalidArgument("only citizens can be assigned a plot", nil)
	}

	plotID, err := strconv.Atoi(input.PlotID)
	if err != nil {
		return nil, errInvalidArgument("plotId must be a number", nil)
	}
	if _, err := s.store.GetPlot(ctx, cfg, plotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("plot not found")
		}
		return nil, err
	}

	if err := s.store.BindUserPlot(ctx, user.Email, cfg.ID, input.PlotID); err != nil {
		return nil, err
	}
	user.AreaID = string(cfg.ID)
	user.PlotID = input.PlotID
	return citizenView(user), nil
}

func citizenView(user store.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"plotId":    user.PlotID,
		"areaId":    user.AreaID,
		"createdAt": user.CreatedAt.UTC().Format(time.RFC3339),
	}
}
