package app

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"landgov/api/internal/actor"
	"landgov/api/internal/area"
	"landgov/api/internal/search"
	"landgov/api/internal/store"
	"landgov/api/internal/util"
)

type FlagViolationInput struct {
	AreaID          string `json:"areaId"`
	PlotID          string `json:"plotId"`
	Comments        string `json:"comments"`
	ReportObjectID  string `json:"reportObjectId"`
	ReportURL       string `json:"reportUrl"`
	OutputImagePath string `json:"outputImagePath"`
}

type SubmitAppealInput struct {
	ViolationID string `json:"violationId"`
	Message     string `json:"message"`
}

type AppealDecisionInput struct {
	AppealID string `json:"appealId"`
	Decision string `json:"decision"`
	Remark   string `json:"remark"`
}

// districtApprovalRemark is the canned remark recorded when a district
// admin approves an appeal without writing one.
const districtApprovalRemark = "Appeal heard and found correct by district admin"

// FlagViolation upserts the (area, plot) violation record. Re-flagging
// overwrites comments and report references and keeps the flag raised.
// The owner email is snapshotted from the plot binding at flagging time.
func (s *Service) FlagViolation(ctx context.Context, session Session, input FlagViolationInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionFlagViolation) {
		return nil, errForbidden("admin role required")
	}
	if input.PlotID == "" {
		return nil, errInvalidArgument("plotId is required", nil)
	}
	cfg, err := area.Lookup(area.ID(input.AreaID))
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}
	if !actor.InScope(caller.Role, cfg.ID) {
		return nil, errForbidden("area is outside your scope")
	}

	item := store.Violation{
		ID:              util.NewID("viol"),
		AreaID:          cfg.ID,
		PlotID:          input.PlotID,
		ViolationStatus: true,
		ReportObjectID:  input.ReportObjectID,
		ReportURL:       input.ReportURL,
		OutputImagePath: input.OutputImagePath,
		AdminComments:   input.Comments,
		AnalyzedAt:      time.Now(),
	}
	if owner, err := s.store.FindUserByPlot(ctx, cfg.ID, input.PlotID); err == nil {
		item.UserID = owner.ID
		item.OwnerEmail = owner.Email
	}

	saved, err := s.store.UpsertViolation(ctx, item)
	if err != nil {
		return nil, err
	}
	s.indexViolation(saved)
	s.notifyViolation(saved, cfg)
	return violationView(saved), nil
}

// MyViolation resolves the caller's flagged violation: exact plot/area
// binding first, snapshotted owner email as the fallback.
func (s *Service) MyViolation(ctx context.Context, session Session) (map[string]any, error) {
	caller := s.actorOf(session)
	if caller.PlotID != "" && caller.AreaID != "" {
		item, err := s.store.GetFlaggedViolationByPlot(ctx, caller.AreaID, caller.PlotID)
		if err == nil {
			return violationView(item), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	item, err := s.store.GetFlaggedViolationByOwner(ctx, caller.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("no flagged violation for this account")
		}
		return nil, err
	}
	return violationView(item), nil
}

// ViolationsByArea is the admin listing for one area.
func (s *Service) ViolationsByArea(ctx context.Context, session Session, areaID string) ([]map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionAdminRead) {
		return nil, errForbidden("admin role required")
	}
	cfg, err := area.Lookup(area.ID(areaID))
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}
	if !actor.InScope(caller.Role, cfg.ID) {
		return nil, errForbidden("area is outside your scope")
	}
	items, err := s.store.ListViolationsByArea(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, violationView(item))
	}
	return views, nil
}

// SubmitAppeal opens an appeal against a flagged violation. Only the
// violation's mapped owner may appeal. A fresh appeal after a district
// rejection starts directly at state_pending.
func (s *Service) SubmitAppeal(ctx context.Context, session Session, input SubmitAppealInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionSubmitAppeal) {
		return nil, errForbidden("only citizens submit appeals")
	}
	if input.Message == "" {
		return nil, errInvalidArgument("message is required", nil)
	}
	violation, err := s.store.GetViolation(ctx, input.ViolationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("violation not found")
		}
		return nil, err
	}
	if !violation.ViolationStatus {
		return nil, errInvalidArgument("violation is not flagged", nil)
	}
	if violation.OwnerEmail != caller.Email {
		return nil, errForbidden("only the violation owner may appeal")
	}

	pending, err := s.store.HasAppealAtStage(ctx, violation.ID, caller.ID, store.AppealDistrictPending)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, errInvalidState("an appeal is already awaiting district decision")
	}

	stage := store.AppealDistrictPending
	rejected, err := s.store.HasAppealAtStage(ctx, violation.ID, caller.ID, store.AppealDistrictRejected)
	if err != nil {
		return nil, err
	}
	if rejected {
		stage = store.AppealStatePending
	}

	now := time.Now()
	item := store.Appeal{
		ID:          util.NewID("appeal"),
		UserID:      caller.ID,
		UserEmail:   caller.Email,
		ViolationID: violation.ID,
		UserMessage: input.Message,
		Stage:       stage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertAppeal(ctx, item); err != nil {
		return nil, err
	}
	return appealView(item), nil
}

// MyAppeals lists the caller's appeals, newest first.
func (s *Service) MyAppeals(ctx context.Context, session Session) ([]map[string]any, error) {
	items, err := s.store.ListAppealsByUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return appealViews(items), nil
}

// AppealsDistrictQueue lists appeals awaiting district decision.
func (s *Service) AppealsDistrictQueue(ctx context.Context, session Session) ([]map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionDistrictDecide) {
		return nil, errForbidden("district admin role required")
	}
	items, err := s.store.ListAppealsByStage(ctx, store.AppealDistrictPending)
	if err != nil {
		return nil, err
	}
	return appealViews(items), nil
}

// AppealsStateQueue lists appeals awaiting state decision.
func (s *Service) AppealsStateQueue(ctx context.Context, session Session) ([]map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionStateDecide) {
		return nil, errForbidden("state admin role required")
	}
	items, err := s.store.ListAppealsByStage(ctx, store.AppealStatePending)
	if err != nil {
		return nil, err
	}
	return appealViews(items), nil
}

// DistrictDecideAppeal settles a district_pending appeal. Approve and
// forward both move it to state review; forward keeps a distinct audit
// trail for appeals the district could not decide.
func (s *Service) DistrictDecideAppeal(ctx context.Context, session Session, input AppealDecisionInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionDistrictDecide) {
		return nil, errForbidden("district admin role required")
	}
	item, err := s.store.GetAppeal(ctx, input.AppealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("appeal not found")
		}
		return nil, err
	}

	var nextStage, decision, remark string
	switch input.Decision {
	case "approve":
		nextStage = store.AppealStatePending
		decision = store.DistrictDecisionApproved
		remark = input.Remark
		if remark == "" {
			remark = districtApprovalRemark
		}
	case "reject":
		nextStage = store.AppealDistrictRejected
		decision = store.DistrictDecisionRejected
		remark = input.Remark
	case "forward":
		nextStage = store.AppealStatePending
		decision = store.DistrictDecisionForwarded
		remark = input.Remark
	default:
		return nil, errInvalidArgument("decision must be approve, reject or forward", nil)
	}

	ok, err := s.store.RecordDistrictAppealDecision(ctx, item.ID, nextStage, remark, decision)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errInvalidState("appeal is not awaiting district decision")
	}
	item.Stage = nextStage
	item.DistrictDecision = decision
	item.DistrictRemark = remark
	return appealView(item), nil
}

// StateDecideAppeal settles a state_pending appeal. Approval clears the
// referenced violation and appends an audit note to its admin comments;
// rejection leaves the violation flagged.
func (s *Service) StateDecideAppeal(ctx context.Context, session Session, input AppealDecisionInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionStateDecide) {
		return nil, errForbidden("state admin role required")
	}
	item, err := s.store.GetAppeal(ctx, input.AppealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("appeal not found")
		}
		return nil, err
	}

	var nextStage string
	switch input.Decision {
	case "approve":
		nextStage = store.AppealStateApproved
	case "reject":
		nextStage = store.AppealStateRejected
	default:
		return nil, errInvalidArgument("decision must be approve or reject", nil)
	}

	ok, err := s.store.RecordStateAppealDecision(ctx, item.ID, nextStage, input.Remark)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errInvalidState("appeal is not awaiting state decision")
	}
	item.Stage = nextStage
	item.StateRemark = input.Remark

	if nextStage == store.AppealStateApproved {
		if err := s.store.ClearViolation(ctx, item.ViolationID, "[Appeal upheld by State Admin.]"); err != nil {
			return nil, err
		}
		if violation, err := s.store.GetViolation(ctx, item.ViolationID); err == nil {
			s.indexViolation(violation)
		}
	}
	return appealView(item), nil
}

func appealViews(items []store.Appeal) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, appealView(item))
	}
	return views
}

func (s *Service) indexViolation(item store.Violation) {
	if s.search == nil {
		return
	}
	s.search.IndexViolation(search.ViolationRecord{
		ID:         item.ID,
		Comments:   item.AdminComments,
		OwnerEmail: item.OwnerEmail,
		AreaID:     string(item.AreaID),
		PlotID:     item.PlotID,
		Flagged:    item.ViolationStatus,
	})
}

// notifyViolation mails the snapshotted owner when SMTP is configured.
func (s *Service) notifyViolation(item store.Violation, cfg area.Config) {
	if s.mailer == nil || !s.mailer.IsConfigured() || item.OwnerEmail == "" {
		return
	}
	go func() {
		_ = s.mailer.SendViolationNotice(item.OwnerEmail, cfg.Name, item.PlotID, item.AdminComments)
	}()
}

// plotIDString keeps violation plot ids comparable with the numeric plot
// ids the registry uses.
func plotIDString(plotID int) string {
	return strconv.Itoa(plotID)
}
