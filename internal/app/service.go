// Package app wires the workflow engine together: the actor directory
// gates every operation, the store holds the four workflow collections,
// and the gateway packages (analyzer, blob, search, export, email) hang
// off the edges.
package app

import (
	"context"
	"errors"
	"io"
	"time"

	"landgov/api/internal/actor"
	"landgov/api/internal/analyzer"
	"landgov/api/internal/area"
	"landgov/api/internal/auth"
	"landgov/api/internal/authpw"
	"landgov/api/internal/blob"
	"landgov/api/internal/config"
	"landgov/api/internal/email"
	"landgov/api/internal/export"
	"landgov/api/internal/search"
	"landgov/api/internal/store"
	"landgov/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	AreaID       string
	PlotID       string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the consumer-side slice of the Postgres store the workflow
// engine depends on.
type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	FindUserByPlot(context.Context, area.ID, string) (store.User, error)
	ListCitizens(context.Context) ([]store.User, error)
	BindUserPlot(context.Context, string, area.ID, string) error

	ListPlots(context.Context, area.Config) ([]store.Plot, error)
	GetPlot(context.Context, area.Config, int) (store.Plot, error)

	InsertLandRequest(context.Context, store.LandRequest) error
	GetLandRequest(context.Context, string) (store.LandRequest, error)
	ListRequestsByStage(context.Context, string) ([]store.LandRequest, error)
	ListRequestsByCitizen(context.Context, string) ([]store.LandRequest, error)
	ListAllRequests(context.Context) ([]store.LandRequest, error)
	AdvanceRequestToState(context.Context, string, time.Time) (bool, error)
	RejectRequest(context.Context, string, string, string, time.Time) (bool, error)
	AllocateRequest(context.Context, area.Config, store.LandRequest, store.Lease) ([]string, error)

	GetLeaseByID(context.Context, string) (store.Lease, error)
	GetLeaseByOwner(context.Context, string) (store.Lease, error)
	GetLeaseByPlot(context.Context, int) (store.Lease, error)
	UpdateLeaseStatus(context.Context, string, string) error
	ListLeasesByArea(context.Context, area.ID) ([]store.Lease, error)

	UpsertViolation(context.Context, store.Violation) (store.Violation, error)
	GetViolation(context.Context, string) (store.Violation, error)
	GetFlaggedViolationByPlot(context.Context, area.ID, string) (store.Violation, error)
	GetFlaggedViolationByOwner(context.Context, string) (store.Violation, error)
	ListViolationsByArea(context.Context, area.ID) ([]store.Violation, error)
	ClearViolation(context.Context, string, string) error

	InsertAppeal(context.Context, store.Appeal) error
	GetAppeal(context.Context, string) (store.Appeal, error)
	HasAppealAtStage(context.Context, string, string, string) (bool, error)
	ListAppealsByUser(context.Context, string) ([]store.Appeal, error)
	ListAppealsByStage(context.Context, string) ([]store.Appeal, error)
	RecordDistrictAppealDecision(context.Context, string, string, string, string) (bool, error)
	RecordStateAppealDecision(context.Context, string, string, string) (bool, error)

	InsertSiteApplication(context.Context, store.SiteApplication) error
	GetSiteApplication(context.Context, string) (store.SiteApplication, error)
	ListSiteApplicationsByUser(context.Context, string) ([]store.SiteApplication, error)
	ListSiteApplications(context.Context) ([]store.SiteApplication, error)
	DecideSiteApplication(context.Context, string, string) (bool, error)

	Ping(ctx context.Context) error
}

// searchIndex is the slice of the search facade the workflow writes to
// and queries.
type searchIndex interface {
	Search(search.Query) search.Response
	IndexRequest(search.RequestRecord)
	IndexViolation(search.ViolationRecord)
	DeleteRequest(id string)
}

// sessionStore holds refresh sessions and the access-token revocation
// list. Satisfied by the Redis store, with the Postgres store as the
// fallback when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, store.User, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

// reportBlobs is the slice of the blob store needed to stream stored
// analysis reports back out.
type reportBlobs interface {
	Get(ctx context.Context, objectID string) (io.ReadCloser, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	analyzer  *analyzer.Gateway
	blobs     reportBlobs
	search    searchIndex
	exporter  *export.Service
	mailer    *email.Service
}

// New assembles the service. sessions may be nil, in which case refresh
// sessions live in Postgres alongside the workflow data. blobs may be nil
// when no report storage is configured.
func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, gateway *analyzer.Gateway, blobs *blob.Store, searcher *search.Service, exporter *export.Service, mailer *email.Service) *Service {
	if sessions == nil {
		sessions = dataStore
	}
	service := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: authpw.NewService(dataStore),
		analyzer:  gateway,
		exporter:  exporter,
		mailer:    mailer,
	}
	if blobs != nil {
		service.blobs = blobs
	}
	if searcher != nil {
		service.search = searcher
	}
	return service
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	req.Role = string(actor.RoleCitizen)
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, signUpError(err)
	}
	return s.issueSession(ctx, user)
}

func signUpError(err error) error {
	if errors.Is(err, authpw.ErrEmailTaken) {
		return errConflict(err.Error())
	}
	return errInvalidArgument(err.Error(), nil)
}

// SignUpAdmin creates an administrative account; the tier must be one of
// the three admin roles.
func (s *Service) SignUpAdmin(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	switch actor.Role(req.Role) {
	case actor.RoleBlockAdmin, actor.RoleDistrictAdmin, actor.RoleStateAdmin:
	default:
		return Session{}, errInvalidArgument("role must be block_admin, district_admin or state_admin", nil)
	}
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, signUpError(err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, errUnauthenticated(authpw.ErrInvalidCredentials.Error())
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, errUnauthenticated("invalid refresh token")
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Email:        user.Email,
		Role:         user.Role,
		AreaID:       user.AreaID,
		PlotID:       user.PlotID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Email:     user.Email,
		Role:      user.Role,
		AreaID:    user.AreaID,
		PlotID:    user.PlotID,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// actorOf turns a session into the explicit Actor parameter the workflow
// operations take.
func (s *Service) actorOf(session Session) actor.Actor {
	return actor.Actor{
		ID:     session.UserID,
		Name:   session.UserName,
		Email:  session.Email,
		Role:   actor.Normalize(session.Role),
		PlotID: session.PlotID,
		AreaID: area.ID(session.AreaID),
	}
}

func (s *Service) Can(role string, action actor.Action) bool {
	return actor.Can(actor.Normalize(role), action)
}

// ListAreas returns the static area catalog.
func (s *Service) ListAreas() []map[string]any {
	items := make([]map[string]any, 0, len(area.All()))
	for _, cfg := range area.All() {
		items = append(items, map[string]any{
			"id":           string(cfg.ID),
			"name":         cfg.Name,
			"officialMap":  cfg.OfficialMap,
			"satelliteMap": cfg.SatelliteMap,
		})
	}
	return items
}

// ListPlots returns the plots of one area together with their ownership
// state. Open to every authenticated caller; citizens browse before
// bidding.
func (s *Service) ListPlots(ctx context.Context, areaID string) ([]map[string]any, error) {
	cfg, err := area.Lookup(area.ID(areaID))
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}
	plots, err := s.store.ListPlots(ctx, cfg)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(plots))
	for _, plot := range plots {
		items = append(items, plotView(plot))
	}
	return items, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the session store when it is a separate backend.
// With the Postgres fallback the database check already covers it.
func (s *Service) PingSessions(ctx context.Context) error {
	if pinger, ok := s.sessions.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func plotView(plot store.Plot) map[string]any {
	status := "vacant"
	if plot.Bought {
		status = "allotted"
	}
	view := map[string]any{
		"plotId":        plot.PlotID,
		"areaId":        string(plot.AreaID),
		"points":        plot.Points,
		"status":        status,
		"leasePrice":    plot.LeasePrice,
		"leaseDuration": plot.LeaseDuration,
	}
	if plot.Bought {
		view["boughtBy"] = plot.BoughtBy
		if plot.AllotmentAt != nil {
			view["allotmentAt"] = plot.AllotmentAt.UTC().Format(time.RFC3339)
		}
	}
	return view
}

func requestView(item store.LandRequest) map[string]any {
	view := map[string]any{
		"id":            item.ID,
		"areaId":        string(item.AreaID),
		"plotId":        item.PlotID,
		"purpose":       item.Purpose,
		"quotedPrice":   item.QuotedPrice,
		"quotedBy":      item.QuotedBy,
		"workflowStage": item.WorkflowStage,
		"submittedAt":   item.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if item.DistrictApprovedAt != nil {
		view["districtApprovedAt"] = item.DistrictApprovedAt.UTC().Format(time.RFC3339)
	}
	if item.StateApprovedAt != nil {
		view["stateApprovedAt"] = item.StateApprovedAt.UTC().Format(time.RFC3339)
	}
	if item.RejectedAt != nil {
		view["rejectedAt"] = item.RejectedAt.UTC().Format(time.RFC3339)
		view["rejectedBy"] = item.RejectedBy
	}
	return view
}

func leaseView(lease store.Lease, remainingDays int) map[string]any {
	return map[string]any{
		"id":            lease.ID,
		"userEmail":     lease.UserEmail,
		"areaId":        string(lease.AreaID),
		"plotId":        lease.PlotID,
		"leaseYears":    lease.LeaseYears,
		"allotmentDate": lease.AllotmentDate.UTC().Format(time.RFC3339),
		"leaseEndDate":  lease.LeaseEndDate.UTC().Format(time.RFC3339),
		"status":        lease.Status,
		"bidPrice":      lease.BidPrice,
		"remainingDays": remainingDays,
	}
}

func violationView(item store.Violation) map[string]any {
	view := map[string]any{
		"id":              item.ID,
		"ownerEmail":      item.OwnerEmail,
		"areaId":          string(item.AreaID),
		"plotId":          item.PlotID,
		"violationStatus": item.ViolationStatus,
		"adminComments":   item.AdminComments,
		"analyzedAt":      item.AnalyzedAt.UTC().Format(time.RFC3339),
	}
	if item.ReportObjectID != "" {
		view["reportObjectId"] = item.ReportObjectID
		view["reportUrl"] = item.ReportURL
	}
	return view
}

func appealView(item store.Appeal) map[string]any {
	view := map[string]any{
		"id":          item.ID,
		"violationId": item.ViolationID,
		"userEmail":   item.UserEmail,
		"message":     item.UserMessage,
		"stage":       item.Stage,
		"createdAt":   item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.DistrictDecision != "" {
		view["districtDecision"] = item.DistrictDecision
		view["districtRemark"] = item.DistrictRemark
	}
	if item.StateRemark != "" {
		view["stateRemark"] = item.StateRemark
	}
	return view
}
