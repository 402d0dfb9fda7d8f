package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"landgov/api/internal/area"
	"landgov/api/internal/authpw"
	"landgov/api/internal/config"
	"landgov/api/internal/store"
)

// fakeStore is an in-memory stand-in for the Postgres store. It mirrors
// the conditional-update semantics the real store enforces, including the
// single-winner allocation gate.
type fakeStore struct {
	mu sync.Mutex

	users        map[string]store.User // by id
	plots        map[area.ID]map[int]store.Plot
	requests     map[string]store.LandRequest
	leases       map[string]store.Lease
	violations   map[string]store.Violation
	appeals      map[string]store.Appeal
	applications map[string]store.SiteApplication

	refresh map[string]fakeRefresh
	revoked map[string]bool
}

type fakeRefresh struct {
	user      store.User
	expiresAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]store.User),
		plots:        make(map[area.ID]map[int]store.Plot),
		requests:     make(map[string]store.LandRequest),
		leases:       make(map[string]store.Lease),
		violations:   make(map[string]store.Violation),
		appeals:      make(map[string]store.Appeal),
		applications: make(map[string]store.SiteApplication),
		refresh:      make(map[string]fakeRefresh),
		revoked:      make(map[string]bool),
	}
}

func (f *fakeStore) addPlot(plot store.Plot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.plots[plot.AreaID] == nil {
		f.plots[plot.AreaID] = make(map[int]store.Plot)
	}
	f.plots[plot.AreaID][plot.PlotID] = plot
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) FindUserByPlot(_ context.Context, areaID area.ID, plotID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.AreaID == string(areaID) && user.PlotID == plotID {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) ListCitizens(_ context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	citizens := make([]store.User, 0)
	for _, user := range f.users {
		if user.Role == "citizen" {
			citizens = append(citizens, user)
		}
	}
	sort.Slice(citizens, func(i, j int) bool { return citizens[i].CreatedAt.After(citizens[j].CreatedAt) })
	return citizens, nil
}

func (f *fakeStore) BindUserPlot(_ context.Context, email string, areaID area.ID, plotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			user.AreaID = string(areaID)
			user.PlotID = plotID
			f.users[id] = user
		}
	}
	return nil
}

func (f *fakeStore) ListPlots(_ context.Context, cfg area.Config) ([]store.Plot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plots := make([]store.Plot, 0, len(f.plots[cfg.ID]))
	for _, plot := range f.plots[cfg.ID] {
		plots = append(plots, plot)
	}
	sort.Slice(plots, func(i, j int) bool { return plots[i].PlotID < plots[j].PlotID })
	return plots, nil
}

func (f *fakeStore) GetPlot(_ context.Context, cfg area.Config, plotID int) (store.Plot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plot, ok := f.plots[cfg.ID][plotID]
	if !ok {
		return store.Plot{}, sql.ErrNoRows
	}
	return plot, nil
}

func (f *fakeStore) InsertLandRequest(_ context.Context, item store.LandRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[item.ID] = item
	return nil
}

func (f *fakeStore) GetLandRequest(_ context.Context, requestID string) (store.LandRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.requests[requestID]
	if !ok {
		return store.LandRequest{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListRequestsByStage(_ context.Context, stage string) ([]store.LandRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.LandRequest, 0)
	for _, item := range f.requests {
		if item.WorkflowStage == stage {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if stage == store.StageStatePending && items[i].DistrictApprovedAt != nil && items[j].DistrictApprovedAt != nil {
			return items[i].DistrictApprovedAt.Before(*items[j].DistrictApprovedAt)
		}
		return items[i].SubmittedAt.Before(items[j].SubmittedAt)
	})
	return items, nil
}

func (f *fakeStore) ListRequestsByCitizen(_ context.Context, email string) ([]store.LandRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.LandRequest, 0)
	for _, item := range f.requests {
		if strings.EqualFold(item.QuotedBy, email) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SubmittedAt.After(items[j].SubmittedAt) })
	return items, nil
}

func (f *fakeStore) ListAllRequests(_ context.Context) ([]store.LandRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.LandRequest, 0, len(f.requests))
	for _, item := range f.requests {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SubmittedAt.Before(items[j].SubmittedAt) })
	return items, nil
}

func (f *fakeStore) AdvanceRequestToState(_ context.Context, requestID string, when time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.requests[requestID]
	if !ok || item.WorkflowStage != store.StageDistrictPending {
		return false, nil
	}
	item.WorkflowStage = store.StageStatePending
	item.DistrictApprovedAt = &when
	f.requests[requestID] = item
	return true, nil
}

func (f *fakeStore) RejectRequest(_ context.Context, requestID, expectedStage, rejectedBy string, when time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.requests[requestID]
	if !ok || item.WorkflowStage != expectedStage {
		return false, nil
	}
	item.WorkflowStage = store.StageRejected
	item.RejectedAt = &when
	item.RejectedBy = rejectedBy
	f.requests[requestID] = item
	return true, nil
}

func (f *fakeStore) AllocateRequest(_ context.Context, cfg area.Config, request store.LandRequest, lease store.Lease) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plot, ok := f.plots[cfg.ID][request.PlotID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if plot.Bought {
		return nil, store.ErrPlotAlreadyAllocated
	}
	now := lease.AllotmentDate
	plot.Bought = true
	plot.BoughtBy = request.QuotedBy
	plot.AllotmentAt = &now
	f.plots[cfg.ID][request.PlotID] = plot

	// Lease upsert on (area, plot).
	for id, existing := range f.leases {
		if existing.AreaID == lease.AreaID && existing.PlotID == lease.PlotID {
			delete(f.leases, id)
		}
	}
	f.leases[lease.ID] = lease

	item := f.requests[request.ID]
	item.WorkflowStage = store.StageAllocated
	item.StateApprovedAt = &now
	f.requests[request.ID] = item

	var purged []string
	for id, other := range f.requests {
		if id != request.ID && other.AreaID == request.AreaID && other.PlotID == request.PlotID {
			delete(f.requests, id)
			purged = append(purged, id)
		}
	}

	for id, user := range f.users {
		if strings.EqualFold(user.Email, request.QuotedBy) {
			user.AreaID = string(request.AreaID)
			user.PlotID = plotIDString(request.PlotID)
			f.users[id] = user
		}
	}
	return purged, nil
}

func (f *fakeStore) GetLeaseByID(_ context.Context, leaseID string) (store.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lease, ok := f.leases[leaseID]
	if !ok {
		return store.Lease{}, sql.ErrNoRows
	}
	return lease, nil
}

func (f *fakeStore) GetLeaseByOwner(_ context.Context, email string) (store.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lease := range f.leases {
		if strings.EqualFold(lease.UserEmail, email) {
			return lease, nil
		}
	}
	return store.Lease{}, sql.ErrNoRows
}

func (f *fakeStore) GetLeaseByPlot(_ context.Context, plotID int) (store.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lease := range f.leases {
		if lease.PlotID == plotID {
			return lease, nil
		}
	}
	return store.Lease{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateLeaseStatus(_ context.Context, leaseID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lease, ok := f.leases[leaseID]
	if !ok {
		return sql.ErrNoRows
	}
	lease.Status = status
	f.leases[leaseID] = lease
	return nil
}

func (f *fakeStore) ListLeasesByArea(_ context.Context, areaID area.ID) ([]store.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Lease, 0)
	for _, lease := range f.leases {
		if lease.AreaID == areaID {
			items = append(items, lease)
		}
	}
	return items, nil
}

func (f *fakeStore) UpsertViolation(_ context.Context, item store.Violation) (store.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.violations {
		if existing.AreaID == item.AreaID && existing.PlotID == item.PlotID {
			existing.ViolationStatus = true
			existing.AnalyzedAt = item.AnalyzedAt
			existing.UpdatedAt = item.AnalyzedAt
			if item.OwnerEmail != "" {
				existing.OwnerEmail = item.OwnerEmail
				existing.UserID = item.UserID
			}
			if item.AdminComments != "" {
				existing.AdminComments = item.AdminComments
			}
			if item.ReportObjectID != "" {
				existing.ReportObjectID = item.ReportObjectID
				existing.ReportURL = item.ReportURL
			}
			if item.OutputImagePath != "" {
				existing.OutputImagePath = item.OutputImagePath
			}
			f.violations[id] = existing
			return existing, nil
		}
	}
	f.violations[item.ID] = item
	return item, nil
}

func (f *fakeStore) GetViolation(_ context.Context, violationID string) (store.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.violations[violationID]
	if !ok {
		return store.Violation{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) GetFlaggedViolationByPlot(_ context.Context, areaID area.ID, plotID string) (store.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.violations {
		if item.AreaID == areaID && item.PlotID == plotID && item.ViolationStatus {
			return item, nil
		}
	}
	return store.Violation{}, sql.ErrNoRows
}

func (f *fakeStore) GetFlaggedViolationByOwner(_ context.Context, email string) (store.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.violations {
		if strings.EqualFold(item.OwnerEmail, email) && item.ViolationStatus {
			return item, nil
		}
	}
	return store.Violation{}, sql.ErrNoRows
}

func (f *fakeStore) ListViolationsByArea(_ context.Context, areaID area.ID) ([]store.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Violation, 0)
	for _, item := range f.violations {
		if item.AreaID == areaID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) ClearViolation(_ context.Context, violationID, auditNote string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.violations[violationID]
	if !ok {
		return sql.ErrNoRows
	}
	item.ViolationStatus = false
	item.AdminComments = strings.TrimSpace(item.AdminComments + " " + auditNote)
	f.violations[violationID] = item
	return nil
}

func (f *fakeStore) InsertAppeal(_ context.Context, item store.Appeal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appeals[item.ID] = item
	return nil
}

func (f *fakeStore) GetAppeal(_ context.Context, appealID string) (store.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.appeals[appealID]
	if !ok {
		return store.Appeal{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) HasAppealAtStage(_ context.Context, violationID, userID, stage string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.appeals {
		if item.ViolationID == violationID && item.UserID == userID && item.Stage == stage {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListAppealsByUser(_ context.Context, userID string) ([]store.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Appeal, 0)
	for _, item := range f.appeals {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) ListAppealsByStage(_ context.Context, stage string) ([]store.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Appeal, 0)
	for _, item := range f.appeals {
		if item.Stage == stage {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) RecordDistrictAppealDecision(_ context.Context, appealID, nextStage, remark, decision string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.appeals[appealID]
	if !ok || item.Stage != store.AppealDistrictPending {
		return false, nil
	}
	item.Stage = nextStage
	item.DistrictRemark = remark
	item.DistrictDecision = decision
	f.appeals[appealID] = item
	return true, nil
}

func (f *fakeStore) RecordStateAppealDecision(_ context.Context, appealID, nextStage, remark string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.appeals[appealID]
	if !ok || item.Stage != store.AppealStatePending {
		return false, nil
	}
	item.Stage = nextStage
	item.StateRemark = remark
	f.appeals[appealID] = item
	return true, nil
}

func (f *fakeStore) InsertSiteApplication(_ context.Context, item store.SiteApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applications[item.ID] = item
	return nil
}

func (f *fakeStore) GetSiteApplication(_ context.Context, applicationID string) (store.SiteApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.applications[applicationID]
	if !ok {
		return store.SiteApplication{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListSiteApplicationsByUser(_ context.Context, userID string) ([]store.SiteApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.SiteApplication, 0)
	for _, item := range f.applications {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) ListSiteApplications(_ context.Context) ([]store.SiteApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.SiteApplication, 0, len(f.applications))
	for _, item := range f.applications {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) DecideSiteApplication(_ context.Context, applicationID, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.applications[applicationID]
	if !ok || item.Status != store.ApplicationPending {
		return false, nil
	}
	item.Status = status
	item.UpdatedAt = time.Now()
	f.applications[applicationID] = item
	return true, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = fakeRefresh{user: user, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.refresh[tokenHash]
	if !ok || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return record.user, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:       "test-secret",
		AccessTTL:       time.Hour,
		RefreshTTL:      24 * time.Hour,
		AnalyzerTimeout: time.Second,
	}
	return &Service{
		cfg:       cfg,
		store:     fs,
		sessions:  fs,
		passwords: authpw.NewService(fs),
	}
}

func citizenSession(id, email string) Session {
	return Session{UserID: id, UserName: "Citizen " + id, Email: email, Role: "citizen"}
}

func adminSession(role string) Session {
	return Session{UserID: "usr-" + role, UserName: role, Email: role + "@gov.test", Role: role}
}
