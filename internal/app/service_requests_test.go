package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"landgov/api/internal/area"
	"landgov/api/internal/search"
	"landgov/api/internal/store"
)

// fakeSearch records index writes so tests can observe what the workflow
// pushes into and removes from the search index.
type fakeSearch struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
}

func (f *fakeSearch) Search(search.Query) search.Response {
	return search.Response{Results: []search.Result{}}
}

func (f *fakeSearch) IndexRequest(r search.RequestRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, r.ID)
}

func (f *fakeSearch) IndexViolation(search.ViolationRecord) {}

func (f *fakeSearch) DeleteRequest(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeSearch) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
}

func seedPlot(fs *fakeStore, areaID string, plotID int, years int) {
	fs.addPlot(store.Plot{
		PlotID:        plotID,
		AreaID:        area.ID(areaID),
		Points:        "120,80 220,80 220,180 120,180",
		LeasePrice:    40000,
		LeaseDuration: years,
	})
}

func mustArea(t *testing.T, id string) area.Config {
	t.Helper()
	cfg, err := area.Lookup(area.ID(id))
	if err != nil {
		t.Fatalf("area %s: %v", id, err)
	}
	return cfg
}

func TestSubmitRequestValidation(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 7, 5)
	svc := newTestService(fs)
	citizen := citizenSession("usr-1", "asha@example.com")

	cases := []struct {
		name  string
		input SubmitRequestInput
		code  string
	}{
		{"missing purpose", SubmitRequestInput{AreaID: "area-1", PlotID: 7, QuotedPrice: 50000}, "INVALID_ARGUMENT"},
		{"non-positive price", SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse"}, "INVALID_ARGUMENT"},
		{"unknown area", SubmitRequestInput{AreaID: "area-9", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000}, "INVALID_ARGUMENT"},
		{"unknown plot", SubmitRequestInput{AreaID: "area-1", PlotID: 99, Purpose: "warehouse", QuotedPrice: 50000}, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitRequest(ctx, citizen, tc.input)
			wantCode(t, err, tc.code)
		})
	}

	if _, err := svc.SubmitRequest(ctx, adminSession("district_admin"), SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000}); err == nil {
		t.Fatal("expected admins to be rejected")
	}
}

func TestRequestStageNeverRegresses(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 7, 5)
	svc := newTestService(fs)
	citizen := citizenSession("usr-1", "asha@example.com")

	view, err := svc.SubmitRequest(ctx, citizen, SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requestID := view["id"].(string)

	// State cannot allocate a request district has not cleared.
	_, err = svc.StateDecide(ctx, adminSession("state_admin"), RequestDecisionInput{RequestID: requestID, Decision: "accept"})
	wantCode(t, err, "INVALID_STATE")
	item, _ := fs.GetLandRequest(ctx, requestID)
	if item.WorkflowStage != store.StageDistrictPending {
		t.Fatalf("failed state decision must not mutate, stage = %s", item.WorkflowStage)
	}

	if _, err := svc.DistrictDecide(ctx, adminSession("district_admin"), RequestDecisionInput{RequestID: requestID, Decision: "approve"}); err != nil {
		t.Fatalf("district approve: %v", err)
	}

	// A second district decision on the same request fails.
	_, err = svc.DistrictDecide(ctx, adminSession("district_admin"), RequestDecisionInput{RequestID: requestID, Decision: "approve"})
	wantCode(t, err, "INVALID_STATE")
	_, err = svc.DistrictDecide(ctx, adminSession("district_admin"), RequestDecisionInput{RequestID: requestID, Decision: "reject"})
	wantCode(t, err, "INVALID_STATE")
}

func TestAllocationScenario(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 7, 5)
	svc := newTestService(fs)

	winner := citizenSession("usr-1", "asha@example.com")
	loser := citizenSession("usr-2", "birju@example.com")
	fs.users["usr-1"] = store.User{ID: "usr-1", Name: "Asha", Email: "asha@example.com", Role: "citizen"}
	fs.users["usr-2"] = store.User{ID: "usr-2", Name: "Birju", Email: "birju@example.com", Role: "citizen"}

	winView, err := svc.SubmitRequest(ctx, winner, SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000})
	if err != nil {
		t.Fatalf("submit winner: %v", err)
	}
	loseView, err := svc.SubmitRequest(ctx, loser, SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "workshop", QuotedPrice: 48000})
	if err != nil {
		t.Fatalf("submit loser: %v", err)
	}
	winID := winView["id"].(string)
	loseID := loseView["id"].(string)

	district := adminSession("district_admin")
	if _, err := svc.DistrictDecide(ctx, district, RequestDecisionInput{RequestID: winID, Decision: "approve"}); err != nil {
		t.Fatalf("district approve: %v", err)
	}
	if _, err := svc.DistrictDecide(ctx, district, RequestDecisionInput{RequestID: loseID, Decision: "approve"}); err != nil {
		t.Fatalf("district approve loser: %v", err)
	}

	state := adminSession("state_admin")
	view, err := svc.StateDecide(ctx, state, RequestDecisionInput{RequestID: winID, Decision: "accept"})
	if err != nil {
		t.Fatalf("state accept: %v", err)
	}
	if view["workflowStage"] != store.StageAllocated {
		t.Fatalf("expected allocated, got %v", view["workflowStage"])
	}

	plot, _ := fs.GetPlot(ctx, mustArea(t, "area-1"), 7)
	if !plot.Bought || plot.BoughtBy != "asha@example.com" {
		t.Fatalf("plot not bound to winner: %+v", plot)
	}

	lease, err := fs.GetLeaseByPlot(ctx, 7)
	if err != nil {
		t.Fatalf("lease missing: %v", err)
	}
	if lease.Status != store.LeaseActive || lease.BidPrice != 50000 || lease.LeaseYears != 5 {
		t.Fatalf("unexpected lease: %+v", lease)
	}

	// Competing requests for the plot are purged.
	if _, err := fs.GetLandRequest(ctx, loseID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("competing request still present: %v", err)
	}

	// The winner's user record is bound to the plot.
	owner, _ := fs.GetUserByID(ctx, "usr-1")
	if owner.PlotID != "7" || owner.AreaID != "area-1" {
		t.Fatalf("owner binding missing: %+v", owner)
	}
}

func TestAllocationDropsLosingBidsFromIndex(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 7, 5)
	svc := newTestService(fs)
	index := &fakeSearch{}
	svc.search = index

	winner := citizenSession("usr-1", "asha@example.com")
	loser := citizenSession("usr-2", "birju@example.com")

	winView, err := svc.SubmitRequest(ctx, winner, SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000})
	if err != nil {
		t.Fatalf("submit winner: %v", err)
	}
	loseView, err := svc.SubmitRequest(ctx, loser, SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "workshop", QuotedPrice: 48000})
	if err != nil {
		t.Fatalf("submit loser: %v", err)
	}
	winID := winView["id"].(string)
	loseID := loseView["id"].(string)

	district := adminSession("district_admin")
	if _, err := svc.DistrictDecide(ctx, district, RequestDecisionInput{RequestID: winID, Decision: "approve"}); err != nil {
		t.Fatalf("district approve winner: %v", err)
	}
	if _, err := svc.DistrictDecide(ctx, district, RequestDecisionInput{RequestID: loseID, Decision: "approve"}); err != nil {
		t.Fatalf("district approve loser: %v", err)
	}

	if _, err := svc.StateDecide(ctx, adminSession("state_admin"), RequestDecisionInput{RequestID: winID, Decision: "accept"}); err != nil {
		t.Fatalf("state accept: %v", err)
	}

	// The purged competitor leaves the index with its row.
	deleted := index.deletedIDs()
	if len(deleted) != 1 || deleted[0] != loseID {
		t.Fatalf("expected the losing bid %s to be dropped from the index, got %v", loseID, deleted)
	}

	// The winner stays indexed, re-pushed with its allocated stage.
	found := false
	for _, id := range index.indexed {
		if id == winID {
			found = true
		}
	}
	if !found {
		t.Fatalf("winning bid %s was never indexed", winID)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 7, 5)
	svc := newTestService(fs)

	first := citizenSession("usr-1", "asha@example.com")
	second := citizenSession("usr-2", "birju@example.com")

	firstView, _ := svc.SubmitRequest(ctx, first, SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000})
	secondView, _ := svc.SubmitRequest(ctx, second, SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "workshop", QuotedPrice: 52000})
	firstID := firstView["id"].(string)
	secondID := secondView["id"].(string)

	district := adminSession("district_admin")
	state := adminSession("state_admin")
	svc.DistrictDecide(ctx, district, RequestDecisionInput{RequestID: firstID, Decision: "approve"})
	svc.DistrictDecide(ctx, district, RequestDecisionInput{RequestID: secondID, Decision: "approve"})

	// Both requests are state_pending; read them before either accept so
	// the second accept races past the stage precheck like a concurrent
	// caller would.
	firstReq, _ := fs.GetLandRequest(ctx, firstID)
	secondReq, _ := fs.GetLandRequest(ctx, secondID)

	cfg := mustArea(t, "area-1")
	plot, _ := fs.GetPlot(ctx, cfg, 7)
	leaseA := store.Lease{ID: "lease-a", UserEmail: firstReq.QuotedBy, AreaID: cfg.ID, PlotID: 7, LeaseYears: plot.LeaseDuration, AllotmentDate: firstReq.SubmittedAt, LeaseEndDate: firstReq.SubmittedAt.AddDate(plot.LeaseDuration, 0, 0), Status: store.LeaseActive, BidPrice: firstReq.QuotedPrice}
	leaseB := store.Lease{ID: "lease-b", UserEmail: secondReq.QuotedBy, AreaID: cfg.ID, PlotID: 7, LeaseYears: plot.LeaseDuration, AllotmentDate: secondReq.SubmittedAt, LeaseEndDate: secondReq.SubmittedAt.AddDate(plot.LeaseDuration, 0, 0), Status: store.LeaseActive, BidPrice: secondReq.QuotedPrice}

	if _, err := fs.AllocateRequest(ctx, cfg, firstReq, leaseA); err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	_, err := fs.AllocateRequest(ctx, cfg, secondReq, leaseB)
	if !errors.Is(err, store.ErrPlotAlreadyAllocated) {
		t.Fatalf("expected ErrPlotAlreadyAllocated, got %v", err)
	}

	// The service maps the losing race to Conflict.
	_, err = svc.StateDecide(ctx, state, RequestDecisionInput{RequestID: secondID, Decision: "accept"})
	if err == nil {
		t.Fatal("second accept should fail")
	}

	count := 0
	for _, lease := range fs.leases {
		if lease.PlotID == 7 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one lease, got %d", count)
	}
}

func TestStateDecideConflict(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 7, 5)
	svc := newTestService(fs)

	view, _ := svc.SubmitRequest(ctx, citizenSession("usr-1", "asha@example.com"), SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000})
	requestID := view["id"].(string)
	svc.DistrictDecide(ctx, adminSession("district_admin"), RequestDecisionInput{RequestID: requestID, Decision: "approve"})

	// Someone else grabbed the plot after the stage check would pass.
	fs.mu.Lock()
	plot := fs.plots["area-1"][7]
	plot.Bought = true
	fs.plots["area-1"][7] = plot
	fs.mu.Unlock()

	_, err := svc.StateDecide(ctx, adminSession("state_admin"), RequestDecisionInput{RequestID: requestID, Decision: "accept"})
	wantCode(t, err, "CONFLICT")
}

func TestDistrictQueueScope(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 1, 5)
	seedPlot(fs, "area-3", 2, 5)
	svc := newTestService(fs)

	svc.SubmitRequest(ctx, citizenSession("usr-1", "a@example.com"), SubmitRequestInput{AreaID: "area-1", PlotID: 1, Purpose: "depot", QuotedPrice: 10000})
	svc.SubmitRequest(ctx, citizenSession("usr-2", "b@example.com"), SubmitRequestInput{AreaID: "area-3", PlotID: 2, Purpose: "depot", QuotedPrice: 10000})

	queue, err := svc.DistrictQueue(ctx, adminSession("district_admin"))
	if err != nil {
		t.Fatalf("district queue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("district admin scope covers areas 1 and 2 only, got %d items", len(queue))
	}
	if queue[0]["areaId"] != "area-1" {
		t.Fatalf("unexpected queue entry: %v", queue[0])
	}

	if _, err := svc.DistrictQueue(ctx, citizenSession("usr-1", "a@example.com")); err == nil {
		t.Fatal("citizens must not read the district queue")
	}
}

func TestRejectionPaths(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedPlot(fs, "area-1", 7, 5)
	svc := newTestService(fs)

	view, _ := svc.SubmitRequest(ctx, citizenSession("usr-1", "asha@example.com"), SubmitRequestInput{AreaID: "area-1", PlotID: 7, Purpose: "warehouse", QuotedPrice: 50000})
	requestID := view["id"].(string)

	rejected, err := svc.DistrictDecide(ctx, adminSession("district_admin"), RequestDecisionInput{RequestID: requestID, Decision: "reject"})
	if err != nil {
		t.Fatalf("district reject: %v", err)
	}
	if rejected["workflowStage"] != store.StageRejected || rejected["rejectedBy"] != "district" {
		t.Fatalf("unexpected rejection view: %v", rejected)
	}

	// Terminal stages accept no further decisions.
	_, err = svc.StateDecide(ctx, adminSession("state_admin"), RequestDecisionInput{RequestID: requestID, Decision: "decline"})
	wantCode(t, err, "INVALID_STATE")
}
