package app

import (
	"context"
	"testing"

	"landgov/api/internal/store"
)

func floatPtr(v float64) *float64 { return &v }

func validApplicationInput() SubmitApplicationInput {
	return SubmitApplicationInput{
		Latitude:           floatPtr(23.3441),
		Longitude:          floatPtr(85.3096),
		AddressDescription: "east of the canal road",
		QuotedPrice:        75000,
	}
}

func TestSubmitApplicationValidation(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := newTestService(fs)
	citizen := citizenSession("usr-1", "asha@example.com")

	missingLat := validApplicationInput()
	missingLat.Latitude = nil
	missingLon := validApplicationInput()
	missingLon.Longitude = nil
	zeroPrice := validApplicationInput()
	zeroPrice.QuotedPrice = 0

	cases := []struct {
		name  string
		input SubmitApplicationInput
		code  string
	}{
		{"missing latitude", missingLat, "INVALID_ARGUMENT"},
		{"missing longitude", missingLon, "INVALID_ARGUMENT"},
		{"non-positive price", zeroPrice, "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitApplication(ctx, citizen, tc.input)
			wantCode(t, err, tc.code)
		})
	}

	_, err := svc.SubmitApplication(ctx, adminSession("district_admin"), validApplicationInput())
	wantCode(t, err, "FORBIDDEN")
}

func TestSubmitApplicationSnapshotsApplicant(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fs.users["usr-1"] = store.User{ID: "usr-1", Name: "Asha", Email: "asha@example.com", Role: "citizen", ContactNumber: "9900112233"}
	svc := newTestService(fs)

	view, err := svc.SubmitApplication(ctx, citizenSession("usr-1", "asha@example.com"), validApplicationInput())
	if err != nil {
		t.Fatalf("submit application: %v", err)
	}
	if view["status"] != store.ApplicationPending {
		t.Fatalf("new applications start pending, got %v", view["status"])
	}
	if view["contactNumber"] != "9900112233" {
		t.Fatalf("contact number not snapshotted: %v", view)
	}
	if view["latitude"] != 23.3441 || view["longitude"] != 85.3096 {
		t.Fatalf("coordinates lost: %v", view)
	}

	item, err := fs.GetSiteApplication(ctx, view["id"].(string))
	if err != nil {
		t.Fatalf("stored application missing: %v", err)
	}
	if item.UserID != "usr-1" || item.QuotedPrice != 75000 {
		t.Fatalf("unexpected stored application: %+v", item)
	}
}

func TestListApplicationsVisibility(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := newTestService(fs)

	if _, err := svc.SubmitApplication(ctx, citizenSession("usr-1", "asha@example.com"), validApplicationInput()); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	if _, err := svc.SubmitApplication(ctx, citizenSession("usr-2", "birju@example.com"), validApplicationInput()); err != nil {
		t.Fatalf("submit second: %v", err)
	}

	mine, err := svc.ListApplications(ctx, citizenSession("usr-1", "asha@example.com"))
	if err != nil {
		t.Fatalf("citizen list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("citizens see their own applications only, got %d", len(mine))
	}

	all, err := svc.ListApplications(ctx, adminSession("block_admin"))
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admins see every application, got %d", len(all))
	}
}

func TestDecideApplication(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := newTestService(fs)

	view, err := svc.SubmitApplication(ctx, citizenSession("usr-1", "asha@example.com"), validApplicationInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	applicationID := view["id"].(string)
	admin := adminSession("district_admin")

	_, err = svc.DecideApplication(ctx, citizenSession("usr-1", "asha@example.com"), ApplicationDecisionInput{ApplicationID: applicationID, Decision: "approve"})
	wantCode(t, err, "FORBIDDEN")

	_, err = svc.DecideApplication(ctx, admin, ApplicationDecisionInput{ApplicationID: applicationID, Decision: "maybe"})
	wantCode(t, err, "INVALID_ARGUMENT")

	_, err = svc.DecideApplication(ctx, admin, ApplicationDecisionInput{ApplicationID: "appl-404", Decision: "approve"})
	wantCode(t, err, "NOT_FOUND")

	decided, err := svc.DecideApplication(ctx, admin, ApplicationDecisionInput{ApplicationID: applicationID, Decision: "approve"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if decided["status"] != store.ApplicationApproved {
		t.Fatalf("expected approved, got %v", decided["status"])
	}

	// Decisions are single-shot; a second one finds no pending row.
	_, err = svc.DecideApplication(ctx, admin, ApplicationDecisionInput{ApplicationID: applicationID, Decision: "reject"})
	wantCode(t, err, "INVALID_STATE")
}

func TestDecideApplicationReject(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := newTestService(fs)

	view, err := svc.SubmitApplication(ctx, citizenSession("usr-1", "asha@example.com"), validApplicationInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	decided, err := svc.DecideApplication(ctx, adminSession("state_admin"), ApplicationDecisionInput{ApplicationID: view["id"].(string), Decision: "reject"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if decided["status"] != store.ApplicationRejected {
		t.Fatalf("expected rejected, got %v", decided["status"])
	}
}
