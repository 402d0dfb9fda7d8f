package app

import (
	"context"
	"testing"
	"time"

	"landgov/api/internal/area"
	"landgov/api/internal/store"
)

func seedLease(fs *fakeStore, id, email string, plotID int, endsIn time.Duration) store.Lease {
	now := time.Now()
	lease := store.Lease{
		ID:            id,
		UserEmail:     email,
		AreaID:        area.Area1,
		PlotID:        plotID,
		LeaseYears:    5,
		AllotmentDate: now.AddDate(-1, 0, 0),
		LeaseEndDate:  now.Add(endsIn),
		Status:        store.LeaseActive,
		BidPrice:      50000,
	}
	fs.mu.Lock()
	fs.leases[id] = lease
	fs.mu.Unlock()
	return lease
}

func TestLeaseLazyExpiry(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedLease(fs, "lease-1", "asha@example.com", 7, -48*time.Hour)
	svc := newTestService(fs)

	view, err := svc.MyLease(ctx, citizenSession("usr-1", "asha@example.com"))
	if err != nil {
		t.Fatalf("my lease: %v", err)
	}
	if view["status"] != store.LeaseExpired {
		t.Fatalf("expected expired, got %v", view["status"])
	}
	if view["remainingDays"] != 0 {
		t.Fatalf("expected zero remaining days, got %v", view["remainingDays"])
	}

	// The transition is persisted; a second read sees expired already.
	stored, _ := fs.GetLeaseByID(ctx, "lease-1")
	if stored.Status != store.LeaseExpired {
		t.Fatalf("expiry not persisted: %s", stored.Status)
	}
	again, err := svc.MyLease(ctx, citizenSession("usr-1", "asha@example.com"))
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if again["status"] != store.LeaseExpired {
		t.Fatalf("second read status: %v", again["status"])
	}
}

func TestLeaseRemainingDays(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedLease(fs, "lease-1", "asha@example.com", 7, 10*24*time.Hour+time.Hour)
	svc := newTestService(fs)

	view, err := svc.MyLease(ctx, citizenSession("usr-1", "asha@example.com"))
	if err != nil {
		t.Fatalf("my lease: %v", err)
	}
	if view["status"] != store.LeaseActive {
		t.Fatalf("expected active, got %v", view["status"])
	}
	if view["remainingDays"] != 10 {
		t.Fatalf("expected 10 remaining days, got %v", view["remainingDays"])
	}
}

func TestFlagLeaseIsSticky(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	seedLease(fs, "lease-1", "asha@example.com", 7, 30*24*time.Hour)
	svc := newTestService(fs)
	admin := adminSession("block_admin")

	view, err := svc.FlagLease(ctx, admin, FlagLeaseInput{LeaseID: "lease-1"})
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if view["status"] != store.LeaseWarningSent {
		t.Fatalf("expected warning_sent, got %v", view["status"])
	}

	// Flagging twice keeps warning_sent, and the status does not revert
	// on later reads.
	view, err = svc.FlagLease(ctx, admin, FlagLeaseInput{PlotID: 7})
	if err != nil {
		t.Fatalf("second flag: %v", err)
	}
	if view["status"] != store.LeaseWarningSent {
		t.Fatalf("expected warning_sent after re-flag, got %v", view["status"])
	}
	read, err := svc.MyLease(ctx, citizenSession("usr-1", "asha@example.com"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if read["status"] != store.LeaseWarningSent {
		t.Fatalf("warning_sent must be sticky, got %v", read["status"])
	}
}

func TestFlagLeaseGuards(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := newTestService(fs)

	_, err := svc.FlagLease(ctx, citizenSession("usr-1", "asha@example.com"), FlagLeaseInput{LeaseID: "lease-1"})
	wantCode(t, err, "FORBIDDEN")

	_, err = svc.FlagLease(ctx, adminSession("state_admin"), FlagLeaseInput{})
	wantCode(t, err, "INVALID_ARGUMENT")

	_, err = svc.FlagLease(ctx, adminSession("state_admin"), FlagLeaseInput{LeaseID: "missing"})
	wantCode(t, err, "NOT_FOUND")

	_, err = svc.MyLease(ctx, citizenSession("usr-1", "nobody@example.com"))
	wantCode(t, err, "NOT_FOUND")
}
