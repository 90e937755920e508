package repositories

import (
	"context"
	"testing"
	"time"
)

func TestEnsureBootCreatesAndRearms(t *testing.T) {
	repo := NewStateRepository(newTestDB(t))
	ctx := context.Background()
	boot := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	if err := repo.EnsureBoot(ctx, boot); err != nil {
		t.Fatalf("first boot: %v", err)
	}

	st, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.BootWallclock.Equal(boot) {
		t.Errorf("boot wallclock = %s, expected %s", st.BootWallclock, boot)
	}
	if st.TimeCorrectionApplied {
		t.Error("fresh boot must not have the correction applied")
	}

	// Apply, then boot again: the flag must re-arm.
	if err := repo.SetTimeCorrectionApplied(ctx, true); err != nil {
		t.Fatal(err)
	}
	reboot := boot.Add(24 * time.Hour)
	if err := repo.EnsureBoot(ctx, reboot); err != nil {
		t.Fatalf("second boot: %v", err)
	}

	st, _ = repo.Load(ctx)
	if !st.BootWallclock.Equal(reboot) {
		t.Errorf("boot wallclock not updated: %s", st.BootWallclock)
	}
	if st.TimeCorrectionApplied {
		t.Error("reboot must re-arm the skew correction")
	}
}

func TestLastBroadcastDate(t *testing.T) {
	repo := NewStateRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.EnsureBoot(ctx, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	date, err := repo.LastBroadcastDate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if date != "" {
		t.Errorf("expected empty date before any broadcast, got %q", date)
	}

	if err := repo.SetLastBroadcastDate(ctx, "2026-03-01"); err != nil {
		t.Fatal(err)
	}
	date, _ = repo.LastBroadcastDate(ctx)
	if date != "2026-03-01" {
		t.Errorf("expected persisted date, got %q", date)
	}
}
