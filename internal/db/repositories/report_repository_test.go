package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	gormlib "gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lora-osmnotes/gateway/internal/db"
	models "lora-osmnotes/gateway/internal/models/gorm"
)

func newTestDB(t *testing.T) *gormlib.DB {
	t.Helper()
	gdb, err := gormlib.Open(sqlite.Open("file::memory:"), &gormlib.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestAppendMintsSequentialQueueIDs(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.Append(ctx, "!a", 4.6, -74.0, "hueco", "hueco", now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := repo.Append(ctx, "!b", 4.7, -74.1, "poste", "poste", now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if first != "Q-0001" || second != "Q-0002" {
		t.Errorf("expected Q-0001/Q-0002, got %s/%s", first, second)
	}

	rep, err := repo.GetByQueueID(ctx, first)
	if err != nil || rep == nil {
		t.Fatalf("get by queue id: %v, %v", rep, err)
	}
	if rep.Status != models.StatusPending {
		t.Errorf("new report must be pending, got %s", rep.Status)
	}
}

func TestFormatQueueIDGrowsPastPadding(t *testing.T) {
	if got := FormatQueueID(7); got != "Q-0007" {
		t.Errorf("expected Q-0007, got %s", got)
	}
	if got := FormatQueueID(12345); got != "Q-12345" {
		t.Errorf("expected Q-12345, got %s", got)
	}
}

func TestGetByQueueIDMissing(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	rep, err := repo.GetByQueueID(context.Background(), "Q-9999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep != nil {
		t.Errorf("expected nil for unknown queue id, got %+v", rep)
	}
}

func TestMarkSentTransition(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	qid, _ := repo.Append(ctx, "!a", 4.6, -74.0, "hueco", "hueco", now)

	if err := repo.MarkSent(ctx, qid, 4242, "https://www.openstreetmap.org/note/4242", now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	rep, _ := repo.GetByQueueID(ctx, qid)
	if rep.Status != models.StatusSent {
		t.Errorf("expected sent, got %s", rep.Status)
	}
	if rep.UpstreamID == nil || *rep.UpstreamID != 4242 {
		t.Errorf("upstream id not recorded: %+v", rep.UpstreamID)
	}
	if rep.SentAt == nil {
		t.Error("sent_at not recorded")
	}

	// Second claim must fail: the row already left pending.
	err := repo.MarkSent(ctx, qid, 9999, "https://www.openstreetmap.org/note/9999", now)
	if !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}
	rep, _ = repo.GetByQueueID(ctx, qid)
	if *rep.UpstreamID != 4242 {
		t.Errorf("losing claim must not overwrite, got %d", *rep.UpstreamID)
	}
}

func TestRecordErrorKeepsPending(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	qid, _ := repo.Append(ctx, "!a", 4.6, -74.0, "hueco", "hueco", now)
	if err := repo.RecordError(ctx, qid, "timeout"); err != nil {
		t.Fatalf("record error: %v", err)
	}

	rep, _ := repo.GetByQueueID(ctx, qid)
	if rep.Status != models.StatusPending {
		t.Errorf("record error must not change status, got %s", rep.Status)
	}
	if rep.LastError == nil || *rep.LastError != "timeout" {
		t.Errorf("last error not recorded: %v", rep.LastError)
	}
}

func TestRoundCoord(t *testing.T) {
	cases := []struct {
		in  float64
		out float64
	}{
		{4.60975, 4.6098}, // half rounds away from zero
		{4.60974, 4.6097},
		{-74.08175, -74.0818},
		{-74.08174, -74.0817},
		{0, 0},
	}
	for _, tc := range cases {
		if got := RoundCoord(tc.in); got != tc.out {
			t.Errorf("RoundCoord(%v) = %v, expected %v", tc.in, got, tc.out)
		}
	}
}

func TestCheckDuplicate(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := repo.Append(ctx, "!a", 4.60971, -74.08171, "hueco", "hueco", base); err != nil {
		t.Fatalf("append: %v", err)
	}

	t.Run("same everything is a duplicate", func(t *testing.T) {
		dup, err := repo.CheckDuplicate(ctx, "!a", "hueco",
			RoundCoord(4.60969), RoundCoord(-74.08169), TimeBucket(base.Add(30*time.Second)))
		if err != nil {
			t.Fatal(err)
		}
		if !dup {
			t.Error("expected duplicate within rounding and bucket")
		}
	})

	t.Run("different origin is not", func(t *testing.T) {
		dup, _ := repo.CheckDuplicate(ctx, "!b", "hueco",
			RoundCoord(4.60971), RoundCoord(-74.08171), TimeBucket(base))
		if dup {
			t.Error("different origin must not dedup")
		}
	})

	t.Run("different text is not", func(t *testing.T) {
		dup, _ := repo.CheckDuplicate(ctx, "!a", "poste caido",
			RoundCoord(4.60971), RoundCoord(-74.08171), TimeBucket(base))
		if dup {
			t.Error("different text must not dedup")
		}
	})

	t.Run("different bucket is not", func(t *testing.T) {
		dup, _ := repo.CheckDuplicate(ctx, "!a", "hueco",
			RoundCoord(4.60971), RoundCoord(-74.08171), TimeBucket(base.Add(DedupBucketSeconds*time.Second)))
		if dup {
			t.Error("later bucket must not dedup")
		}
	})

	t.Run("moved position is not", func(t *testing.T) {
		dup, _ := repo.CheckDuplicate(ctx, "!a", "hueco",
			RoundCoord(4.6200), RoundCoord(-74.08171), TimeBucket(base))
		if dup {
			t.Error("moved position must not dedup")
		}
	})
}

func TestPendingPageOrdering(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo.Append(ctx, "!a", 4.6, -74.0, "tercero", "tercero", base.Add(2*time.Minute))
	repo.Append(ctx, "!a", 4.6, -74.0, "primero", "primero", base)
	repo.Append(ctx, "!a", 4.6, -74.0, "segundo", "segundo", base.Add(time.Minute))

	page, err := repo.PendingPage(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if page[0].TextNormalized != "primero" || page[1].TextNormalized != "segundo" {
		t.Errorf("expected oldest first, got %s then %s", page[0].TextNormalized, page[1].TextNormalized)
	}
}

func TestShiftCreatedAtTargetsOnlyGivenRows(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	qa, _ := repo.Append(ctx, "!a", 4.6, -74.0, "uno", "uno", base)
	qb, _ := repo.Append(ctx, "!a", 4.6, -74.0, "dos", "dos", base)

	ra, _ := repo.GetByQueueID(ctx, qa)

	shifted, err := repo.ShiftCreatedAt(ctx, []int64{ra.ID}, 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if shifted != 1 {
		t.Errorf("expected 1 shifted row, got %d", shifted)
	}

	ra, _ = repo.GetByQueueID(ctx, qa)
	rb, _ := repo.GetByQueueID(ctx, qb)
	if !ra.CreatedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("row a not shifted: %s", ra.CreatedAt)
	}
	if !rb.CreatedAt.Equal(base) {
		t.Errorf("row b must stay put: %s", rb.CreatedAt)
	}
}

func TestShiftCreatedAtEmpty(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	shifted, err := repo.ShiftCreatedAt(context.Background(), nil, time.Hour)
	if err != nil || shifted != 0 {
		t.Errorf("expected no-op, got %d, %v", shifted, err)
	}
}

func TestUnannouncedSentLifecycle(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	qid, _ := repo.Append(ctx, "!a", 4.6, -74.0, "hueco", "hueco", now)

	rows, _ := repo.UnannouncedSent(ctx)
	if len(rows) != 0 {
		t.Fatalf("pending rows must not show up, got %d", len(rows))
	}

	repo.MarkSent(ctx, qid, 4242, "https://www.openstreetmap.org/note/4242", now)

	rows, _ = repo.UnannouncedSent(ctx)
	if len(rows) != 1 || rows[0].QueueID != qid {
		t.Fatalf("expected the sent row, got %+v", rows)
	}

	if err := repo.MarkAnnounced(ctx, qid); err != nil {
		t.Fatal(err)
	}
	rows, _ = repo.UnannouncedSent(ctx)
	if len(rows) != 0 {
		t.Errorf("announced rows must not reappear, got %d", len(rows))
	}
}

func TestStats(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	loc := time.UTC
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	repo.Append(ctx, "!a", 4.6, -74.0, "viejo", "viejo", now.Add(-48*time.Hour))
	qid, _ := repo.Append(ctx, "!a", 4.6, -74.0, "hoy", "hoy", now.Add(-time.Hour))
	repo.Append(ctx, "!b", 4.6, -74.0, "otro", "otro", now)
	repo.MarkSent(ctx, qid, 1, "https://www.openstreetmap.org/note/1", now)

	stats, err := repo.Stats(ctx, "!a", now, loc)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, expected 2", stats.Total)
	}
	if stats.Today != 1 {
		t.Errorf("today = %d, expected 1", stats.Today)
	}
	if stats.Queue != 1 {
		t.Errorf("queue = %d, expected 1", stats.Queue)
	}

	total, _ := repo.TotalPending(ctx)
	if total != 2 {
		t.Errorf("total pending = %d, expected 2", total)
	}

	sent, _ := repo.SentCountByOrigin(ctx, "!a")
	if sent != 1 {
		t.Errorf("sent count = %d, expected 1", sent)
	}
}

func TestRecentByOrigin(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo.Append(ctx, "!a", 4.6, -74.0, "uno", "uno", base)
	repo.Append(ctx, "!a", 4.6, -74.0, "dos", "dos", base.Add(time.Minute))
	repo.Append(ctx, "!b", 4.6, -74.0, "ajeno", "ajeno", base.Add(2*time.Minute))

	rows, err := repo.RecentByOrigin(ctx, "!a", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].TextNormalized != "dos" {
		t.Errorf("expected newest first, got %s", rows[0].TextNormalized)
	}
}
