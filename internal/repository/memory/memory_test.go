package memory

import (
	"context"
	"testing"
	"time"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

func TestTransactionLogRepository_AppendIfAbsentDeduplicatesPerProvider(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionLogRepository()

	entry := &models.TransactionLog{TransactionID: "tx_1", Provider: "alpha", EventID: "evt_1", Status: models.StatusCompleted}
	if ok, err := repo.AppendIfAbsent(ctx, entry); err != nil || !ok {
		t.Fatalf("first append = %v, %v", ok, err)
	}
	if ok, _ := repo.AppendIfAbsent(ctx, entry); ok {
		t.Fatal("duplicate event was written")
	}

	other := *entry
	other.Provider = "beta"
	if ok, _ := repo.AppendIfAbsent(ctx, &other); !ok {
		t.Fatal("same event id from another provider must be written")
	}
	if ok, _ := repo.HasEvent(ctx, "beta", "evt_1"); !ok {
		t.Fatal("HasEvent missed a recorded event")
	}
	if ok, _ := repo.HasEvent(ctx, "gamma", "evt_1"); ok {
		t.Fatal("HasEvent matched another provider")
	}

	rows, _ := repo.ListByTransactionID(ctx, "tx_1")
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
}

func TestTransactionLogRepository_DateRangeIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionLogRepository()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	for i, at := range []time.Time{start.Add(-time.Second), start, end.Add(-time.Second), end} {
		_ = repo.Append(ctx, &models.TransactionLog{
			TransactionID: string(rune('a' + i)),
			Provider:      "alpha",
			CreatedAt:     at,
		})
	}
	_ = repo.Append(ctx, &models.TransactionLog{TransactionID: "z", Provider: "beta", CreatedAt: start})

	rows, _ := repo.ListByDateRange(ctx, "alpha", start, end)
	if len(rows) != 2 || rows[0].TransactionID != "b" || rows[1].TransactionID != "c" {
		t.Fatalf("rows = %+v", rows)
	}
	all, _ := repo.ListByDateRange(ctx, "", start, end)
	if len(all) != 3 {
		t.Fatalf("all providers = %d", len(all))
	}
}

func TestReportRepository_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewReportRepository()
	base := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = repo.Save(ctx, &models.ReconciliationReport{ID: string(rune('a' + i)), Provider: "alpha", Date: base.AddDate(0, 0, i)})
	}
	_ = repo.Save(ctx, &models.ReconciliationReport{ID: "x", Provider: "beta", Date: base.AddDate(0, 0, 9)})

	got, _ := repo.List(ctx, "alpha", 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("reports = %+v", got)
	}
	if all, _ := repo.List(ctx, "", 0); len(all) != 4 || all[0].ID != "x" {
		t.Fatalf("all = %+v", all)
	}
}

func TestIdempotencyStore_Expires(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore()
	_ = s.Set(ctx, "k", []byte("v"), time.Hour)
	_ = s.Set(ctx, "gone", []byte("v"), -time.Second)

	if v, ok, _ := s.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("k = %q, %v", v, ok)
	}
	if _, ok, _ := s.Get(ctx, "gone"); ok {
		t.Fatal("expired entry returned")
	}
}
