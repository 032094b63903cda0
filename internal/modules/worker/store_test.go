// README: Postgres and Redis GEO backed worker store tests; need FIXIT_TEST_DSN / FIXIT_TEST_REDIS_ADDR.
package worker

import (
	"context"
	"testing"

	"fixit/internal/testkit"
)

func TestPostgresStoreCandidates(t *testing.T) {
	db := testkit.Postgres(t, "workers")
	d := NewDirectory(NewPostgresStore(db))
	seedWorkers(t, d)

	got, err := d.ListCandidates(context.Background(), "plumbing", center, 10)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "near" {
		t.Fatalf("candidates = %+v", got)
	}
	if got[0].Location == nil || len(got[0].Skills) != 1 {
		t.Fatalf("scanned worker = %+v", got[0])
	}
}

func TestGeoIndexedStoreTracksAvailability(t *testing.T) {
	client := testkit.Redis(t, workerGeoKey)
	store := NewGeoIndexedStore(NewMemoryStore(), client)
	d := NewDirectory(store)
	seedWorkers(t, d)
	ctx := context.Background()

	got, err := d.ListCandidates(ctx, "plumbing", center, 10)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "near" {
		t.Fatalf("candidates = %+v", got)
	}

	if err := d.SetAvailability(ctx, "near", false); err != nil {
		t.Fatalf("set availability: %v", err)
	}
	n, err := client.ZCard(ctx, workerGeoKey).Result()
	if err != nil {
		t.Fatalf("zcard: %v", err)
	}
	// painter and far remain indexed; skill and distance are checked on read
	if n != 2 {
		t.Fatalf("indexed workers = %d, want 2", n)
	}
	got, err = d.ListCandidates(ctx, "plumbing", center, 10)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates after toggle = %+v", got)
	}

	if err := client.Del(ctx, workerGeoKey).Err(); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := store.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n, _ := client.ZCard(ctx, workerGeoKey).Result(); n != 2 {
		t.Fatalf("indexed workers after rebuild = %d, want 2", n)
	}
}
