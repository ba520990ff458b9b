package application

import (
	"context"
	"testing"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

func TestCreateListings_DedupByMarketplaceID(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.market.createResults = []domain.BatchResult{
		{Listing: &domain.Listing{ID: "X"}},
		{Listing: &domain.Listing{ID: "X"}},
	}

	result, err := env.svc.CreateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{
		{Hash: "h1"},
		{Hash: "h2"},
	})
	if err != nil {
		t.Fatalf("CreateListings: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("created = %v, want only the later hash", result.Created)
	}
	if _, ok := result.Created["h2"]; !ok {
		t.Fatal("h2 must win the coalesced id")
	}
	if result.Failed["h1"] != domain.ErrorDuplicateListing {
		t.Fatalf("h1 = %s, want %s", result.Failed["h1"], domain.ErrorDuplicateListing)
	}
}

func TestCreateListings_UsageDeltaSkipsExistingNonArchived(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.cache.seedHash(limitsTestKey("acct"), map[string]string{"used": "5"})
	// X already cached non-archived, Z cached but archived.
	env.cache.seedHash(currentKey("acct"), map[string]string{
		"X": mustJSON(t, domain.Listing{ID: "X"}),
		"Z": mustJSON(t, domain.Listing{ID: "Z", Archived: true}),
	})
	env.market.createResults = []domain.BatchResult{
		{Listing: &domain.Listing{ID: "X"}},
		{Listing: &domain.Listing{ID: "Y"}},
		{Listing: &domain.Listing{ID: "Z"}},
	}

	result, err := env.svc.CreateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{
		{Hash: "hx"}, {Hash: "hy"}, {Hash: "hz"},
	})
	if err != nil {
		t.Fatalf("CreateListings: %v", err)
	}
	if len(result.Created) != 3 {
		t.Fatalf("created = %d, want 3", len(result.Created))
	}
	limits, _ := env.limits.Get(ctx, "acct")
	if limits.Used != 7 {
		t.Fatalf("used = %d, want 5+2 (existing non-archived X does not count)", limits.Used)
	}
	current := env.cache.hash(currentKey("acct"))
	if len(current) != 3 {
		t.Fatalf("current cache = %d entries, want 3", len(current))
	}
}

func TestCreateListings_CapErrorParsesAndStoresCap(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.market.createResults = []domain.BatchResult{
		{Error: "cannot create listing (318/320 listings)"},
	}

	result, err := env.svc.CreateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{{Hash: "h1"}})
	if err != nil {
		t.Fatalf("CreateListings: %v", err)
	}
	if result.Failed["h1"] != domain.ErrorCapExceeded {
		t.Fatalf("h1 = %s, want %s", result.Failed["h1"], domain.ErrorCapExceeded)
	}
	limits, _ := env.limits.Get(ctx, "acct")
	if limits.Cap != 320 {
		t.Fatalf("cap = %d, want parsed 320", limits.Cap)
	}
}

func TestCreateListings_WritesIntoOpenSnapshots(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.cache.seedHash(snapshotKey("acct", 7), map[string]string{"A": `{"id":"A"}`})
	env.market.createResults = []domain.BatchResult{{Listing: &domain.Listing{ID: "B"}}}

	if _, err := env.svc.CreateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{{Hash: "hb"}}); err != nil {
		t.Fatalf("CreateListings: %v", err)
	}
	snap := env.cache.hash(snapshotKey("acct", 7))
	if _, ok := snap["B"]; !ok {
		t.Fatal("created listing must land in the in-flight refresh snapshot")
	}
	if !env.cache.hasTTL(snapshotKey("acct", 7)) {
		t.Fatal("the snapshot write must carry a fresh TTL")
	}
}

func TestCreateListings_PublishesPartialSuccess(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.market.createResults = []domain.BatchResult{
		{Listing: &domain.Listing{ID: "X"}},
		{Error: "item is invalid"},
	}

	result, err := env.svc.CreateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{
		{Hash: "good"}, {Hash: "bad"},
	})
	if err != nil {
		t.Fatalf("partial success must not be an overall failure: %v", err)
	}
	if len(result.Created) != 1 || len(result.Failed) != 1 {
		t.Fatalf("created=%d failed=%d, want 1/1", len(result.Created), len(result.Failed))
	}
	types := env.events.types()
	if len(types) != 2 || types[0] != EventCreated || types[1] != EventFailed {
		t.Fatalf("events = %v, want [created failed]", types)
	}
}
