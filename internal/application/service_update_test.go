package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

func TestUpdateListings_ShallowMergePreservesCachedFields(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.cache.seedHash(currentKey("acct"), map[string]string{
		"X": `{"id":"X","currencies":{"usd":1},"details":{"name":"old"},"listedAt":111}`,
	})
	env.market.updateResults = []domain.BatchResult{
		{Listing: &domain.Listing{ID: "X", Currencies: json.RawMessage(`{"eur":2}`)}},
	}

	result, err := env.svc.UpdateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{
		{Hash: "hx", ID: "X"},
	})
	if err != nil {
		t.Fatalf("UpdateListings: %v", err)
	}
	merged, ok := result.Updated["hx"]
	if !ok {
		t.Fatalf("updated = %v, want entry for hx", result.Updated)
	}
	if string(merged.Currencies) != `{"eur":2}` {
		t.Fatalf("currencies = %s, want the update's value", merged.Currencies)
	}
	if string(merged.Details) != `{"name":"old"}` {
		t.Fatalf("details = %s, want the cached value retained", merged.Details)
	}

	raw := env.cache.hash(currentKey("acct"))["X"]
	var stored domain.Listing
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored entry: %v", err)
	}
	if string(stored.Details) != `{"name":"old"}` {
		t.Fatalf("stored details = %s, want merged entry in cache", stored.Details)
	}
}

func TestUpdateListings_SkipsDesiredWithoutID(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.market.updateResults = []domain.BatchResult{
		{Listing: &domain.Listing{ID: "X"}},
	}

	result, err := env.svc.UpdateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{
		{Hash: "h-no-id"},
		{Hash: "hx", ID: "X"},
	})
	if err != nil {
		t.Fatalf("UpdateListings: %v", err)
	}
	if len(env.market.updateCalls) != 1 || len(env.market.updateCalls[0]) != 1 {
		t.Fatalf("updateCalls = %v, want a single one-draft batch", env.market.updateCalls)
	}
	if _, ok := result.Updated["h-no-id"]; ok {
		t.Fatal("desired without an id must not be submitted")
	}
	if _, ok := result.Updated["hx"]; !ok {
		t.Fatal("hx must be updated")
	}
}

func TestUpdateListings_WritesIntoOpenSnapshots(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.cache.seedHash(snapshotKey("acct", 42), map[string]string{"A": `{"id":"A"}`})
	env.market.updateResults = []domain.BatchResult{
		{Listing: &domain.Listing{ID: "X"}},
	}

	if _, err := env.svc.UpdateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{
		{Hash: "hx", ID: "X"},
	}); err != nil {
		t.Fatalf("UpdateListings: %v", err)
	}
	snap := env.cache.hash(snapshotKey("acct", 42))
	if _, ok := snap["X"]; !ok {
		t.Fatal("updated listing must land in the in-flight refresh snapshot")
	}
	if !env.cache.hasTTL(snapshotKey("acct", 42)) {
		t.Fatal("the snapshot write must carry a fresh TTL")
	}
}

func TestUpdateListings_ClassifiesPositionalFailures(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.market.updateResults = []domain.BatchResult{
		{Error: ""},
		{Listing: &domain.Listing{ID: "Y"}},
	}

	result, err := env.svc.UpdateListings(ctx, domain.Credential{Account: "acct", Token: "tok"}, []domain.DesiredListing{
		{Hash: "gone", ID: "X"},
		{Hash: "hy", ID: "Y"},
	})
	if err != nil {
		t.Fatalf("UpdateListings: %v", err)
	}
	if result.Failed["gone"] != domain.ErrorItemDoesNotExist {
		t.Fatalf("gone = %s, want %s", result.Failed["gone"], domain.ErrorItemDoesNotExist)
	}
	if _, ok := result.Updated["hy"]; !ok {
		t.Fatal("hy must still succeed")
	}
	types := env.events.types()
	if len(types) != 2 || types[0] != EventUpdated || types[1] != EventFailed {
		t.Fatalf("events = %v, want [updated failed]", types)
	}
}
