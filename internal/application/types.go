package application

import "github.com/mercator-labs/listing-sync/internal/domain"

const (
	EventCreated    = "listings.created"
	EventFailed     = "listings.failed"
	EventUpdated    = "listings.updated"
	EventDeleted    = "listings.deleted"
	EventDeletedAll = "listings.deleted-all"
	EventRefreshed  = "listings.refreshed"
)

// CreateResult reports one batched create call. Partial success is the
// norm: both maps may be non-empty at once.
type CreateResult struct {
	Created map[string]domain.Listing   `json:"created"`
	Failed  map[string]domain.ErrorKind `json:"failed"`
}

type UpdateResult struct {
	Updated map[string]domain.Listing   `json:"updated"`
	Failed  map[string]domain.ErrorKind `json:"failed"`
}

type DeleteResult struct {
	// Deleted is the remote-confirmed deletion count.
	Deleted int `json:"deleted"`
	// Removed lists the ids evicted from the current cache.
	Removed []string `json:"removed"`
	// Retained lists ids kept in the cache via their do-not-delete flag.
	Retained []string `json:"retained,omitempty"`
	IsActive bool     `json:"isActive"`
}

type listingsEvent struct {
	Account  string                    `json:"account"`
	Listings map[string]domain.Listing `json:"listings"`
}

type failuresEvent struct {
	Account  string                      `json:"account"`
	Failures map[string]domain.ErrorKind `json:"failures"`
}

type deletedEvent struct {
	Account  string   `json:"account"`
	IDs      []string `json:"ids"`
	Deleted  int      `json:"deleted"`
	IsActive bool     `json:"isActive"`
}

type deletedAllEvent struct {
	Account string `json:"account"`
	Deleted int    `json:"deleted"`
}

type refreshedEvent struct {
	Account string `json:"account"`
	Epoch   int64  `json:"epoch"`
	Count   int64  `json:"count"`
}
