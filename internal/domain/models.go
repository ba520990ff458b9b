package domain

import "encoding/json"

// Listing is the marketplace's record of a priced offer. The marketplace
// owns it; the cache holds a read-mostly replica keyed by ID.
type Listing struct {
	ID         string          `json:"id"`
	Currencies json.RawMessage `json:"currencies,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Archived   bool            `json:"archived,omitempty"`
	ListedAt   int64           `json:"listedAt,omitempty"`
}

// ListingDraft is the payload submitted to the marketplace on create or
// update. ID is set only on updates.
type ListingDraft struct {
	ID         string          `json:"id,omitempty"`
	Currencies json.RawMessage `json:"currencies,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// DesiredListing is a caller-supplied intention: a content fingerprint
// computed by the caller over item identity and price, an optional known
// marketplace id, and the draft to submit. It lives only for the duration
// of one mutation call.
type DesiredListing struct {
	Hash  string       `json:"hash"`
	ID    string       `json:"id,omitempty"`
	Draft ListingDraft `json:"listing"`
}

// Credential authenticates one account against the marketplace. The token
// is opaque to this service.
type Credential struct {
	Account string
	Token   string
}

// ListingPage is one page of a paginated listing read. Total is the count
// of all matching listings, reported on every page.
type ListingPage struct {
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
	Listings []Listing `json:"results"`
}

// BatchResult is the marketplace's positional answer for one item of a
// batch create or update: either a listing or an error message.
type BatchResult struct {
	Listing *Listing `json:"result,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type JobKind string

const (
	JobActive   JobKind = "active"
	JobArchived JobKind = "archived"
	JobDone     JobKind = "done"
)

// FetchJob identifies one unit of refresh work. Identity is fully derived
// from its fields, so an at-least-once redelivery registers as a duplicate
// instead of being reprocessed.
type FetchJob struct {
	Account string  `json:"account"`
	Kind    JobKind `json:"kind"`
	Start   int64   `json:"start"`
	Skip    int     `json:"skip"`
	Limit   int     `json:"limit"`
	Attempt int     `json:"attempt,omitempty"`
}

// AccountLimits tracks how many active listings count against the
// account's cap. Used never goes below zero.
type AccountLimits struct {
	Used int `json:"used"`
	Cap  int `json:"cap"`
}

// InventoryItem is one entry of the secondary read API's inventory answer.
type InventoryItem struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Amount int    `json:"amount,omitempty"`
}

// InventorySnapshot is the result of one rate-limited inventory fetch.
type InventorySnapshot struct {
	Account   string          `json:"account"`
	Items     []InventoryItem `json:"items"`
	FetchedAt int64           `json:"fetchedAt"`
}
