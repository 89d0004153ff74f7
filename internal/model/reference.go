package model

import "time"

// LookupStatus is the terminal state of an external catalog lookup.
type LookupStatus string

const (
	LookupPending   LookupStatus = "pending"
	LookupSuccess   LookupStatus = "success"
	LookupNotFound  LookupStatus = "not_found"
	LookupAmbiguous LookupStatus = "ambiguous"
	LookupDeferred  LookupStatus = "deferred" // no reconciliation API; verify manually via URL
	LookupError     LookupStatus = "error"
)

// RefSource tags where a specimen-to-reference link came from.
type RefSource string

const (
	SourceUser          RefSource = "user"
	SourceImport        RefSource = "import"
	SourceScraper       RefSource = "scraper"
	SourceLLMApproved   RefSource = "llm_approved"
	SourceCatalogLookup RefSource = "catalog_lookup"
)

// ReferenceType is a canonical, deduplicated catalog citation. The pair
// (System, CanonicalRef) is unique: every textual variant of one logical
// citation resolves to the same row.
type ReferenceType struct {
	ID           int64  `json:"id"`
	System       string `json:"system"`        // catalog family, e.g. "ric"
	LocalRef     string `json:"local_ref"`     // human-readable citation as entered
	CanonicalRef string `json:"canonical_ref"` // dedup key within the system
	Volume       string `json:"volume,omitempty"`
	Number       string `json:"number"`
	Subtype      string `json:"subtype,omitempty"`
	Mint         string `json:"mint,omitempty"`
	Supplement   string `json:"supplement,omitempty"`
	Collection   string `json:"collection,omitempty"`

	ExternalID       string       `json:"external_id,omitempty"`
	ExternalURL      string       `json:"external_url,omitempty"`
	LookupStatus     LookupStatus `json:"lookup_status"`
	LookupConfidence float64      `json:"lookup_confidence"`
	LastLookup       *time.Time   `json:"last_lookup,omitempty"`
	Payload          []byte       `json:"payload,omitempty"` // cached parsed catalog data, JSON

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpecimenReference links a specimen to a catalog entry. At most one link per
// specimen is primary when any links exist.
type SpecimenReference struct {
	ID              int64     `json:"id"`
	SpecimenID      int64     `json:"specimen_id"`
	ReferenceTypeID int64     `json:"reference_type_id"`
	Side            string    `json:"side,omitempty"` // obverse/reverse for countermark refs
	IsPrimary       bool      `json:"is_primary"`
	Notes           string    `json:"notes,omitempty"`
	Source          RefSource `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConcordanceGroup asserts that its member reference types describe the same
// underlying catalog type across systems. Overlapping groups are allowed and
// are not merged into one equivalence class; each membership carries its own
// confidence and provenance.
type ConcordanceGroup struct {
	ID        string              `json:"id"`
	Members   []ConcordanceMember `json:"members"`
	CreatedAt time.Time           `json:"created_at"`
}

// ConcordanceMember is one reference type's membership in a group.
type ConcordanceMember struct {
	ReferenceTypeID int64     `json:"reference_type_id"`
	Confidence      float64   `json:"confidence"`
	Source          RefSource `json:"source"`
}
