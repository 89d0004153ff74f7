// Package catalog resolves parsed citations against external reference
// catalogs. One adapter per catalog system implements the same contract;
// the Registry routes by system key and owns politeness and error
// containment, so adapter failures never escape as panics or raw errors.
package catalog

import (
	"context"
	"time"

	"github.com/mintmark-dev/mintmark/internal/refparse"
)

// Status is the terminal outcome of a reconciliation attempt. "deferred" and
// "ambiguous" are success-adjacent, not failures: they tell the caller what
// to do next (verify manually, or pick a candidate).
type Status string

const (
	StatusSuccess   Status = "success"
	StatusNotFound  Status = "not_found"
	StatusAmbiguous Status = "ambiguous"
	StatusDeferred  Status = "deferred"
	StatusError     Status = "error"
)

// Candidate is one possible match in an ambiguous result.
type Candidate struct {
	ExternalID  string  `json:"external_id"`
	URL         string  `json:"url"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	MatchType   string  `json:"match_type,omitempty"`
}

// Result is the boundary shape returned for every lookup.
type Result struct {
	Status          Status      `json:"status"`
	ExternalID      string      `json:"external_id,omitempty"`
	ExternalURL     string      `json:"external_url,omitempty"`
	Confidence      float64     `json:"confidence"`
	Candidates      []Candidate `json:"candidates,omitempty"`
	Payload         *TypeData   `json:"payload,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	SourceVersion   string      `json:"source_version,omitempty"`
	LookupTimestamp time.Time   `json:"lookup_timestamp,omitempty"`
}

// TypeData is the normalized catalog payload hydrated after a successful
// reconciliation.
type TypeData struct {
	Authority          string   `json:"authority,omitempty"`
	Denomination       string   `json:"denomination,omitempty"`
	Mint               string   `json:"mint,omitempty"`
	DateFrom           int      `json:"date_from,omitempty"` // negative = BC
	DateTo             int      `json:"date_to,omitempty"`
	ObverseLegend      string   `json:"obverse_legend,omitempty"`
	ObverseDescription string   `json:"obverse_description,omitempty"`
	ReverseLegend      string   `json:"reverse_legend,omitempty"`
	ReverseDescription string   `json:"reverse_description,omitempty"`
	Material           string   `json:"material,omitempty"`
	Bibliography       []string `json:"bibliography,omitempty"`
}

// QueryContext carries optional hints (from the specimen record) that sharpen
// a reconciliation query.
type QueryContext struct {
	Issuer string
	Mint   string
}

// ReconcileQuery is the adapter-specific query built from a parsed citation.
type ReconcileQuery struct {
	System string
	Ref    refparse.Parsed
	Hints  QueryContext
}

// Adapter is the per-catalog-system contract. Systems without a
// reconciliation API still conform: their Reconcile always returns
// StatusDeferred with confidence 0 and a constructed URL.
type Adapter interface {
	System() string

	// NormalizeReference reports whether raw is a citation in this system,
	// returning its parsed form when it is.
	NormalizeReference(raw string) (refparse.Parsed, bool)

	// ParseReference parses raw without the ownership check.
	ParseReference(raw string) refparse.Parsed

	BuildReconcileQuery(ref refparse.Parsed, hints *QueryContext) ReconcileQuery

	// Reconcile matches the query against the external catalog. Network and
	// parse errors may be returned raw; the Registry converts them.
	Reconcile(ctx context.Context, q ReconcileQuery) (*Result, error)

	// FetchTypeData retrieves the raw payload for an external id, or nil
	// when the system has no data endpoint.
	FetchTypeData(ctx context.Context, externalID string) ([]byte, error)

	// ParsePayload normalizes a raw payload into TypeData.
	ParsePayload(raw []byte) (*TypeData, error)

	// BuildURL constructs the human-facing catalog URL for an external id.
	BuildURL(externalID string) string

	// IsCacheFresh reports whether cached data from lastLookup is still
	// usable under the given TTL.
	IsCacheFresh(lastLookup time.Time, ttlDays int) bool
}

// baseAdapter supplies the shared freshness rule.
type baseAdapter struct{}

func (baseAdapter) IsCacheFresh(lastLookup time.Time, ttlDays int) bool {
	if lastLookup.IsZero() {
		return false
	}
	return time.Since(lastLookup) < time.Duration(ttlDays)*24*time.Hour
}
