// Package store persists specimens, canonical reference types, links,
// concordance groups, and enrichment jobs. SQLite is the default backend;
// a Postgres variant implements the same interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mintmark-dev/mintmark/internal/model"
)

// Store is the persistence interface for the reconciliation engine.
// Find-or-create and upsert methods key on natural keys so repeated calls
// with identical input are idempotent.
type Store interface {
	// Specimens
	CreateSpecimen(ctx context.Context, s *model.Specimen) error
	GetSpecimen(ctx context.Context, id int64) (*model.Specimen, error)
	UpdateSpecimen(ctx context.Context, s *model.Specimen) error
	ListSpecimenIDs(ctx context.Context, limit int) ([]int64, error)
	ListSpecimenIDsMissingField(ctx context.Context, field string, limit int) ([]int64, error)

	// Reference types, keyed by (system, canonical_ref)
	FindReferenceType(ctx context.Context, system, canonicalRef string) (*model.ReferenceType, error)
	GetReferenceType(ctx context.Context, id int64) (*model.ReferenceType, error)
	CreateReferenceType(ctx context.Context, rt *model.ReferenceType) error
	UpdateReferenceTypeLookup(ctx context.Context, rt *model.ReferenceType) error

	// Specimen-to-reference links, keyed by (specimen_id, reference_type_id, side)
	ListSpecimenReferences(ctx context.Context, specimenID int64) ([]model.SpecimenReference, error)
	UpsertSpecimenReference(ctx context.Context, link *model.SpecimenReference) error
	DeleteSpecimenReference(ctx context.Context, id int64) error

	// Concordance
	CreateConcordanceGroup(ctx context.Context, g *model.ConcordanceGroup) error
	GroupsContaining(ctx context.Context, referenceTypeID int64) ([]model.ConcordanceGroup, error)

	// Enrichment jobs
	CreateJob(ctx context.Context, job *model.EnrichmentJob) error
	GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error)
	UpdateJob(ctx context.Context, job *model.EnrichmentJob) error

	// InTx runs fn against a transactional view of the store. The view must
	// not be retained after fn returns.
	InTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// specimenFieldDocs maps filterable field names to the JSON document column
// and key holding them. Queries never interpolate caller input directly.
var specimenFieldDocs = map[string]struct{ column, key string }{
	"issuer":       {"attribution", "issuer"},
	"mint":         {"attribution", "mint"},
	"denomination": {"attribution", "denomination"},
	"material":     {"attribution", "material"},
	"grade":        {"grading", "grade"},
	"weight_g":     {"physical", "weight_g"},
	"diameter_mm":  {"physical", "diameter_mm"},
	"axis_h":       {"physical", "axis_h"},
}

func specimenFieldDoc(field string) (struct{ column, key string }, error) {
	doc, ok := specimenFieldDocs[field]
	if !ok {
		return doc, eris.Errorf("store: field %q is not filterable", field)
	}
	return doc, nil
}
