// Package refsync reconciles a specimen's catalog citations against the
// reference tables: parse, canonicalize, dedup, find-or-create the shared
// reference type, and link it to the specimen.
package refsync

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/refparse"
	"github.com/mintmark-dev/mintmark/internal/store"
)

// Input is one citation to sync, as entered or imported. Either Raw or
// Structured names the citation; when both are set the structured form wins.
type Input struct {
	Raw         string                  `json:"raw,omitempty"`
	Structured  *refparse.StructuredRef `json:"structured,omitempty"`
	Side        string                  `json:"side,omitempty"` // obverse/reverse attributions, usually empty
	Notes       string                  `json:"notes,omitempty"`
	IsPrimary   bool                    `json:"is_primary,omitempty"`
	Source      model.RefSource         `json:"source,omitempty"`
	ExternalID  string                  `json:"external_id,omitempty"` // known catalog identifier, set on creation
	ExternalURL string                  `json:"external_url,omitempty"`
}

// parse resolves the input to its parsed form and the raw text recorded as
// the local citation.
func (in Input) parse() (refparse.Parsed, string) {
	if in.Structured != nil {
		p := refparse.FromStructured(*in.Structured)
		raw := in.Raw
		if raw == "" {
			raw = refparse.Canonical(p)
		}
		return p, raw
	}
	return refparse.Parse(in.Raw), in.Raw
}

// LinkResult reports what happened to one input citation.
type LinkResult struct {
	Raw             string  `json:"raw"`
	System          string  `json:"system"`
	CanonicalRef    string  `json:"canonical_ref"`
	ReferenceTypeID int64   `json:"reference_type_id"`
	Created         bool    `json:"created"`
	Confidence      float64 `json:"confidence"`
	Duplicate       bool    `json:"duplicate,omitempty"`
}

// Options controls sync behavior.
type Options struct {
	// Merge keeps existing links that are absent from the batch. Without it
	// the batch is authoritative and stale links are removed.
	Merge bool
}

// Service syncs citations for specimens.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Sync reconciles the given citations for one specimen inside a single
// transaction. Running the same batch twice yields the same rows.
func (s *Service) Sync(ctx context.Context, specimenID int64, inputs []Input, opts Options) ([]LinkResult, error) {
	var results []LinkResult
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		results, err = syncTx(ctx, tx, specimenID, inputs, opts)
		return err
	})
	return results, err
}

func syncTx(ctx context.Context, tx store.Store, specimenID int64, inputs []Input, opts Options) ([]LinkResult, error) {
	sp, err := tx.GetSpecimen(ctx, specimenID)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, eris.Errorf("refsync: specimen %d not found", specimenID)
	}

	existing, err := tx.ListSpecimenReferences(ctx, specimenID)
	if err != nil {
		return nil, err
	}

	type linkKey struct {
		refTypeID int64
		side      string
	}
	existingByKey := make(map[linkKey]model.SpecimenReference, len(existing))
	for _, link := range existing {
		existingByKey[linkKey{link.ReferenceTypeID, link.Side}] = link
	}

	// Whether some link ends up primary without promotion. In non-merge mode
	// stale links are removed and re-specified links take the batch's flag,
	// so only the batch counts; in merge mode existing primaries survive.
	batchHasPrimary := false
	for _, in := range inputs {
		if in.IsPrimary {
			batchHasPrimary = true
		}
	}
	hasPrimary := batchHasPrimary
	if opts.Merge && !hasPrimary {
		for _, link := range existing {
			if link.IsPrimary {
				hasPrimary = true
			}
		}
	}

	seen := map[string]bool{}  // (system, canonical) within the batch, first wins
	kept := map[linkKey]bool{} // links named by this batch
	results := make([]LinkResult, 0, len(inputs))

	for i, in := range inputs {
		if in.Raw == "" && in.Structured == nil {
			return nil, eris.New("refsync: input needs a raw or structured citation")
		}
		parsed, raw := in.parse()
		canonical := refparse.Canonical(parsed)
		res := LinkResult{
			Raw:          raw,
			System:       parsed.System,
			CanonicalRef: canonical,
			Confidence:   parsed.Confidence,
		}

		dedupKey := parsed.System + "\x00" + canonical
		if seen[dedupKey] {
			res.Duplicate = true
			results = append(results, res)
			continue
		}
		seen[dedupKey] = true

		rt, created, err := findOrCreate(ctx, tx, parsed, in, raw, canonical)
		if err != nil {
			return nil, err
		}
		res.ReferenceTypeID = rt.ID
		res.Created = created

		isPrimary := in.IsPrimary
		if !isPrimary && opts.Merge && !batchHasPrimary {
			// A merged batch re-specifying the current primary must not
			// silently demote it.
			if ex, ok := existingByKey[linkKey{rt.ID, in.Side}]; ok && ex.IsPrimary {
				isPrimary = true
			}
		}

		source := in.Source
		if source == "" {
			source = model.SourceUser
		}
		link := &model.SpecimenReference{
			SpecimenID:      specimenID,
			ReferenceTypeID: rt.ID,
			Side:            in.Side,
			IsPrimary:       isPrimary || (!hasPrimary && i == 0),
			Notes:           in.Notes,
			Source:          source,
		}
		if err := tx.UpsertSpecimenReference(ctx, link); err != nil {
			return nil, err
		}
		kept[linkKey{rt.ID, in.Side}] = true
		results = append(results, res)
	}

	if !opts.Merge {
		for _, link := range existing {
			if kept[linkKey{link.ReferenceTypeID, link.Side}] {
				continue
			}
			zap.L().Debug("removing stale specimen reference",
				zap.Int64("specimen_id", specimenID),
				zap.Int64("reference_type_id", link.ReferenceTypeID))
			if err := tx.DeleteSpecimenReference(ctx, link.ID); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// findOrCreate resolves a parsed citation to its shared reference type row,
// creating one with the parsed fields if no row exists for the natural key.
// A caller-supplied external id only lands on rows created here; an existing
// row's identifier came from a catalog lookup and is not overwritten.
func findOrCreate(ctx context.Context, tx store.Store, parsed refparse.Parsed, in Input, raw, canonical string) (*model.ReferenceType, bool, error) {
	rt, err := tx.FindReferenceType(ctx, parsed.System, canonical)
	if err != nil {
		return nil, false, err
	}
	if rt != nil {
		return rt, false, nil
	}
	rt = &model.ReferenceType{
		System:       parsed.System,
		LocalRef:     raw,
		CanonicalRef: canonical,
		Volume:       parsed.Volume,
		Number:       parsed.Number,
		Subtype:      parsed.Subtype,
		Mint:         parsed.Mint,
		Supplement:   parsed.Supplement,
		Collection:   parsed.Collection,
		ExternalID:   in.ExternalID,
		ExternalURL:  in.ExternalURL,
	}
	if err := tx.CreateReferenceType(ctx, rt); err != nil {
		return nil, false, err
	}
	return rt, true, nil
}
