// Package concordance records cross-catalog equivalences between reference
// types: the same coin type published as RIC I 207, BMCRE 474 and RSC 43.
// Equivalence is evidence, not an equivalence relation, so membership is
// never transitively closed; FindEquivalent unions only the groups a
// reference actually appears in.
package concordance

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/store"
)

// Equivalent is one reference held equivalent to the query reference.
type Equivalent struct {
	ReferenceType *model.ReferenceType `json:"reference_type"`
	Confidence    float64              `json:"confidence"`
	Source        model.RefSource      `json:"source"`
	GroupID       string               `json:"group_id"`
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateGroup records a new equivalence claim over the given members. At
// least two members are required; fewer is a claim about nothing.
func (s *Service) CreateGroup(ctx context.Context, members []model.ConcordanceMember) (*model.ConcordanceGroup, error) {
	if len(members) < 2 {
		return nil, eris.New("concordance: a group needs at least two members")
	}
	seen := map[int64]bool{}
	for _, m := range members {
		if seen[m.ReferenceTypeID] {
			return nil, eris.Errorf("concordance: duplicate member %d", m.ReferenceTypeID)
		}
		seen[m.ReferenceTypeID] = true
		rt, err := s.store.GetReferenceType(ctx, m.ReferenceTypeID)
		if err != nil {
			return nil, err
		}
		if rt == nil {
			return nil, eris.Errorf("concordance: reference type %d not found", m.ReferenceTypeID)
		}
	}

	g := &model.ConcordanceGroup{ID: uuid.NewString(), Members: members}
	if err := s.store.CreateConcordanceGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// FindEquivalent returns every reference that shares a group with the given
// one, excluding the reference itself. A reference appearing in several
// groups is reported once at its highest confidence. Results are ordered by
// confidence, then id, for stable output.
func (s *Service) FindEquivalent(ctx context.Context, referenceTypeID int64) ([]Equivalent, error) {
	groups, err := s.store.GroupsContaining(ctx, referenceTypeID)
	if err != nil {
		return nil, err
	}

	best := map[int64]Equivalent{}
	for _, g := range groups {
		for _, m := range g.Members {
			if m.ReferenceTypeID == referenceTypeID {
				continue
			}
			if prev, ok := best[m.ReferenceTypeID]; ok && prev.Confidence >= m.Confidence {
				continue
			}
			best[m.ReferenceTypeID] = Equivalent{
				Confidence: m.Confidence,
				Source:     m.Source,
				GroupID:    g.ID,
			}
		}
	}

	out := make([]Equivalent, 0, len(best))
	for id, eq := range best {
		rt, err := s.store.GetReferenceType(ctx, id)
		if err != nil {
			return nil, err
		}
		if rt == nil {
			continue // member row outlived its reference type
		}
		eq.ReferenceType = rt
		out = append(out, eq)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ReferenceType.ID < out[j].ReferenceType.ID
	})
	return out, nil
}
