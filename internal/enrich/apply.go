// Package enrich applies suggested field corrections to specimen records and
// runs bulk background enrichment jobs. Corrections only ever go through an
// explicit field allow-list and the immutable sub-structure derivation
// methods, so a record is either fully updated or untouched.
package enrich

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/store"
)

// Application is one requested field correction.
type Application struct {
	TargetID int64  `json:"target_id"`
	Field    string `json:"field_name"`
	NewValue any    `json:"new_value"`
	Source   string `json:"source,omitempty"`
}

// Result reports one application attempt. OldValue is only meaningful on
// success.
type Result struct {
	TargetID int64  `json:"target_id"`
	Field    string `json:"field_name"`
	Success  bool   `json:"success"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value"`
	Error    string `json:"error,omitempty"`
}

// fieldApplier coerces a raw value and derives the updated specimen. It must
// not mutate sp; it returns a copy.
type fieldApplier func(sp model.Specimen, v any) (model.Specimen, any, error)

// appliers is the field allow-list. A field not in this map cannot be
// written by enrichment, whatever the source claims.
var appliers = map[string]fieldApplier{
	"issuer": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		s, err := coerceString(v)
		if err != nil {
			return sp, nil, err
		}
		old := sp.Attribution.Issuer
		sp.Attribution = sp.Attribution.WithIssuer(s)
		return sp, old, nil
	},
	"mint": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		s, err := coerceString(v)
		if err != nil {
			return sp, nil, err
		}
		old := sp.Attribution.Mint
		sp.Attribution = sp.Attribution.WithMint(s)
		return sp, old, nil
	},
	"denomination": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		s, err := coerceString(v)
		if err != nil {
			return sp, nil, err
		}
		old := sp.Attribution.Denomination
		sp.Attribution = sp.Attribution.WithDenomination(s)
		return sp, old, nil
	},
	"material": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		s, err := coerceString(v)
		if err != nil {
			return sp, nil, err
		}
		old := sp.Attribution.Material
		sp.Attribution = sp.Attribution.WithMaterial(s)
		return sp, old, nil
	},
	"grade": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		s, err := coerceString(v)
		if err != nil {
			return sp, nil, err
		}
		old := sp.Grading.Grade
		sp.Grading = sp.Grading.WithGrade(s)
		return sp, old, nil
	},
	"weight_g": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		f, err := coerceFloat(v)
		if err != nil {
			return sp, nil, err
		}
		old := sp.Physical.WeightG
		sp.Physical = sp.Physical.WithWeight(f)
		return sp, old, nil
	},
	"diameter_mm": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		f, err := coerceFloat(v)
		if err != nil {
			return sp, nil, err
		}
		old := sp.Physical.DiameterMM
		sp.Physical = sp.Physical.WithDiameter(f)
		return sp, old, nil
	},
	"axis_h": func(sp model.Specimen, v any) (model.Specimen, any, error) {
		n, err := coerceInt(v)
		if err != nil {
			return sp, nil, err
		}
		if n < 0 || n > 12 {
			return sp, nil, eris.Errorf("enrich: axis %d out of range 0-12", n)
		}
		old := sp.Physical.AxisH
		sp.Physical = sp.Physical.WithAxis(n)
		return sp, old, nil
	},
}

// AllowedFields lists the fields enrichment may write, for surfacing in
// errors and the API.
func AllowedFields() []string {
	out := make([]string, 0, len(appliers))
	for f := range appliers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func coerceString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case nil:
		return "", eris.New("enrich: nil value")
	default:
		return "", eris.Errorf("enrich: expected string, got %T", v)
	}
}

func coerceFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, eris.Wrapf(err, "enrich: parse %q as number", x)
		}
		return f, nil
	default:
		return 0, eris.Errorf("enrich: expected number, got %T", v)
	}
}

func coerceInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, eris.Errorf("enrich: %v is not an integer", x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, eris.Wrapf(err, "enrich: parse %q as integer", x)
		}
		return n, nil
	default:
		return 0, eris.Errorf("enrich: expected integer, got %T", v)
	}
}

// Applier applies corrections to specimen records.
type Applier struct {
	store store.Store
}

func NewApplier(st store.Store) *Applier {
	return &Applier{store: st}
}

// Apply performs one correction. Failures are reported in the Result, not
// as an error return: a batch caller treats every outcome uniformly.
func (a *Applier) Apply(ctx context.Context, app Application) Result {
	res := Result{TargetID: app.TargetID, Field: app.Field, NewValue: app.NewValue}

	applier, ok := appliers[app.Field]
	if !ok {
		res.Error = eris.Errorf("enrich: field %q is not correctable (allowed: %s)",
			app.Field, strings.Join(AllowedFields(), ", ")).Error()
		return res
	}

	err := a.store.InTx(ctx, func(tx store.Store) error {
		sp, err := tx.GetSpecimen(ctx, app.TargetID)
		if err != nil {
			return err
		}
		if sp == nil {
			return eris.Errorf("enrich: specimen %d not found", app.TargetID)
		}
		updated, old, err := applier(*sp, app.NewValue)
		if err != nil {
			return err
		}
		res.OldValue = old
		updated.ID = sp.ID
		return tx.UpdateSpecimen(ctx, &updated)
	})
	if err != nil {
		res.OldValue = nil
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// ApplyBatch applies each correction independently; one failure never stops
// the rest.
func (a *Applier) ApplyBatch(ctx context.Context, apps []Application) []Result {
	out := make([]Result, 0, len(apps))
	for _, app := range apps {
		out = append(out, a.Apply(ctx, app))
	}
	return out
}
