// Package importer ingests collection or auction exports (CSV or XLSX), one
// specimen per row, and feeds the citations through reference sync with the
// import source tag.
package importer

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/refsync"
	"github.com/mintmark-dev/mintmark/internal/store"
)

// Row is one parsed export line.
type Row struct {
	Line         int
	Issuer       string
	Mint         string
	Denomination string
	Material     string
	Year         int
	WeightG      float64
	DiameterMM   float64
	AxisH        int
	Grade        string
	Citations    []string
	Notes        string
}

// RowError records why one line was skipped.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Summary reports an import run.
type Summary struct {
	Rows     int        `json:"rows"`
	Created  int        `json:"created"`
	Linked   int        `json:"linked"` // citation links established
	Skipped  []RowError `json:"skipped,omitempty"`
}

type Importer struct {
	store store.Store
	sync  *refsync.Service
}

func New(st store.Store) *Importer {
	return &Importer{store: st, sync: refsync.NewService(st)}
}

// ImportFile ingests a CSV or XLSX export, chosen by extension.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Summary, error) {
	var (
		rows []Row
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, rows)
}

// Import creates one specimen per row and syncs its citations. A bad row is
// recorded and skipped; it never aborts the run.
func (im *Importer) Import(ctx context.Context, rows []Row) (*Summary, error) {
	summary := &Summary{Rows: len(rows)}
	for _, row := range rows {
		if err := im.importRow(ctx, row, summary); err != nil {
			zap.L().Warn("importer: row skipped", zap.Int("line", row.Line), zap.Error(err))
			summary.Skipped = append(summary.Skipped, RowError{Line: row.Line, Err: err.Error()})
		}
	}
	return summary, nil
}

func (im *Importer) importRow(ctx context.Context, row Row, summary *Summary) error {
	if row.Issuer == "" && len(row.Citations) == 0 {
		return eris.New("importer: row has neither issuer nor citations")
	}

	sp := &model.Specimen{
		Attribution: model.Attribution{
			Issuer:       row.Issuer,
			Mint:         row.Mint,
			Denomination: row.Denomination,
			Material:     row.Material,
		},
		Grading:  model.Grading{Grade: row.Grade},
		Physical: model.Physical{WeightG: row.WeightG, DiameterMM: row.DiameterMM, AxisH: row.AxisH},
		Notes:    row.Notes,
	}
	if row.Year != 0 {
		sp.Attribution = sp.Attribution.WithYears(row.Year, 0)
	}
	if err := im.store.CreateSpecimen(ctx, sp); err != nil {
		return err
	}
	summary.Created++

	if len(row.Citations) == 0 {
		return nil
	}
	inputs := make([]refsync.Input, 0, len(row.Citations))
	for _, c := range row.Citations {
		inputs = append(inputs, refsync.Input{Raw: c, Source: model.SourceImport})
	}
	results, err := im.sync.Sync(ctx, sp.ID, inputs, refsync.Options{Merge: true})
	if err != nil {
		return err
	}
	for _, r := range results {
		if !r.Duplicate {
			summary.Linked++
		}
	}
	return nil
}

func readCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv")
	}
	return recordsToRows(records)
}

func readXLSX(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}
	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return recordsToRows(records)
}

// columnAliases maps export header spellings to canonical column keys.
var columnAliases = map[string]string{
	"issuer": "issuer", "ruler": "issuer", "emperor": "issuer", "authority": "issuer",
	"mint": "mint", "mint name": "mint",
	"denomination": "denomination", "denom": "denomination",
	"material": "material", "metal": "material", "composition": "material",
	"year": "year", "date": "year", "mint year": "year",
	"weight": "weight", "weight g": "weight", "weight_g": "weight", "wt": "weight",
	"diameter": "diameter", "diameter mm": "diameter", "diameter_mm": "diameter", "size": "diameter",
	"axis": "axis", "die axis": "axis", "axis_h": "axis",
	"grade": "grade", "condition": "grade",
	"reference": "refs", "references": "refs", "refs": "refs",
	"citation": "refs", "citations": "refs",
	"notes": "notes", "description": "notes",
}

func recordsToRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, eris.New("importer: empty file")
	}

	cols := map[string]int{}
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(h, "(", " ")))
		key = strings.TrimSpace(strings.Trim(key, ")"))
		if canon, ok := columnAliases[key]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	if len(cols) == 0 {
		return nil, eris.New("importer: no recognized columns in header row")
	}

	get := func(rec []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := make([]Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := Row{
			Line:         n + 2, // 1-based, after the header
			Issuer:       get(rec, "issuer"),
			Mint:         get(rec, "mint"),
			Denomination: get(rec, "denomination"),
			Material:     get(rec, "material"),
			Grade:        get(rec, "grade"),
			Notes:        get(rec, "notes"),
			Year:         parseYear(get(rec, "year")),
			WeightG:      parseFloat(get(rec, "weight")),
			DiameterMM:   parseFloat(get(rec, "diameter")),
			AxisH:        parseAxis(get(rec, "axis")),
			Citations:    splitCitations(get(rec, "refs")),
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseYear accepts "14", "AD 14", "27 BC", "-27". Unparseable input yields
// zero, meaning unstated.
func parseYear(s string) int {
	if s == "" {
		return 0
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	bc := strings.Contains(lower, "bc")
	lower = strings.NewReplacer("ad", "", "bc", "", "ce", "", ".", "").Replace(lower)
	n, err := strconv.Atoi(strings.TrimSpace(lower))
	if err != nil {
		return 0
	}
	if bc && n > 0 {
		n = -n
	}
	return n
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.TrimSuffix(strings.ToLower(s), "mm")
	s = strings.TrimSuffix(s, "g")
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseAxis reads die axis notation: "6", "6h", "6:00".
func parseAxis(s string) int {
	if s == "" {
		return 0
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "h")
	if i := strings.Index(s, ":"); i > 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 12 {
		return 0
	}
	return n
}

func splitCitations(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
