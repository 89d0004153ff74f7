package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mintmark-dev/mintmark/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same methods serve
// transactional and non-transactional views.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB // nil on transactional views
	q  querier
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: SQLite serializes writers anyway, and :memory:
	// databases are per-connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS specimens (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	attribution TEXT NOT NULL DEFAULT '{}',
	grading     TEXT NOT NULL DEFAULT '{}',
	physical    TEXT NOT NULL DEFAULT '{}',
	design      TEXT NOT NULL DEFAULT '{}',
	notes       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reference_types (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	system            TEXT NOT NULL,
	local_ref         TEXT NOT NULL,
	canonical_ref     TEXT NOT NULL,
	volume            TEXT NOT NULL DEFAULT '',
	number            TEXT NOT NULL DEFAULT '',
	subtype           TEXT NOT NULL DEFAULT '',
	mint              TEXT NOT NULL DEFAULT '',
	supplement        TEXT NOT NULL DEFAULT '',
	collection        TEXT NOT NULL DEFAULT '',
	external_id       TEXT NOT NULL DEFAULT '',
	external_url      TEXT NOT NULL DEFAULT '',
	lookup_status     TEXT NOT NULL DEFAULT 'pending',
	lookup_confidence REAL NOT NULL DEFAULT 0,
	last_lookup       DATETIME,
	payload           TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(system, canonical_ref)
);

CREATE TABLE IF NOT EXISTS specimen_references (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	specimen_id       INTEGER NOT NULL REFERENCES specimens(id),
	reference_type_id INTEGER NOT NULL REFERENCES reference_types(id),
	side              TEXT NOT NULL DEFAULT '',
	is_primary        INTEGER NOT NULL DEFAULT 0,
	notes             TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT 'user',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(specimen_id, reference_type_id, side)
);

CREATE TABLE IF NOT EXISTS concordance_groups (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS concordance_members (
	group_id          TEXT NOT NULL REFERENCES concordance_groups(id),
	reference_type_id INTEGER NOT NULL REFERENCES reference_types(id),
	confidence        REAL NOT NULL DEFAULT 0,
	source            TEXT NOT NULL DEFAULT 'user',
	UNIQUE(group_id, reference_type_id)
);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	dry_run    INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	updated    INTEGER NOT NULL DEFAULT 0,
	conflicts  INTEGER NOT NULL DEFAULT 0,
	not_found  INTEGER NOT NULL DEFAULT 0,
	errors     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	results    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reference_types_key ON reference_types(system, canonical_ref);
CREATE INDEX IF NOT EXISTS idx_specimen_references_specimen ON specimen_references(specimen_id);
CREATE INDEX IF NOT EXISTS idx_concordance_members_ref ON concordance_members(reference_type_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside one transaction. The transactional view shares no
// state with the parent beyond the underlying connection.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return eris.New("sqlite: nested transactions are not supported")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&SQLiteStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) CreateSpecimen(ctx context.Context, sp *model.Specimen) error {
	attribution, grading, physical, design, err := marshalSpecimen(sp)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO specimens (attribution, grading, physical, design, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attribution, grading, physical, design, sp.Notes, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert specimen")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: specimen id")
	}
	sp.ID = id
	sp.CreatedAt = now
	sp.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetSpecimen(ctx context.Context, id int64) (*model.Specimen, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, attribution, grading, physical, design, notes, created_at, updated_at
		 FROM specimens WHERE id = ?`, id,
	)
	var (
		sp                                     model.Specimen
		attribution, grading, physical, design []byte
	)
	err := row.Scan(&sp.ID, &attribution, &grading, &physical, &design, &sp.Notes, &sp.CreatedAt, &sp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get specimen")
	}
	if err := unmarshalSpecimen(&sp, attribution, grading, physical, design); err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *SQLiteStore) UpdateSpecimen(ctx context.Context, sp *model.Specimen) error {
	attribution, grading, physical, design, err := marshalSpecimen(sp)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE specimens SET attribution = ?, grading = ?, physical = ?, design = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		attribution, grading, physical, design, sp.Notes, now, sp.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update specimen")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("sqlite: specimen %d not found", sp.ID)
	}
	sp.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) ListSpecimenIDs(ctx context.Context, limit int) ([]int64, error) {
	query := `SELECT id FROM specimens ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list specimen ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan specimen id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate specimen ids")
}

func (s *SQLiteStore) ListSpecimenIDsMissingField(ctx context.Context, field string, limit int) ([]int64, error) {
	doc, err := specimenFieldDoc(field)
	if err != nil {
		return nil, err
	}
	// Absent keys extract as NULL; fields serialize with omitempty, so a
	// zero value never appears as '' or 0 in the document.
	query := `SELECT id FROM specimens
		 WHERE COALESCE(json_extract(` + doc.column + `, '$.` + doc.key + `'), '') = ''
		 ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list specimens missing field")
	}
	defer rows.Close() //nolint:errcheck

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan specimen id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate specimen ids")
}

const referenceTypeColumns = `id, system, local_ref, canonical_ref, volume, number, subtype, mint,
	supplement, collection, external_id, external_url, lookup_status, lookup_confidence,
	last_lookup, payload, created_at, updated_at`

func scanReferenceType(row interface{ Scan(...any) error }) (*model.ReferenceType, error) {
	var (
		rt         model.ReferenceType
		lastLookup sql.NullTime
		payload    []byte
	)
	err := row.Scan(&rt.ID, &rt.System, &rt.LocalRef, &rt.CanonicalRef, &rt.Volume, &rt.Number,
		&rt.Subtype, &rt.Mint, &rt.Supplement, &rt.Collection, &rt.ExternalID, &rt.ExternalURL,
		&rt.LookupStatus, &rt.LookupConfidence, &lastLookup, &payload, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastLookup.Valid {
		t := lastLookup.Time
		rt.LastLookup = &t
	}
	rt.Payload = payload
	return &rt, nil
}

func (s *SQLiteStore) FindReferenceType(ctx context.Context, system, canonicalRef string) (*model.ReferenceType, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+referenceTypeColumns+` FROM reference_types WHERE system = ? AND canonical_ref = ?`,
		system, canonicalRef,
	)
	rt, err := scanReferenceType(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find reference type")
	}
	return rt, nil
}

func (s *SQLiteStore) GetReferenceType(ctx context.Context, id int64) (*model.ReferenceType, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+referenceTypeColumns+` FROM reference_types WHERE id = ?`, id,
	)
	rt, err := scanReferenceType(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get reference type")
	}
	return rt, nil
}

func (s *SQLiteStore) CreateReferenceType(ctx context.Context, rt *model.ReferenceType) error {
	now := time.Now().UTC()
	if rt.LookupStatus == "" {
		rt.LookupStatus = model.LookupPending
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO reference_types
		 (system, local_ref, canonical_ref, volume, number, subtype, mint, supplement, collection,
		  external_id, external_url, lookup_status, lookup_confidence, last_lookup, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.System, rt.LocalRef, rt.CanonicalRef, rt.Volume, rt.Number, rt.Subtype, rt.Mint,
		rt.Supplement, rt.Collection, rt.ExternalID, rt.ExternalURL, rt.LookupStatus,
		rt.LookupConfidence, rt.LastLookup, rt.Payload, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert reference type")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: reference type id")
	}
	rt.ID = id
	rt.CreatedAt = now
	rt.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) UpdateReferenceTypeLookup(ctx context.Context, rt *model.ReferenceType) error {
	now := time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		`UPDATE reference_types SET external_id = ?, external_url = ?, lookup_status = ?,
		 lookup_confidence = ?, last_lookup = ?, payload = ?, mint = CASE WHEN ? != '' THEN ? ELSE mint END,
		 updated_at = ?
		 WHERE id = ?`,
		rt.ExternalID, rt.ExternalURL, rt.LookupStatus, rt.LookupConfidence, rt.LastLookup,
		rt.Payload, rt.Mint, rt.Mint, now, rt.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update reference type lookup")
	}
	rt.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) ListSpecimenReferences(ctx context.Context, specimenID int64) ([]model.SpecimenReference, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, specimen_id, reference_type_id, side, is_primary, notes, source, created_at
		 FROM specimen_references WHERE specimen_id = ? ORDER BY id`, specimenID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list specimen references")
	}
	defer rows.Close() //nolint:errcheck

	var links []model.SpecimenReference
	for rows.Next() {
		var link model.SpecimenReference
		if err := rows.Scan(&link.ID, &link.SpecimenID, &link.ReferenceTypeID, &link.Side,
			&link.IsPrimary, &link.Notes, &link.Source, &link.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan specimen reference")
		}
		links = append(links, link)
	}
	return links, eris.Wrap(rows.Err(), "sqlite: iterate specimen references")
}

func (s *SQLiteStore) UpsertSpecimenReference(ctx context.Context, link *model.SpecimenReference) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO specimen_references (specimen_id, reference_type_id, side, is_primary, notes, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(specimen_id, reference_type_id, side) DO UPDATE SET
		   is_primary = excluded.is_primary,
		   notes      = excluded.notes,
		   source     = excluded.source`,
		link.SpecimenID, link.ReferenceTypeID, link.Side, link.IsPrimary, link.Notes, link.Source, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert specimen reference")
	}
	if id, err := res.LastInsertId(); err == nil && link.ID == 0 {
		link.ID = id
	}
	return nil
}

func (s *SQLiteStore) DeleteSpecimenReference(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM specimen_references WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete specimen reference")
}

func (s *SQLiteStore) CreateConcordanceGroup(ctx context.Context, g *model.ConcordanceGroup) error {
	now := time.Now().UTC()
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO concordance_groups (id, created_at) VALUES (?, ?)`, g.ID, now,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert concordance group")
	}
	for _, m := range g.Members {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO concordance_members (group_id, reference_type_id, confidence, source)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(group_id, reference_type_id) DO NOTHING`,
			g.ID, m.ReferenceTypeID, m.Confidence, m.Source,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert concordance member")
		}
	}
	g.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GroupsContaining(ctx context.Context, referenceTypeID int64) ([]model.ConcordanceGroup, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT m.group_id, m.reference_type_id, m.confidence, m.source, g.created_at
		 FROM concordance_members m
		 JOIN concordance_groups g ON g.id = m.group_id
		 WHERE m.group_id IN (
		   SELECT group_id FROM concordance_members WHERE reference_type_id = ?
		 )
		 ORDER BY m.group_id, m.reference_type_id`, referenceTypeID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: groups containing")
	}
	defer rows.Close() //nolint:errcheck

	var (
		groups  []model.ConcordanceGroup
		current *model.ConcordanceGroup
	)
	for rows.Next() {
		var (
			groupID   string
			m         model.ConcordanceMember
			createdAt time.Time
		)
		if err := rows.Scan(&groupID, &m.ReferenceTypeID, &m.Confidence, &m.Source, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan concordance member")
		}
		if current == nil || current.ID != groupID {
			groups = append(groups, model.ConcordanceGroup{ID: groupID, CreatedAt: createdAt})
			current = &groups[len(groups)-1]
		}
		current.Members = append(current.Members, m)
	}
	return groups, eris.Wrap(rows.Err(), "sqlite: iterate concordance members")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.EnrichmentJob) error {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = model.JobQueued
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO enrichment_jobs (id, status, dry_run, total, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Status, job.DryRun, job.Total, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert job")
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, status, dry_run, total, processed, updated, conflicts, not_found, errors,
		        error, results, created_at, updated_at
		 FROM enrichment_jobs WHERE id = ?`, id,
	)
	var job model.EnrichmentJob
	err := row.Scan(&job.ID, &job.Status, &job.DryRun, &job.Total, &job.Progress.Processed,
		&job.Progress.Updated, &job.Progress.Conflicts, &job.Progress.NotFound,
		&job.Progress.Errors, &job.Error, &job.Results, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get job")
	}
	return &job, nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.EnrichmentJob) error {
	now := time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = ?, processed = ?, updated = ?, conflicts = ?,
		 not_found = ?, errors = ?, error = ?, results = ?, updated_at = ?
		 WHERE id = ?`,
		job.Status, job.Progress.Processed, job.Progress.Updated, job.Progress.Conflicts,
		job.Progress.NotFound, job.Progress.Errors, job.Error, job.Results, now, job.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update job")
	}
	job.UpdatedAt = now
	return nil
}

func marshalSpecimen(sp *model.Specimen) (attribution, grading, physical, design []byte, err error) {
	if attribution, err = json.Marshal(sp.Attribution); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "sqlite: marshal attribution")
	}
	if grading, err = json.Marshal(sp.Grading); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "sqlite: marshal grading")
	}
	if physical, err = json.Marshal(sp.Physical); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "sqlite: marshal physical")
	}
	if design, err = json.Marshal(sp.Design); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "sqlite: marshal design")
	}
	return attribution, grading, physical, design, nil
}

func unmarshalSpecimen(sp *model.Specimen, attribution, grading, physical, design []byte) error {
	if err := json.Unmarshal(attribution, &sp.Attribution); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal attribution")
	}
	if err := json.Unmarshal(grading, &sp.Grading); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal grading")
	}
	if err := json.Unmarshal(physical, &sp.Physical); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal physical")
	}
	if err := json.Unmarshal(design, &sp.Design); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal design")
	}
	return nil
}
