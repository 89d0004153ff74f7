package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mintmark-dev/mintmark/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// pgQuerier is satisfied by Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool Pool // nil on transactional views
	q    pgQuerier
}

// NewPostgres creates a PostgresStore over an existing pool.
func NewPostgres(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// OpenPostgres connects to the given database URL.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return NewPostgres(pool), nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS specimens (
	id          BIGSERIAL PRIMARY KEY,
	attribution JSONB NOT NULL DEFAULT '{}',
	grading     JSONB NOT NULL DEFAULT '{}',
	physical    JSONB NOT NULL DEFAULT '{}',
	design      JSONB NOT NULL DEFAULT '{}',
	notes       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reference_types (
	id                BIGSERIAL PRIMARY KEY,
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
	lookup_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_lookup       TIMESTAMPTZ,
	payload           JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(system, canonical_ref)
);

CREATE TABLE IF NOT EXISTS specimen_references (
	id                BIGSERIAL PRIMARY KEY,
	specimen_id       BIGINT NOT NULL REFERENCES specimens(id),
	reference_type_id BIGINT NOT NULL REFERENCES reference_types(id),
	side              TEXT NOT NULL DEFAULT '',
	is_primary        BOOLEAN NOT NULL DEFAULT false,
	notes             TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT 'user',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(specimen_id, reference_type_id, side)
);

CREATE TABLE IF NOT EXISTS concordance_groups (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS concordance_members (
	group_id          TEXT NOT NULL REFERENCES concordance_groups(id),
	reference_type_id BIGINT NOT NULL REFERENCES reference_types(id),
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	source            TEXT NOT NULL DEFAULT 'user',
	UNIQUE(group_id, reference_type_id)
);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	dry_run    BOOLEAN NOT NULL DEFAULT false,
	total      INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	updated    INTEGER NOT NULL DEFAULT 0,
	conflicts  INTEGER NOT NULL DEFAULT 0,
	not_found  INTEGER NOT NULL DEFAULT 0,
	errors     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	results    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return eris.New("postgres: nested transactions are not supported")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(&PostgresStore{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

func (s *PostgresStore) CreateSpecimen(ctx context.Context, sp *model.Specimen) error {
	attribution, grading, physical, design, err := marshalSpecimen(sp)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = s.q.QueryRow(ctx,
		`INSERT INTO specimens (attribution, grading, physical, design, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`,
		attribution, grading, physical, design, sp.Notes, now,
	).Scan(&sp.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: insert specimen")
	}
	sp.CreatedAt = now
	sp.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetSpecimen(ctx context.Context, id int64) (*model.Specimen, error) {
	var (
		sp                                     model.Specimen
		attribution, grading, physical, design []byte
	)
	err := s.q.QueryRow(ctx,
		`SELECT id, attribution, grading, physical, design, notes, created_at, updated_at
		 FROM specimens WHERE id = $1`, id,
	).Scan(&sp.ID, &attribution, &grading, &physical, &design, &sp.Notes, &sp.CreatedAt, &sp.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get specimen")
	}
	if err := unmarshalSpecimen(&sp, attribution, grading, physical, design); err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *PostgresStore) UpdateSpecimen(ctx context.Context, sp *model.Specimen) error {
	attribution, grading, physical, design, err := marshalSpecimen(sp)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE specimens SET attribution = $1, grading = $2, physical = $3, design = $4, notes = $5, updated_at = $6
		 WHERE id = $7`,
		attribution, grading, physical, design, sp.Notes, now, sp.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update specimen")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: specimen %d not found", sp.ID)
	}
	sp.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListSpecimenIDs(ctx context.Context, limit int) ([]int64, error) {
	query := `SELECT id FROM specimens ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list specimen ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan specimen id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate specimen ids")
}

func (s *PostgresStore) ListSpecimenIDsMissingField(ctx context.Context, field string, limit int) ([]int64, error) {
	doc, err := specimenFieldDoc(field)
	if err != nil {
		return nil, err
	}
	query := `SELECT id FROM specimens WHERE COALESCE(` + doc.column + `->>'` + doc.key + `', '') = '' ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list specimens missing field")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan specimen id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate specimen ids")
}

func (s *PostgresStore) FindReferenceType(ctx context.Context, system, canonicalRef string) (*model.ReferenceType, error) {
	rt, err := s.scanRefTypeRow(s.q.QueryRow(ctx,
		`SELECT `+referenceTypeColumns+` FROM reference_types WHERE system = $1 AND canonical_ref = $2`,
		system, canonicalRef,
	))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find reference type")
	}
	return rt, nil
}

func (s *PostgresStore) GetReferenceType(ctx context.Context, id int64) (*model.ReferenceType, error) {
	rt, err := s.scanRefTypeRow(s.q.QueryRow(ctx,
		`SELECT `+referenceTypeColumns+` FROM reference_types WHERE id = $1`, id,
	))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get reference type")
	}
	return rt, nil
}

func (s *PostgresStore) scanRefTypeRow(row pgx.Row) (*model.ReferenceType, error) {
	var rt model.ReferenceType
	err := row.Scan(&rt.ID, &rt.System, &rt.LocalRef, &rt.CanonicalRef, &rt.Volume, &rt.Number,
		&rt.Subtype, &rt.Mint, &rt.Supplement, &rt.Collection, &rt.ExternalID, &rt.ExternalURL,
		&rt.LookupStatus, &rt.LookupConfidence, &rt.LastLookup, &rt.Payload, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *PostgresStore) CreateReferenceType(ctx context.Context, rt *model.ReferenceType) error {
	now := time.Now().UTC()
	if rt.LookupStatus == "" {
		rt.LookupStatus = model.LookupPending
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO reference_types
		 (system, local_ref, canonical_ref, volume, number, subtype, mint, supplement, collection,
		  external_id, external_url, lookup_status, lookup_confidence, last_lookup, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		 RETURNING id`,
		rt.System, rt.LocalRef, rt.CanonicalRef, rt.Volume, rt.Number, rt.Subtype, rt.Mint,
		rt.Supplement, rt.Collection, rt.ExternalID, rt.ExternalURL, rt.LookupStatus,
		rt.LookupConfidence, rt.LastLookup, rt.Payload, now,
	).Scan(&rt.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: insert reference type")
	}
	rt.CreatedAt = now
	rt.UpdatedAt = now
	return nil
}

func (s *PostgresStore) UpdateReferenceTypeLookup(ctx context.Context, rt *model.ReferenceType) error {
	now := time.Now().UTC()
	_, err := s.q.Exec(ctx,
		`UPDATE reference_types SET external_id = $1, external_url = $2, lookup_status = $3,
		 lookup_confidence = $4, last_lookup = $5, payload = $6,
		 mint = CASE WHEN $7 != '' THEN $7 ELSE mint END, updated_at = $8
		 WHERE id = $9`,
		rt.ExternalID, rt.ExternalURL, rt.LookupStatus, rt.LookupConfidence, rt.LastLookup,
		rt.Payload, rt.Mint, now, rt.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update reference type lookup")
	}
	rt.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListSpecimenReferences(ctx context.Context, specimenID int64) ([]model.SpecimenReference, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, specimen_id, reference_type_id, side, is_primary, notes, source, created_at
		 FROM specimen_references WHERE specimen_id = $1 ORDER BY id`, specimenID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list specimen references")
	}
	defer rows.Close()

	var links []model.SpecimenReference
	for rows.Next() {
		var link model.SpecimenReference
		if err := rows.Scan(&link.ID, &link.SpecimenID, &link.ReferenceTypeID, &link.Side,
			&link.IsPrimary, &link.Notes, &link.Source, &link.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan specimen reference")
		}
		links = append(links, link)
	}
	return links, eris.Wrap(rows.Err(), "postgres: iterate specimen references")
}

func (s *PostgresStore) UpsertSpecimenReference(ctx context.Context, link *model.SpecimenReference) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO specimen_references (specimen_id, reference_type_id, side, is_primary, notes, source)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (specimen_id, reference_type_id, side) DO UPDATE SET
		   is_primary = excluded.is_primary,
		   notes      = excluded.notes,
		   source     = excluded.source
		 RETURNING id`,
		link.SpecimenID, link.ReferenceTypeID, link.Side, link.IsPrimary, link.Notes, link.Source,
	).Scan(&link.ID)
	return eris.Wrap(err, "postgres: upsert specimen reference")
}

func (s *PostgresStore) DeleteSpecimenReference(ctx context.Context, id int64) error {
	_, err := s.q.Exec(ctx, `DELETE FROM specimen_references WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete specimen reference")
}

func (s *PostgresStore) CreateConcordanceGroup(ctx context.Context, g *model.ConcordanceGroup) error {
	now := time.Now().UTC()
	if _, err := s.q.Exec(ctx,
		`INSERT INTO concordance_groups (id, created_at) VALUES ($1, $2)`, g.ID, now,
	); err != nil {
		return eris.Wrap(err, "postgres: insert concordance group")
	}
	for _, m := range g.Members {
		if _, err := s.q.Exec(ctx,
			`INSERT INTO concordance_members (group_id, reference_type_id, confidence, source)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (group_id, reference_type_id) DO NOTHING`,
			g.ID, m.ReferenceTypeID, m.Confidence, m.Source,
		); err != nil {
			return eris.Wrap(err, "postgres: insert concordance member")
		}
	}
	g.CreatedAt = now
	return nil
}

func (s *PostgresStore) GroupsContaining(ctx context.Context, referenceTypeID int64) ([]model.ConcordanceGroup, error) {
	rows, err := s.q.Query(ctx,
		`SELECT m.group_id, m.reference_type_id, m.confidence, m.source, g.created_at
		 FROM concordance_members m
		 JOIN concordance_groups g ON g.id = m.group_id
		 WHERE m.group_id IN (
		   SELECT group_id FROM concordance_members WHERE reference_type_id = $1
		 )
		 ORDER BY m.group_id, m.reference_type_id`, referenceTypeID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: groups containing")
	}
	defer rows.Close()

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
			return nil, eris.Wrap(err, "postgres: scan concordance member")
		}
		if current == nil || current.ID != groupID {
			groups = append(groups, model.ConcordanceGroup{ID: groupID, CreatedAt: createdAt})
			current = &groups[len(groups)-1]
		}
		current.Members = append(current.Members, m)
	}
	return groups, eris.Wrap(rows.Err(), "postgres: iterate concordance members")
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.EnrichmentJob) error {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = model.JobQueued
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO enrichment_jobs (id, status, dry_run, total, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		job.ID, job.Status, job.DryRun, job.Total, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert job")
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	var job model.EnrichmentJob
	err := s.q.QueryRow(ctx,
		`SELECT id, status, dry_run, total, processed, updated, conflicts, not_found, errors,
		        error, results, created_at, updated_at
		 FROM enrichment_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.Status, &job.DryRun, &job.Total, &job.Progress.Processed,
		&job.Progress.Updated, &job.Progress.Conflicts, &job.Progress.NotFound,
		&job.Progress.Errors, &job.Error, &job.Results, &job.CreatedAt, &job.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get job")
	}
	return &job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.EnrichmentJob) error {
	now := time.Now().UTC()
	_, err := s.q.Exec(ctx,
		`UPDATE enrichment_jobs SET status = $1, processed = $2, updated = $3, conflicts = $4,
		 not_found = $5, errors = $6, error = $7, results = $8, updated_at = $9
		 WHERE id = $10`,
		job.Status, job.Progress.Processed, job.Progress.Updated, job.Progress.Conflicts,
		job.Progress.NotFound, job.Progress.Errors, job.Error, job.Results, now, job.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update job")
	}
	job.UpdatedAt = now
	return nil
}
