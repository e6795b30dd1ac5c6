// Package postgres implements core.Store on PostgreSQL using pgx.
//
// Each record is stored as a JSONB document next to the columns the filter
// engine can push down (status, stage, priority, region, agent, created_at).
// A bigserial column keeps insertion order stable across updates.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordStore is a core.Store backed by PostgreSQL.
type RecordStore struct {
	db DBTX
}

// NewRecordStore creates a store over db.
func NewRecordStore(db DBTX) *RecordStore {
	return &RecordStore{db: db}
}

// EnsureSchema creates the records table and its indexes if missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "ensure schema")
	}
	return nil
}

// List implements core.Store. Column predicates run in SQL; free-text search
// runs in the filter engine over the decoded documents.
func (s *RecordStore) List(ctx context.Context, spec core.FilterSpec) ([]core.Record, error) {
	spec = spec.Normalize()
	query, args := buildListQuery(spec)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, errors.Wrap(err, "scan records")
	}
	return core.Filter(records, spec), nil
}

// GetByID implements core.Store.
func (s *RecordStore) GetByID(ctx context.Context, id string) (*core.Record, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT doc FROM onboarding_records WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get record %s", id)
	}
	r, err := decodeRecord(doc)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const upsertSQL = `
INSERT INTO onboarding_records (id, status, stage, priority, region, assigned_agent, created_at, updated_at, doc)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    status         = EXCLUDED.status,
    stage          = EXCLUDED.stage,
    priority       = EXCLUDED.priority,
    region         = EXCLUDED.region,
    assigned_agent = EXCLUDED.assigned_agent,
    created_at     = EXCLUDED.created_at,
    updated_at     = EXCLUDED.updated_at,
    doc            = EXCLUDED.doc`

// Save implements core.Store.
func (s *RecordStore) Save(ctx context.Context, r core.Record) (core.Record, error) {
	if r.ID == "" {
		return core.Record{}, core.ValidationErrorf("record has no id")
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return core.Record{}, errors.Wrap(err, "encode record")
	}

	_, err = s.db.Exec(ctx, upsertSQL,
		r.ID,
		string(r.Status),
		string(r.Stage),
		string(r.Priority),
		r.Subject.State,
		r.AssignedAgent,
		r.CreatedAt,
		r.UpdatedAt,
		doc,
	)
	if err != nil {
		return core.Record{}, errors.Wrapf(err, "save record %s", r.ID)
	}
	return r.Clone(), nil
}

func scanRecord(row pgx.CollectableRow) (core.Record, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return core.Record{}, err
	}
	return decodeRecord(doc)
}

func decodeRecord(doc []byte) (core.Record, error) {
	var r core.Record
	if err := json.Unmarshal(doc, &r); err != nil {
		return core.Record{}, errors.Wrap(err, "decode record")
	}
	return r, nil
}

// buildListQuery translates the column predicates of a normalized spec into
// SQL. Search is left to the caller.
func buildListQuery(spec core.FilterSpec) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if spec.Status != "" {
		add("status = $%d", spec.Status)
	}
	if spec.Stage != "" {
		add("stage = $%d", spec.Stage)
	}
	if spec.Priority != "" {
		add("priority = $%d", spec.Priority)
	}
	if spec.Region != "" {
		add("region = $%d", spec.Region)
	}
	if spec.AssignedAgent != "" {
		add("assigned_agent = $%d", spec.AssignedAgent)
	}
	if spec.From != nil {
		add("created_at >= $%d", *spec.From)
	}
	if spec.To != nil {
		add("created_at <= $%d", *spec.To)
	}

	var b strings.Builder
	b.WriteString("SELECT doc FROM onboarding_records")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq")
	return b.String(), args
}
