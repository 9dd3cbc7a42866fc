// Package store implements versioned-artifact persistence: per-entity,
// per-version rows addressed by (entity_type, entity_id, version), a
// small index of the latest version per entity, and single-writer CAS
// on that index so concurrent writers to the same entity race safely.
// It uses a database/sql-over-any-driver approach: an (entity_type,
// entity_id, version) key plus an audit_log table for the append-only
// trail.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SodiumBank/Datum/pkg/apperr"
)

// ErrNotFound is returned when a version or entity is not found.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	data BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (entity_type, entity_id, version)
);

CREATE TABLE IF NOT EXISTS artifact_index (
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	latest_version INTEGER NOT NULL,
	PRIMARY KEY (entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	sequence INTEGER NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	role TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	reason TEXT NOT NULL,
	result TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (entity_type, entity_id, sequence)
);
`

// VersionedStore persists immutable, content-addressed versions of an
// entity (a DatumPlan or a StandardsProfile) with optimistic
// single-writer-per-entity CAS: read the latest version number, build
// the next in memory, write with "this version must not yet exist"
// semantics. On conflict, retry from read.
type VersionedStore interface {
	// PutNextVersion writes data as version expectedPrevVersion+1 for
	// the entity, but only if the entity's currently-recorded latest
	// version is exactly expectedPrevVersion (0 means "does not exist
	// yet"). Returns apperr.CodeVersionConflict if another writer won
	// the race.
	PutNextVersion(ctx context.Context, entityType, entityID string, expectedPrevVersion int, data []byte) (int, error)
	Get(ctx context.Context, entityType, entityID string, version int) ([]byte, error)
	LatestVersion(ctx context.Context, entityType, entityID string) (int, error)
	ListVersions(ctx context.Context, entityType, entityID string) ([]int, error)
}

// AuditLog persists the append-only per-entity trail of {timestamp,
// actor, role, entity, from_state, to_state, reason} records. It's a
// persistence sink for entries produced by pkg/ledger.Ledger, not a
// replacement for that package's hash chain.
type AuditLog interface {
	Append(ctx context.Context, entityType, entityID, actor, role, fromState, toState, reason, result string, recordedAt time.Time) error
	ListForEntity(ctx context.Context, entityType, entityID string) ([]AuditEntry, error)
}

// AuditEntry is one persisted row of the audit trail.
type AuditEntry struct {
	Sequence   int64
	EntityType string
	EntityID   string
	Actor      string
	Role       string
	FromState  string
	ToState    string
	Reason     string
	Result     string
	RecordedAt time.Time
}

// SQLStore implements VersionedStore and AuditLog over database/sql,
// driver-agnostic so it targets both Postgres (lib/pq) and SQLite
// (modernc.org/sqlite) through the same queries.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Init creates the store's tables if they don't already exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) PutNextVersion(ctx context.Context, entityType, entityID string, expectedPrevVersion int, data []byte) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nextVersion := expectedPrevVersion + 1

	if expectedPrevVersion == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO artifact_index (entity_type, entity_id, latest_version) VALUES ($1, $2, $3)`,
			entityType, entityID, nextVersion)
		if err != nil {
			return 0, apperr.Wrap(apperr.CodeVersionConflict, err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE artifact_index SET latest_version = $1 WHERE entity_type = $2 AND entity_id = $3 AND latest_version = $4`,
			nextVersion, entityType, entityID, expectedPrevVersion)
		if err != nil {
			return 0, fmt.Errorf("store: update index: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("store: rows affected: %w", err)
		}
		if rows == 0 {
			return 0, apperr.Newf(apperr.CodeVersionConflict,
				"entity %s/%s is no longer at version %d; retry from a fresh read", entityType, entityID, expectedPrevVersion)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifacts (entity_type, entity_id, version, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entityType, entityID, nextVersion, data, time.Now())
	if err != nil {
		return 0, fmt.Errorf("store: insert artifact version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return nextVersion, nil
}

func (s *SQLStore) Get(ctx context.Context, entityType, entityID string, version int) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM artifacts WHERE entity_type = $1 AND entity_id = $2 AND version = $3`,
		entityType, entityID, version)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return data, nil
}

func (s *SQLStore) LatestVersion(ctx context.Context, entityType, entityID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT latest_version FROM artifact_index WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID)
	var version int
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("store: latest version: %w", err)
	}
	return version, nil
}

func (s *SQLStore) ListVersions(ctx context.Context, entityType, entityID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM artifacts WHERE entity_type = $1 AND entity_id = $2 ORDER BY version ASC`,
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("store: list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list versions: %w", err)
	}
	return versions, nil
}

func (s *SQLStore) Append(ctx context.Context, entityType, entityID, actor, role, fromState, toState, reason, result string, recordedAt time.Time) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM audit_log WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID)
	var maxSeq int64
	if err := row.Scan(&maxSeq); err != nil {
		return fmt.Errorf("store: audit log max sequence: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (sequence, entity_type, entity_id, actor, role, from_state, to_state, reason, result, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		maxSeq+1, entityType, entityID, actor, role, fromState, toState, reason, result, recordedAt)
	if err != nil {
		return fmt.Errorf("store: append audit entry: %w", err)
	}
	return nil
}

func (s *SQLStore) ListForEntity(ctx context.Context, entityType, entityID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, entity_type, entity_id, actor, role, from_state, to_state, reason, result, recorded_at
		 FROM audit_log WHERE entity_type = $1 AND entity_id = $2 ORDER BY sequence ASC`,
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("store: list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Sequence, &e.EntityType, &e.EntityID, &e.Actor, &e.Role, &e.FromState, &e.ToState, &e.Reason, &e.Result, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list audit entries: %w", err)
	}
	return entries, nil
}
