// Package postgresql provides a PostgreSQL record store. Optimistic
// concurrency is a versioned UPDATE: the write carries the version the
// caller read, and zero affected rows on an existing record means a
// concurrent writer got there first.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docflow/docflow/pkg/models"
	"github.com/docflow/docflow/pkg/recordstore"
	"github.com/docflow/docflow/pkg/recordstore/sqlbase"
	_ "github.com/lib/pq"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to PostgreSQL and runs migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS records (
				record_type  TEXT NOT NULL,
				id           TEXT NOT NULL,
				state        TEXT NOT NULL DEFAULT '',
				docstatus    INTEGER NOT NULL DEFAULT 0,
				owner        TEXT NOT NULL DEFAULT '',
				fields       JSONB NOT NULL DEFAULT '{}',
				comments     JSONB NOT NULL DEFAULT '[]',
				amended_from TEXT NOT NULL DEFAULT '',
				version      BIGINT NOT NULL DEFAULT 1,
				created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (record_type, id)
			);

			CREATE INDEX IF NOT EXISTS idx_records_state ON records (record_type, state);
		`,
	}
}

func (s *Store) scanRecord(row interface{ Scan(dest ...any) error }) (*models.Record, error) {
	var (
		record       models.Record
		docstatus    int
		fieldsJSON   []byte
		commentsJSON []byte
	)

	err := row.Scan(
		&record.Type,
		&record.ID,
		&record.State,
		&docstatus,
		&record.Owner,
		&fieldsJSON,
		&commentsJSON,
		&record.AmendedFrom,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.DocStatus = models.DocStatus(docstatus)

	err = json.Unmarshal(fieldsJSON, &record.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record fields: %w", err)
	}

	err = json.Unmarshal(commentsJSON, &record.Comments)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record comments: %w", err)
	}

	return &record, nil
}

const selectColumns = `
	record_type
  , id
  , state
  , docstatus
  , owner
  , fields
  , comments
  , amended_from
  , version
  , created_at
  , updated_at
`

func (s *Store) Get(ctx context.Context, recordType, id string) (*models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM records WHERE record_type = $1 AND id = $2`

	record, err := s.scanRecord(s.db.QueryRowContext(ctx, query, recordType, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recordstore.NewStoreError("Get", recordType, id, recordstore.ErrRecordNotFound)
	}

	if err != nil {
		return nil, recordstore.NewStoreError("Get", recordType, id, err)
	}

	return record, nil
}

func (s *Store) Create(ctx context.Context, record *models.Record) (*models.Record, error) {
	now := time.Now().UTC()
	created := record.Clone()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	fieldsJSON, commentsJSON, err := encodeJSON(created)
	if err != nil {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, err)
	}

	query := `
		INSERT INTO records (record_type, id, state, docstatus, owner, fields, comments, amended_from, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (record_type, id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		created.Type, created.ID, created.State, int(created.DocStatus), created.Owner,
		fieldsJSON, commentsJSON, created.AmendedFrom, created.Version, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, err)
	}

	if affected == 0 {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, recordstore.ErrRecordExists)
	}

	return created, nil
}

func encodeJSON(record *models.Record) ([]byte, []byte, error) {
	fields := record.Fields
	if fields == nil {
		fields = map[string]any{}
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode record fields: %w", err)
	}

	comments := record.Comments
	if comments == nil {
		comments = []models.Comment{}
	}

	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode record comments: %w", err)
	}

	return fieldsJSON, commentsJSON, nil
}

func (s *Store) Save(ctx context.Context, record *models.Record) (*models.Record, error) {
	return s.update(ctx, "Save", record, record.DocStatus, int(record.DocStatus))
}

func (s *Store) Submit(ctx context.Context, record *models.Record) (*models.Record, error) {
	return s.update(ctx, "Submit", record, models.DocStatusSubmitted, int(models.DocStatusDraft))
}

func (s *Store) Cancel(ctx context.Context, record *models.Record) (*models.Record, error) {
	return s.update(ctx, "Cancel", record, models.DocStatusCancelled, int(models.DocStatusSubmitted))
}

// update performs the versioned write. The UPDATE only matches when
// both the caller's version and the expected current docstatus hold;
// on zero affected rows the stored row decides which failure it was.
func (s *Store) update(ctx context.Context, op string, record *models.Record, finalStatus models.DocStatus, expectedStatus int) (*models.Record, error) {
	updated := record.Clone()
	updated.DocStatus = finalStatus
	updated.Version = record.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	fieldsJSON, commentsJSON, err := encodeJSON(updated)
	if err != nil {
		return nil, recordstore.NewStoreError(op, record.Type, record.ID, err)
	}

	query := `
		UPDATE records
		SET state = $1, docstatus = $2, owner = $3, fields = $4, comments = $5,
		    amended_from = $6, version = $7, updated_at = $8
		WHERE record_type = $9 AND id = $10 AND version = $11 AND docstatus = $12
	`

	result, err := s.db.ExecContext(ctx, query,
		updated.State, int(updated.DocStatus), updated.Owner, fieldsJSON, commentsJSON,
		updated.AmendedFrom, updated.Version, updated.UpdatedAt,
		record.Type, record.ID, record.Version, expectedStatus)
	if err != nil {
		return nil, recordstore.NewStoreError(op, record.Type, record.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, recordstore.NewStoreError(op, record.Type, record.ID, err)
	}

	if affected == 1 {
		return updated, nil
	}

	current, err := s.Get(ctx, record.Type, record.ID)
	if err != nil {
		return nil, err
	}

	if int(current.DocStatus) != expectedStatus {
		return nil, &recordstore.ValidationError{
			Op:         op,
			RecordType: record.Type,
			RecordID:   record.ID,
			Message:    fmt.Sprintf("%s requires docstatus %s, got %s", op, models.DocStatus(expectedStatus), current.DocStatus),
		}
	}

	return nil, recordstore.NewStoreError(op, record.Type, record.ID, recordstore.ErrConcurrentModification)
}

func (s *Store) List(ctx context.Context, recordType string) ([]*models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM records WHERE record_type = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, recordType)
	if err != nil {
		return nil, recordstore.NewStoreError("List", recordType, "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.Record, 0)

	for rows.Next() {
		record, err := s.scanRecord(rows)
		if err != nil {
			return nil, recordstore.NewStoreError("List", recordType, "", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, recordstore.NewStoreError("List", recordType, "", err)
	}

	return records, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
