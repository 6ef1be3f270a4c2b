// Package file provides file-based record store implementation. Each
// record is one JSON document under root/records/<type>/. Writes are
// serialized in-process and guarded by the record version for
// cross-process safety.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docflow/docflow/pkg/models"
	"github.com/docflow/docflow/pkg/recordstore"
)

type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a new file store rooted at the given directory. A
// "file://" prefix is stripped so the store can be constructed
// directly from a database URL.
func NewStore(root string) *Store {
	return &Store{root: strings.Replace(root, "file://", "", 1)}
}

func (s *Store) recordPath(recordType, id string) string {
	return filepath.Join(s.root, "records", recordType, id+".json")
}

func (s *Store) readRecord(recordType, id string) (*models.Record, error) {
	data, err := os.ReadFile(s.recordPath(recordType, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, recordstore.ErrRecordNotFound
		}

		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record models.Record

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record file: %w", err)
	}

	return &record, nil
}

func (s *Store) writeRecord(record *models.Record) error {
	path := s.recordPath(record.Type, record.ID)

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, recordType, id string) (*models.Record, error) {
	record, err := s.readRecord(recordType, id)
	if err != nil {
		return nil, recordstore.NewStoreError("Get", recordType, id, err)
	}

	return record, nil
}

func (s *Store) Create(ctx context.Context, record *models.Record) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.readRecord(record.Type, record.ID)
	if err == nil {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, recordstore.ErrRecordExists)
	}

	if !recordstore.IsRecordNotFound(err) {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, err)
	}

	now := time.Now().UTC()
	created := record.Clone()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	err = s.writeRecord(created)
	if err != nil {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, err)
	}

	return created, nil
}

func (s *Store) Save(ctx context.Context, record *models.Record) (*models.Record, error) {
	return s.update(ctx, "Save", record, func(stored *models.Record) error {
		if record.DocStatus != stored.DocStatus {
			return &recordstore.ValidationError{
				Op:         "Save",
				RecordType: record.Type,
				RecordID:   record.ID,
				Message:    fmt.Sprintf("save cannot change docstatus (%s -> %s)", stored.DocStatus, record.DocStatus),
			}
		}

		return nil
	}, record.DocStatus)
}

func (s *Store) Submit(ctx context.Context, record *models.Record) (*models.Record, error) {
	return s.update(ctx, "Submit", record, func(stored *models.Record) error {
		if stored.DocStatus != models.DocStatusDraft {
			return &recordstore.ValidationError{
				Op:         "Submit",
				RecordType: record.Type,
				RecordID:   record.ID,
				Message:    fmt.Sprintf("only a draft record can be submitted, got %s", stored.DocStatus),
			}
		}

		return nil
	}, models.DocStatusSubmitted)
}

func (s *Store) Cancel(ctx context.Context, record *models.Record) (*models.Record, error) {
	return s.update(ctx, "Cancel", record, func(stored *models.Record) error {
		if stored.DocStatus != models.DocStatusSubmitted {
			return &recordstore.ValidationError{
				Op:         "Cancel",
				RecordType: record.Type,
				RecordID:   record.ID,
				Message:    fmt.Sprintf("only a submitted record can be cancelled, got %s", stored.DocStatus),
			}
		}

		return nil
	}, models.DocStatusCancelled)
}

func (s *Store) update(_ context.Context, op string, record *models.Record, precondition func(*models.Record) error, finalStatus models.DocStatus) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readRecord(record.Type, record.ID)
	if err != nil {
		return nil, recordstore.NewStoreError(op, record.Type, record.ID, err)
	}

	if current.Version != record.Version {
		return nil, recordstore.NewStoreError(op, record.Type, record.ID, recordstore.ErrConcurrentModification)
	}

	err = precondition(current)
	if err != nil {
		return nil, err
	}

	updated := record.Clone()
	updated.DocStatus = finalStatus
	updated.Version = current.Version + 1
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	err = s.writeRecord(updated)
	if err != nil {
		return nil, recordstore.NewStoreError(op, record.Type, record.ID, err)
	}

	return updated, nil
}

func (s *Store) List(ctx context.Context, recordType string) ([]*models.Record, error) {
	dir := filepath.Join(s.root, "records", recordType)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.Record{}, nil
		}

		return nil, recordstore.NewStoreError("List", recordType, "", err)
	}

	records := make([]*models.Record, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")

		record, err := s.readRecord(recordType, id)
		if err != nil {
			return nil, recordstore.NewStoreError("List", recordType, id, err)
		}

		records = append(records, record)
	}

	return records, nil
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (s *Store) Close(_ context.Context) error {
	return nil
}
