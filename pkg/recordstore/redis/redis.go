// Package redis provides a redis-backed record store. Every write runs
// inside a WATCH/MULTI transaction on the record key, so a concurrent
// writer aborts the transaction and surfaces as a concurrent
// modification in addition to the record version check.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docflow/docflow/pkg/models"
	"github.com/docflow/docflow/pkg/recordstore"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "docflow:record:"

type Store struct {
	client redis.UniversalClient
}

// NewStore connects to redis using a redis:// URL.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &Store{client: redis.NewClient(opts)}, nil
}

func recordKey(recordType, id string) string {
	return keyPrefix + recordType + ":" + id
}

func indexKey(recordType string) string {
	return keyPrefix + recordType
}

func decode(data []byte) (*models.Record, error) {
	var record models.Record

	err := json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	return &record, nil
}

func (s *Store) Get(ctx context.Context, recordType, id string) (*models.Record, error) {
	data, err := s.client.Get(ctx, recordKey(recordType, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, recordstore.NewStoreError("Get", recordType, id, recordstore.ErrRecordNotFound)
	}

	if err != nil {
		return nil, recordstore.NewStoreError("Get", recordType, id, err)
	}

	record, err := decode(data)
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

	payload, err := json.Marshal(created)
	if err != nil {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, err)
	}

	// The record key and its index entry commit in one transaction, so
	// List can never miss a record Get would return. On an existing
	// record the SAdd is a no-op.
	var setNX *redis.BoolCmd

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setNX = pipe.SetNX(ctx, recordKey(record.Type, record.ID), payload, 0)
		pipe.SAdd(ctx, indexKey(record.Type), record.ID)

		return nil
	})
	if err != nil {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, err)
	}

	if !setNX.Val() {
		return nil, recordstore.NewStoreError("Create", record.Type, record.ID, recordstore.ErrRecordExists)
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

func (s *Store) update(ctx context.Context, op string, record *models.Record, precondition func(*models.Record) error, finalStatus models.DocStatus) (*models.Record, error) {
	key := recordKey(record.Type, record.ID)

	var updated *models.Record

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return recordstore.ErrRecordNotFound
		}

		if err != nil {
			return err
		}

		current, err := decode(data)
		if err != nil {
			return err
		}

		if current.Version != record.Version {
			return recordstore.ErrConcurrentModification
		}

		err = precondition(current)
		if err != nil {
			return err
		}

		updated = record.Clone()
		updated.DocStatus = finalStatus
		updated.Version = current.Version + 1
		updated.CreatedAt = current.CreatedAt
		updated.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(updated)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)

			return nil
		})

		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = recordstore.ErrConcurrentModification
		}

		var ve *recordstore.ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}

		return nil, recordstore.NewStoreError(op, record.Type, record.ID, err)
	}

	return updated, nil
}

func (s *Store) List(ctx context.Context, recordType string) ([]*models.Record, error) {
	ids, err := s.client.SMembers(ctx, indexKey(recordType)).Result()
	if err != nil {
		return nil, recordstore.NewStoreError("List", recordType, "", err)
	}

	records := make([]*models.Record, 0, len(ids))

	for _, id := range ids {
		record, err := s.Get(ctx, recordType, id)
		if err != nil {
			if recordstore.IsRecordNotFound(err) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
