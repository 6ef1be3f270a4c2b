// Package recordstore abstracts the document store the transition
// engine delegates persistence to. Save, Submit and Cancel are one
// persistence unit each: a backend either applies the whole staged
// record or none of it, and every write is guarded by an optimistic
// version check.
package recordstore

import (
	"context"

	"github.com/docflow/docflow/pkg/models"
)

type Store interface {
	// Get returns the record or ErrRecordNotFound.
	Get(ctx context.Context, recordType, id string) (*models.Record, error)

	// Create persists a brand-new record. ErrRecordExists if the id
	// is already taken.
	Create(ctx context.Context, record *models.Record) (*models.Record, error)

	// Save writes a record whose docstatus did not change. The
	// record's Version must match the stored one; a stale version
	// yields ErrConcurrentModification.
	Save(ctx context.Context, record *models.Record) (*models.Record, error)

	// Submit writes a record moving from Draft to Submitted. Backends
	// enforce their own submit-time validation.
	Submit(ctx context.Context, record *models.Record) (*models.Record, error)

	// Cancel writes a record moving from Submitted to Cancelled.
	Cancel(ctx context.Context, record *models.Record) (*models.Record, error)

	// List returns every record of the given type.
	List(ctx context.Context, recordType string) ([]*models.Record, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
