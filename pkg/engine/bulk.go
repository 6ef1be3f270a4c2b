package engine

import (
	"context"
	"sync"

	"github.com/docflow/docflow/pkg/models"
)

const defaultBulkWorkers = 4

// BulkResult is the outcome of one record's apply within a bulk call.
type BulkResult struct {
	RecordID string
	Record   *models.Record
	Err      error
}

// ApplyBulk applies the same action to many records through a worker
// pool. Each record succeeds or fails on its own; there is no
// cross-record atomicity. Cancelling ctx stops work on records not yet
// picked up, which then report the context error.
func (e *Engine) ApplyBulk(ctx context.Context, recordType string, recordIDs []string, action string, identity models.Identity, workers int) []BulkResult {
	if workers <= 0 {
		workers = defaultBulkWorkers
	}

	if workers > len(recordIDs) {
		workers = len(recordIDs)
	}

	results := make([]BulkResult, len(recordIDs))
	jobs := make(chan int)

	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i] = BulkResult{RecordID: recordIDs[i], Err: err}

					continue
				}

				record, err := e.Apply(ctx, recordType, recordIDs[i], action, identity)
				results[i] = BulkResult{RecordID: recordIDs[i], Record: record, Err: err}
			}
		}()
	}

	for i := range recordIDs {
		jobs <- i
	}

	close(jobs)
	wg.Wait()

	return results
}
