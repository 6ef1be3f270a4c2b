package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docflow/docflow/pkg/models"
)

func TestApplyBulk(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	ids := make([]string, 0, 5)

	for range 5 {
		record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
		require.NoError(t, err)

		ids = append(ids, record.ID)
	}

	// One record is moved ahead so "submit" no longer applies to it.
	_, err := eng.Apply(t.Context(), "purchase_order", ids[2], "submit", anyone)
	require.NoError(t, err)

	results := eng.ApplyBulk(t.Context(), "purchase_order", ids, "submit", anyone, 3)
	require.Len(t, results, 5)

	var succeeded, failed int

	for i, result := range results {
		assert.Equal(t, ids[i], result.RecordID)

		if result.Err != nil {
			failed++
			assert.ErrorIs(t, result.Err, ErrUnknownAction)

			continue
		}

		succeeded++
		assert.Equal(t, "PendingApproval", result.Record.State)
	}

	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 1, failed)
}

func TestApplyBulkCancelledContext(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	ids := make([]string, 0, 3)

	for range 3 {
		record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
		require.NoError(t, err)

		ids = append(ids, record.ID)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	results := eng.ApplyBulk(ctx, "purchase_order", ids, "submit", anyone, 2)
	require.Len(t, results, 3)

	for _, result := range results {
		assert.ErrorIs(t, result.Err, context.Canceled)
	}
}

func TestApplyBulkEmpty(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	results := eng.ApplyBulk(t.Context(), "purchase_order", nil, "submit", models.Identity{ID: "x"}, 0)
	assert.Empty(t, results)
}
