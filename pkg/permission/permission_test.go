package permission_test

import (
	"testing"

	"github.com/docflow/docflow/pkg/models"
	"github.com/docflow/docflow/pkg/permission"
	"github.com/stretchr/testify/assert"
)

func TestCanExecute(t *testing.T) {
	record := &models.Record{Type: "purchase_order", ID: "po-1", Owner: "alice"}

	tests := []struct {
		name       string
		transition *models.Transition
		identity   models.Identity
		want       bool
	}{
		{
			name:       "no role requirement admits anyone",
			transition: &models.Transition{Action: "submit"},
			identity:   models.Identity{ID: "bob"},
			want:       true,
		},
		{
			name:       "All sentinel admits anyone",
			transition: &models.Transition{Action: "submit", AllowedRole: models.RoleAll},
			identity:   models.Identity{ID: "bob"},
			want:       true,
		},
		{
			name:       "identity holds the required role",
			transition: &models.Transition{Action: "approve", AllowedRole: "Manager"},
			identity:   models.Identity{ID: "bob", Roles: []string{"Manager"}},
			want:       true,
		},
		{
			name:       "identity lacks the required role",
			transition: &models.Transition{Action: "approve", AllowedRole: "Manager"},
			identity:   models.Identity{ID: "bob", Roles: []string{"Accounts"}},
			want:       false,
		},
		{
			name:       "self-approval lets the creator through",
			transition: &models.Transition{Action: "approve", AllowedRole: "Manager", AllowSelfApproval: true},
			identity:   models.Identity{ID: "alice"},
			want:       true,
		},
		{
			name:       "self-approval does not help non-creators",
			transition: &models.Transition{Action: "approve", AllowedRole: "Manager", AllowSelfApproval: true},
			identity:   models.Identity{ID: "bob"},
			want:       false,
		},
		{
			name:       "creator without self-approval is still rejected",
			transition: &models.Transition{Action: "approve", AllowedRole: "Manager"},
			identity:   models.Identity{ID: "alice"},
			want:       false,
		},
		{
			name:       "nil transition",
			transition: nil,
			identity:   models.Identity{ID: "alice", Roles: []string{"Manager"}},
			want:       false,
		},
	}

	resolver := permission.NewResolver()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolver.CanExecute(tt.transition, record, tt.identity))
		})
	}
}
